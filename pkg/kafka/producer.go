package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	// Compression is one of none, gzip, snappy, lz4 or zstd. Defaults to snappy.
	Compression string
}

var codecs = map[string]kafka.Compression{
	"none":   0,
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Producer writes match and batch events to the events topic. Every event is
// keyed by its batch id so one batch's events stay ordered on a partition.
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	codec, ok := codecs[cfg.Compression]
	if !ok {
		codec = kafka.Snappy
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            codec,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
		topic:  cfg.Topic,
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// MatchEvent announces the decision taken for one uploaded row
type MatchEvent struct {
	EventType        string             `json:"event_type"`
	BatchID          string             `json:"batch_id"`
	MatchResultID    string             `json:"match_result_id"`
	UploadedRecordID string             `json:"uploaded_record_id"`
	MatchStatus      models.MatchStatus `json:"match_status"`
	Confidence       float64            `json:"confidence"`
	MatchedSystemID  *string            `json:"matched_system_id,omitempty"`
	Rule             *string            `json:"rule,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
}

// BatchEvent announces an upload that reached COMPLETED or FAILED
type BatchEvent struct {
	EventType    string             `json:"event_type"`
	BatchID      string             `json:"batch_id"`
	FileName     string             `json:"file_name"`
	UserID       string             `json:"user_id"`
	Status       models.BatchStatus `json:"status"`
	Counts       models.BatchCounts `json:"counts"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

func (p *Producer) PublishMatchEvent(ctx context.Context, event *MatchEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMatchEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, event.BatchID, event, map[string]string{
		"event_type":      event.EventType,
		"batch_id":        event.BatchID,
		"match_status":    string(event.MatchStatus),
		"match_result_id": event.MatchResultID,
	})
}

func (p *Producer) PublishBatchEvent(ctx context.Context, event *BatchEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishBatchEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, event.BatchID, event, map[string]string{
		"event_type": event.EventType,
		"batch_id":   event.BatchID,
		"user_id":    event.UserID,
		"status":     string(event.Status),
	})
}

func (p *Producer) publish(ctx context.Context, key string, payload any, headers map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{Topic: p.topic, Key: []byte(key), Value: data}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      p.topic,
		"event_type": headers["event_type"],
		"batch_id":   key,
	})
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to publish event")
		return err
	}
	log.Debug("Published event")
	return nil
}
