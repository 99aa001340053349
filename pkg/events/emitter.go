// Package events handles event emission for match decisions and uploads
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeMatchDecided   EventType = "match.decided"
	EventTypeBatchCompleted EventType = "batch.completed"
	EventTypeBatchFailed    EventType = "batch.failed"
)

// Producer is the part of the Kafka producer the emitter needs
type Producer interface {
	Topic() string
	PublishMatchEvent(ctx context.Context, event *kafka.MatchEvent) error
	PublishBatchEvent(ctx context.Context, event *kafka.BatchEvent) error
}

// Emitter handles event emission for fern
type Emitter struct {
	producer Producer
	logger   ectologger.Logger
}

var _ importer.Publisher = (*Emitter)(nil)

// NewEmitter creates a new event emitter
func NewEmitter(producer Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// MatchDecided emits a match.decided event for one audit record
func (e *Emitter) MatchDecided(ctx context.Context, batch *models.UploadBatch, result *models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MatchDecided")
	defer span.End()

	event := &kafka.MatchEvent{
		EventType:        string(EventTypeMatchDecided),
		BatchID:          batch.ID.String(),
		MatchResultID:    result.ID.String(),
		UploadedRecordID: result.UploadedRecordID,
		MatchStatus:      result.MatchStatus,
		Confidence:       result.ConfidenceScore,
		MatchedSystemID:  result.MatchedSystemID,
		Rule:             result.Rule,
	}

	if err := e.producer.PublishMatchEvent(ctx, event); err != nil {
		metrics.RecordPublish(e.producer.Topic(), "error")
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match.decided event")
		return err
	}

	metrics.RecordPublish(e.producer.Topic(), "ok")
	return nil
}

// BatchFinished emits batch.completed or batch.failed
func (e *Emitter) BatchFinished(ctx context.Context, batch *models.UploadBatch) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.BatchFinished")
	defer span.End()

	eventType := EventTypeBatchCompleted
	if batch.Status == models.BatchStatusFailed {
		eventType = EventTypeBatchFailed
	}

	event := &kafka.BatchEvent{
		EventType:    string(eventType),
		BatchID:      batch.ID.String(),
		FileName:     batch.FileName,
		UserID:       batch.UserID,
		Status:       batch.Status,
		Counts:       batch.BatchCounts,
		ErrorMessage: batch.ErrorMessage,
	}

	if err := e.producer.PublishBatchEvent(ctx, event); err != nil {
		metrics.RecordPublish(e.producer.Topic(), "error")
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	metrics.RecordPublish(e.producer.Topic(), "ok")
	return nil
}
