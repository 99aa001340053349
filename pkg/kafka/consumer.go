package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	outcomeHandled   = "handled"
	outcomeMalformed = "malformed"
	outcomeRetried   = "retried"
	outcomeHalted    = "halted"
)

const maxFetchBackoff = 30 * time.Second

// MessageHandler imports one upload. A nil return commits the message.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// MaxAttempts bounds how often a failing message is handled before the
	// consumer halts. Defaults to 3.
	MaxAttempts int
	// RetryBackoff is the wait before the second attempt and doubles after
	// each failure. Defaults to 1s.
	RetryBackoff time.Duration
	// UploadPath is a JMESPath expression selecting the upload inside each
	// message. Empty reads the whole message as the upload.
	UploadPath string
}

// Consumer reads uploads from the rows topic one message at a time. Offsets
// only move forward once a message is handled, so when a message keeps
// failing the consumer halts and leaves it for the next run.
type Consumer struct {
	reader      messageReader
	topic       string
	logger      ectologger.Logger
	handler     MessageHandler
	maxAttempts int
	backoff     time.Duration
	uploadPath  *jmespath.JMESPath

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// NewConsumer creates a group consumer for cfg.Topic
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) (*Consumer, error) {
	uploadPath, err := compileUploadPath(cfg.UploadPath)
	if err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	c := newConsumer(reader, cfg, logger, handler)
	c.uploadPath = uploadPath
	return c, nil
}

func compileUploadPath(expr string) (*jmespath.JMESPath, error) {
	if expr == "" {
		return nil, nil
	}
	path, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid upload path %q: %w", expr, err)
	}
	return path, nil
}

func newConsumer(reader messageReader, cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	c := &Consumer{
		reader:      reader,
		topic:       cfg.Topic,
		logger:      logger,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		done:        make(chan struct{}),
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c
}

// Start runs the consume loop in the background
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)
		if err := c.consumeLoop(ctx); err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
		}
	}()

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":        c.topic,
		"max_attempts": c.maxAttempts,
	}).Info("Kafka consumer started")
	return nil
}

// Done is closed when the consume loop exits
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Err is the reason the consume loop halted, nil after a clean stop
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stop ends the consume loop and closes the reader
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

// consumeLoop waits between failed fetches, doubling up to maxFetchBackoff,
// so an unreachable broker is not polled in a tight loop.
func (c *Consumer) consumeLoop(ctx context.Context) error {
	wait := c.backoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return nil
			}
			c.logger.WithContext(ctx).WithError(err).Errorf("Failed to fetch message, retrying in %s", wait)
			if !sleep(ctx, wait) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return nil
			}
			wait = min(wait*2, maxFetchBackoff)
			continue
		}
		wait = c.backoff

		if err := c.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// processMessage handles msg until it succeeds or runs out of attempts. An
// error means the message was left uncommitted.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := newIncomingMessage(msg)
	if err := incoming.ParseUploadAt(c.uploadPath); err != nil {
		log.WithError(err).Error("Failed to parse message, skipping")
		metrics.RecordConsumed(c.topic, outcomeMalformed)
		c.commit(ctx, log, msg)
		return nil
	}

	wait := c.backoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler(ctx, incoming); err == nil {
			metrics.RecordConsumed(c.topic, outcomeHandled)
			c.commit(ctx, log, msg)
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}

		metrics.RecordConsumed(c.topic, outcomeRetried)
		log.WithError(err).Warnf("Failed to process message, retrying in %s (attempt %d/%d)", wait, attempt, c.maxAttempts)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		wait *= 2
	}

	metrics.RecordConsumed(c.topic, outcomeHalted)
	log.WithError(err).Error("Failed to process message, halting without commit")
	return fmt.Errorf("message %s/%d@%d failed after %d attempts: %w", msg.Topic, msg.Partition, msg.Offset, c.maxAttempts, err)
}

func (c *Consumer) commit(ctx context.Context, log ectologger.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Topic:     msg.Topic,
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
