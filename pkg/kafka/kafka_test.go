package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

// failingReader fails the first failures fetches, then blocks until stopped
type failingReader struct {
	fakeReader
	failures int
	mu       sync.Mutex
	calls    []time.Time
}

func (r *failingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	r.calls = append(r.calls, time.Now())
	n := len(r.calls)
	r.mu.Unlock()
	if n <= r.failures {
		return kafka.Message{}, errors.New("broker unreachable")
	}
	return r.fakeReader.FetchMessage(ctx)
}

func (r *failingReader) fetches() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.calls...)
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishMatchEvent(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{writer: writer, logger: testLogger(), topic: "fern.events"}

	uid := "UID-01HZX"
	err := p.PublishMatchEvent(context.Background(), &MatchEvent{
		EventType:       "match.decided",
		BatchID:         "batch-1",
		MatchResultID:   "result-1",
		MatchStatus:     models.MatchStatusMatched,
		Confidence:      100,
		MatchedSystemID: &uid,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "fern.events", msg.Topic)
	assert.Equal(t, "batch-1", string(msg.Key))
	assert.Equal(t, "match.decided", header(msg, "event_type"))
	assert.Equal(t, "MATCHED", header(msg, "match_status"))

	var decoded MatchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uid, *decoded.MatchedSystemID)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestProducer_PublishBatchEventError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: writer, logger: testLogger(), topic: "fern.events"}

	err := p.PublishBatchEvent(context.Background(), &BatchEvent{EventType: "batch.completed", BatchID: "b"})
	assert.EqualError(t, err, "broker down")
}

func TestIncomingMessage_ParseUpload(t *testing.T) {
	msg := &IncomingMessage{
		Topic:     "fern.rows",
		Partition: 2,
		Offset:    41,
		Headers:   map[string]string{"user_id": "user-9"},
		Value:     []byte(`{"columns":["Last Name","First Name","Age"],"rows":[["Cruz","Juan",42],[null,"",null]]}`),
	}

	require.NoError(t, msg.ParseUpload())
	assert.Equal(t, "user-9", msg.Upload.UserID)
	assert.Equal(t, "user-9", msg.Upload.UploadedBy)
	assert.Equal(t, "fern.rows-2-41.json", msg.Upload.FileName)

	rows := msg.Upload.Records()
	require.Len(t, rows, 1)
	age, ok := rows[0].Get("Age")
	require.True(t, ok)
	n, ok := age.Float()
	require.True(t, ok)
	assert.Equal(t, 42.0, n)
}

func TestIncomingMessage_ParseUploadRequiresUser(t *testing.T) {
	msg := &IncomingMessage{Value: []byte(`{"columns":["a"],"rows":[["b"]]}`), Headers: map[string]string{}}
	assert.Error(t, msg.ParseUpload())
}

func TestIncomingMessage_ParseUploadAt(t *testing.T) {
	path, err := compileUploadPath("payload.upload")
	require.NoError(t, err)

	msg := &IncomingMessage{
		Headers: map[string]string{},
		Value:   []byte(`{"source":"lgu-portal","payload":{"upload":{"user_id":"user-3","columns":["Surname","Household"],"rows":[["Cruz",12345678901]]}}}`),
	}
	require.NoError(t, msg.ParseUploadAt(path))
	assert.Equal(t, "user-3", msg.Upload.UserID)

	rows := msg.Upload.Records()
	require.Len(t, rows, 1)
	household, ok := rows[0].Get("Household")
	require.True(t, ok)
	n, ok := household.Float()
	require.True(t, ok)
	assert.Equal(t, 12345678901.0, n)

	missing := &IncomingMessage{Headers: map[string]string{}, Value: []byte(`{"payload":{}}`)}
	assert.Error(t, missing.ParseUploadAt(path))
}

func TestNewConsumer_RejectsBadUploadPath(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{Topic: "fern.rows", UploadPath: "payload.["}, testLogger(), nil)
	assert.Error(t, err)

	path, err := compileUploadPath("")
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestConsumer_ProcessMessageCommits(t *testing.T) {
	valid := `{"user_id":"u","columns":["a"],"rows":[["b"]]}`
	down := errors.New("db down")

	tests := []struct {
		name     string
		value    string
		failures int
		commits  int
		handled  int
		wantErr  bool
	}{
		{name: "handled", value: valid, commits: 1, handled: 1},
		{name: "recovers after a retry", value: valid, failures: 1, commits: 1, handled: 2},
		{name: "halts after every attempt fails", value: valid, failures: 3, commits: 0, handled: 3, wantErr: true},
		{name: "malformed is skipped", value: `not json`, commits: 1, handled: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			handled := 0
			handler := func(_ context.Context, msg *IncomingMessage) error {
				handled++
				if handled <= tt.failures {
					return down
				}
				return nil
			}
			c := newConsumer(reader, ConsumerConfig{Topic: "fern.rows", MaxAttempts: 3, RetryBackoff: time.Millisecond}, testLogger(), handler)

			err := c.processMessage(context.Background(), kafka.Message{Topic: "fern.rows", Value: []byte(tt.value)})
			if tt.wantErr {
				assert.ErrorIs(t, err, down)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, reader.committed, tt.commits)
			assert.Equal(t, tt.handled, handled)
		})
	}
}

func TestConsumer_StartStop(t *testing.T) {
	c := newConsumer(&fakeReader{}, ConsumerConfig{Topic: "fern.rows"}, testLogger(), func(context.Context, *IncomingMessage) error { return nil })
	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop())

	select {
	case <-c.Done():
	default:
		t.Fatal("consume loop still running after Stop")
	}
	assert.NoError(t, c.Err())
}

func TestConsumer_WaitsBetweenFailedFetches(t *testing.T) {
	reader := &failingReader{failures: 2}
	backoff := 20 * time.Millisecond
	c := newConsumer(reader, ConsumerConfig{Topic: "fern.rows", RetryBackoff: backoff}, testLogger(),
		func(context.Context, *IncomingMessage) error { return nil })
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(reader.fetches()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	calls := reader.fetches()
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), backoff)
	assert.GreaterOrEqual(t, calls[2].Sub(calls[1]), 2*backoff)
	assert.NoError(t, c.Err())
}

func TestConsumer_StopDuringFetchBackoff(t *testing.T) {
	reader := &failingReader{failures: 1}
	c := newConsumer(reader, ConsumerConfig{Topic: "fern.rows", RetryBackoff: time.Hour}, testLogger(),
		func(context.Context, *IncomingMessage) error { return nil })
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return len(reader.fetches()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())
	assert.Len(t, reader.fetches(), 1)
	assert.NoError(t, c.Err())
}
