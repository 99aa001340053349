package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Upload *UploadMessage
}

// UploadMessage is one spreadsheet submitted through the rows topic
type UploadMessage struct {
	models.RowsUpload
	UserID     string `json:"user_id"`
	UploadedBy string `json:"uploaded_by"`
}

// ParseUpload parses the message value as an upload. The user id falls back
// to the user_id header.
func (m *IncomingMessage) ParseUpload() error {
	return m.ParseUploadAt(nil)
}

// ParseUploadAt parses the upload found at path inside the message value, for
// producers that wrap uploads in their own envelope. A nil path reads the
// whole value.
func (m *IncomingMessage) ParseUploadAt(path *jmespath.JMESPath) error {
	value, err := m.selectUpload(path)
	if err != nil {
		return err
	}

	var upload UploadMessage
	if err := json.Unmarshal(value, &upload); err != nil {
		return err
	}
	if upload.UserID == "" {
		upload.UserID = m.Headers["user_id"]
	}
	if upload.UserID == "" {
		return fmt.Errorf("upload message at offset %d has no user_id", m.Offset)
	}
	if upload.UploadedBy == "" {
		upload.UploadedBy = upload.UserID
	}
	if upload.FileName == "" {
		upload.FileName = fmt.Sprintf("%s-%d-%d.json", m.Topic, m.Partition, m.Offset)
	}
	m.Upload = &upload
	return nil
}

func (m *IncomingMessage) selectUpload(path *jmespath.JMESPath) ([]byte, error) {
	if path == nil {
		return m.Value, nil
	}

	// numbers stay json.Number so row cells re-encode exactly as sent
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.UseNumber()
	var envelope any
	if err := dec.Decode(&envelope); err != nil {
		return nil, err
	}

	selected, err := path.Search(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to search upload path: %w", err)
	}
	if selected == nil {
		return nil, fmt.Errorf("upload path matched nothing in message at offset %d", m.Offset)
	}
	return json.Marshal(selected)
}
