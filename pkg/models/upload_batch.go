package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// MappingSummary records how the columns of a file were interpreted, taken
// from its first data row
type MappingSummary struct {
	CoreFieldsMapped map[string]string `json:"core_fields_mapped"`
	DynamicFields    map[string]string `json:"dynamic_fields"`
	SkippedColumns   []string          `json:"skipped_columns"`
}

// BatchCounts tallies row outcomes for one upload
type BatchCounts struct {
	TotalRows     int `db:"total_rows" json:"total_rows"`
	SkippedRows   int `db:"skipped_rows" json:"skipped_rows"`
	MatchedRows   int `db:"matched_rows" json:"matched_rows"`
	DuplicateRows int `db:"duplicate_rows" json:"duplicate_rows"`
	NewRows       int `db:"new_rows" json:"new_rows"`
}

// Processed is the number of rows that produced an audit record
func (c BatchCounts) Processed() int {
	return c.MatchedRows + c.DuplicateRows + c.NewRows
}

// Add counts one decided row
func (c *BatchCounts) Add(status MatchStatus) {
	switch status {
	case MatchStatusMatched:
		c.MatchedRows++
	case MatchStatusPossibleDuplicate:
		c.DuplicateRows++
	case MatchStatusNewRecord:
		c.NewRows++
	}
}

type UploadBatch struct {
	ID            uuid.UUID                      `db:"id" json:"id"`
	FileName      string                         `db:"file_name" json:"file_name"`
	UploadedBy    string                         `db:"uploaded_by" json:"uploaded_by"`
	UserID        string                         `db:"user_id" json:"user_id"`
	TemplateID    *uuid.UUID                     `db:"template_id" json:"template_id,omitempty"`
	Status        BatchStatus                    `db:"status" json:"status"`
	ColumnMapping database.JSONB[MappingSummary] `db:"column_mapping" json:"column_mapping"`
	ErrorMessage  *string                        `db:"error_message" json:"error_message,omitempty"`
	BatchCounts
	UploadedAt  time.Time  `db:"uploaded_at" json:"uploaded_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

func (UploadBatch) TableName() string {
	return "upload_batches"
}
