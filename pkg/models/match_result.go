package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/record"
)

type MatchStatus string

const (
	MatchStatusMatched           MatchStatus = "MATCHED"
	MatchStatusPossibleDuplicate MatchStatus = "POSSIBLE DUPLICATE"
	MatchStatusNewRecord         MatchStatus = "NEW RECORD"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusMatched, MatchStatusPossibleDuplicate, MatchStatusNewRecord:
		return true
	}
	return false
}

// FieldComparison describes one core field of an uploaded row against the
// matched person
type FieldComparison struct {
	Status   string  `json:"status"` // match, mismatch
	Uploaded *string `json:"uploaded"`
	Existing *string `json:"existing"`
}

// FieldBreakdown compares every uploaded core field with the matched person.
// Agreement is the share of compared fields that match, as a percentage.
type FieldBreakdown struct {
	TotalFields   int                        `json:"total_fields"`
	MatchedFields int                        `json:"matched_fields"`
	Agreement     float64                    `json:"agreement"`
	Fields        map[string]FieldComparison `json:"fields"`
}

// MatchResult is the append-only audit record written for every matched row
type MatchResult struct {
	ID                 uuid.UUID                               `db:"id" json:"id"`
	BatchID            uuid.UUID                               `db:"batch_id" json:"batch_id"`
	UploadedRecordID   string                                  `db:"uploaded_record_id" json:"uploaded_record_id"`
	UploadedLastName   string                                  `db:"uploaded_last_name" json:"uploaded_last_name"`
	UploadedFirstName  string                                  `db:"uploaded_first_name" json:"uploaded_first_name"`
	UploadedMiddleName *string                                 `db:"uploaded_middle_name" json:"uploaded_middle_name,omitempty"`
	MatchStatus        MatchStatus                             `db:"match_status" json:"match_status"`
	ConfidenceScore    float64                                 `db:"confidence_score" json:"confidence_score"`
	MatchedSystemID    *string                                 `db:"matched_system_id" json:"matched_system_id,omitempty"`
	Rule               *string                                 `db:"rule" json:"rule,omitempty"`
	FieldBreakdown     database.JSONB[*FieldBreakdown]         `db:"field_breakdown" json:"field_breakdown,omitempty"`
	DynamicFields      database.JSONB[map[string]record.Value] `db:"dynamic_fields" json:"dynamic_fields,omitempty"`
	CreatedAt          time.Time                               `db:"created_at" json:"created_at"`
}

func (MatchResult) TableName() string {
	return "match_results"
}
