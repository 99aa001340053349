package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/dates"
)

// Person is a known identity. Rows are created only by a NEW RECORD decision.
type Person struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	UID                  string     `db:"uid" json:"uid"`
	LastName             string     `db:"last_name" json:"last_name"`
	FirstName            string     `db:"first_name" json:"first_name"`
	MiddleName           *string    `db:"middle_name" json:"middle_name,omitempty"`
	Suffix               *string    `db:"suffix" json:"suffix,omitempty"`
	Birthday             *time.Time `db:"birthday" json:"birthday,omitempty"`
	Gender               *string    `db:"gender" json:"gender,omitempty"`
	CivilStatus          *string    `db:"civil_status" json:"civil_status,omitempty"`
	Address              *string    `db:"address" json:"address,omitempty"`
	Barangay             *string    `db:"barangay" json:"barangay,omitempty"`
	LastNameNormalized   string     `db:"last_name_normalized" json:"-"`
	FirstNameNormalized  string     `db:"first_name_normalized" json:"-"`
	MiddleNameNormalized string     `db:"middle_name_normalized" json:"-"`
	OriginBatchID        *uuid.UUID `db:"origin_batch_id" json:"origin_batch_id,omitempty"`
	OriginMatchResultID  *uuid.UUID `db:"origin_match_result_id" json:"origin_match_result_id,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

func (Person) TableName() string {
	return "persons"
}

// NormalizeKey lower-cases and trims a name for use as a match key
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize fills the shadow match-key columns from the display values
func (p *Person) Normalize() {
	p.LastNameNormalized = NormalizeKey(p.LastName)
	p.FirstNameNormalized = NormalizeKey(p.FirstName)
	p.MiddleNameNormalized = ""
	if p.MiddleName != nil {
		p.MiddleNameNormalized = NormalizeKey(*p.MiddleName)
	}
}

// BirthdayKey returns the birthday as YYYY-MM-DD, or "" when unknown
func (p Person) BirthdayKey() string {
	if p.Birthday == nil {
		return ""
	}
	return p.Birthday.Format(dates.Layout)
}

// CoreFields returns the person's catalog fields as display strings
func (p Person) CoreFields() map[string]string {
	str := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return map[string]string{
		"uid":          p.UID,
		"last_name":    p.LastName,
		"first_name":   p.FirstName,
		"middle_name":  str(p.MiddleName),
		"suffix":       str(p.Suffix),
		"birthday":     p.BirthdayKey(),
		"gender":       str(p.Gender),
		"civil_status": str(p.CivilStatus),
		"address":      str(p.Address),
		"barangay":     str(p.Barangay),
	}
}
