// Package matching decides whether an incoming record is a known person, a
// probable duplicate, or someone new.
package matching

import (
	"math"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

// Subject holds the match keys of an incoming record.
type Subject struct {
	LastName   string
	FirstName  string
	MiddleName string
	// Birthday is YYYY-MM-DD or empty
	Birthday string
}

// SubjectFromRecord derives match keys from a normalized record.
func SubjectFromRecord(rec record.Canonical) Subject {
	return Subject{
		LastName:   models.NormalizeKey(rec.Field(catalog.FieldLastName)),
		FirstName:  models.NormalizeKey(rec.Field(catalog.FieldFirstName)),
		MiddleName: models.NormalizeKey(rec.Field(catalog.FieldMiddleName)),
		Birthday:   dates.Format(rec.Field(catalog.FieldBirthday)),
	}
}

// LockKey identifies the set of people the first three rules can confuse.
func (s Subject) LockKey() string {
	return s.LastName + "|" + s.FirstName
}

// Decision is the outcome of matching one record.
type Decision struct {
	Status     models.MatchStatus `json:"status"`
	Confidence float64            `json:"confidence"`
	MatchedID  *string            `json:"matched_id"`
	Rule       *string            `json:"rule"`
	Person     *models.Person     `json:"-"`
}

// NewRecord is the decision when no rule fires.
func NewRecord() Decision {
	return Decision{Status: models.MatchStatusNewRecord}
}

type Engine struct {
	rules []Rule
}

// NewEngine builds an engine over rules, evaluated in the given order.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// NewDefaultEngine builds the standard four rule chain.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultRules(NewScorer())...)
}

// Rules returns the chain in evaluation order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Match runs the chain. The first rule to select a candidate decides; later
// rules are not evaluated.
func (e *Engine) Match(subject Subject, candidates []models.Person) Decision {
	for _, rule := range e.rules {
		person, ok := rule.Match(subject, candidates)
		if !ok {
			continue
		}
		name := rule.Name()
		uid := person.UID
		return Decision{
			Status:     rule.Status(),
			Confidence: rule.Confidence(),
			MatchedID:  &uid,
			Rule:       &name,
			Person:     person,
		}
	}
	return NewRecord()
}

// Breakdown compares every uploaded core field with the matched person. Null
// and empty values are treated as equal.
func Breakdown(rec record.Canonical, person models.Person) *models.FieldBreakdown {
	existing := person.CoreFields()
	breakdown := &models.FieldBreakdown{Fields: map[string]models.FieldComparison{}}

	for field, uploaded := range rec.Core {
		if uploaded == nil || field == catalog.FieldSecondName {
			continue
		}
		var existingValue *string
		if v := existing[field]; v != "" {
			existingValue = &v
		}

		status := "mismatch"
		if *uploaded == existing[field] {
			status = "match"
			breakdown.MatchedFields++
		}
		breakdown.TotalFields++
		breakdown.Fields[field] = models.FieldComparison{
			Status:   status,
			Uploaded: uploaded,
			Existing: existingValue,
		}
	}

	if breakdown.TotalFields > 0 {
		breakdown.Agreement = math.Round(float64(breakdown.MatchedFields)/float64(breakdown.TotalFields)*10000) / 100
	}
	return breakdown
}
