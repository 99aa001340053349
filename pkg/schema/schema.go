// Package schema checks an uploaded header row against the columns a file is
// allowed to carry.
package schema

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
	"github.com/Ramsey-B/fern/pkg/template"
)

// Report lists every problem found with a header row.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Expected []string `json:"expected"`
	Missing  []string `json:"missing"`
	Extra    []string `json:"extra"`
}

// RowIssue is a template field value that failed its type check.
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Validator struct {
	catalog *catalog.Catalog
}

func NewValidator(cat *catalog.Catalog) *Validator {
	return &Validator{catalog: cat}
}

// ValidateColumns compares the file's columns with the template's expected
// columns, or with the catalog when tmpl is nil. Comparison ignores case.
func (v *Validator) ValidateColumns(tmpl *models.Template, actual []string) Report {
	if tmpl != nil {
		return validateAgainst(template.ExpectedColumns(tmpl), actual)
	}
	return v.validateCatalog(actual)
}

func validateAgainst(expected, actual []string) Report {
	expectedLower := lowerSet(expected)
	actualLower := lowerSet(actual)

	report := newReport(expected)

	for _, col := range uniqueLower(expected) {
		if !actualLower[col] {
			report.Missing = append(report.Missing, col)
			report.Errors = append(report.Errors, fmt.Sprintf("Required column '%s' is missing from your file. Please add this column to proceed.", col))
		}
	}
	for _, col := range uniqueLower(actual) {
		if !expectedLower[col] {
			report.Extra = append(report.Extra, col)
			report.Errors = append(report.Errors, fmt.Sprintf("Column '%s' is not expected in this template. Please remove it or update your template.", col))
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

func (v *Validator) validateCatalog(actual []string) Report {
	report := newReport(v.catalog.AllVariations())

	present := map[string]bool{}
	for _, col := range actual {
		if field, ok := v.catalog.Lookup(col); ok {
			present[field] = true
		}
	}

	for _, field := range v.catalog.RequiredFields() {
		if present[field] {
			continue
		}
		variations := v.catalog.Variations(field)
		report.Missing = append(report.Missing, field)
		report.Errors = append(report.Errors, fmt.Sprintf(
			"Required column for '%s' is missing. Please include one of: '%s'.",
			field, strings.Join(variations, "', '"),
		))
	}

	for _, col := range actual {
		if v.catalog.IsCoreField(col) {
			continue
		}
		report.Extra = append(report.Extra, col)
		report.Errors = append(report.Errors, fmt.Sprintf("Column '%s' is not a recognized core field. If this is a custom field, please create a template that includes it.", col))
	}

	report.Valid = len(report.Errors) == 0
	return report
}

// ValidateSample type-checks template field values over the first limit rows.
// Rows past the limit are not inspected. A limit of zero or less checks every
// row.
func (v *Validator) ValidateSample(tmpl *models.Template, rows []record.Row, limit int) []RowIssue {
	if tmpl == nil || len(tmpl.Fields) == 0 {
		return nil
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	var issues []RowIssue
	for i, row := range rows {
		for _, field := range tmpl.Fields {
			value, _ := row.GetFold(field.FieldName)
			result := template.ValidateValue(field, value)
			if !result.Valid {
				issues = append(issues, RowIssue{Row: i + 1, Field: field.FieldName, Message: result.Error})
			}
		}
	}
	return issues
}

func newReport(expected []string) Report {
	return Report{
		Errors:   []string{},
		Expected: append([]string{}, expected...),
		Missing:  []string{},
		Extra:    []string{},
	}
}

func lowerSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return set
}

// uniqueLower lower-cases cols, keeping the first occurrence of each.
func uniqueLower(cols []string) []string {
	lowered := ectolinq.Map(cols, func(c string) string {
		return strings.ToLower(strings.TrimSpace(c))
	})
	out := make([]string, 0, len(lowered))
	for _, c := range lowered {
		if !ectolinq.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
