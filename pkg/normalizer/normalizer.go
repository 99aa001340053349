// Package normalizer turns uploaded rows into canonical records.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
	"github.com/Ramsey-B/fern/pkg/template"
)

// AddressSeparator joins address parts spread over several columns
const AddressSeparator = ", "

var (
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	nonKeyChars   = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRun = regexp.MustCompile(`_+`)
)

type Normalizer struct {
	catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Normalizer {
	return &Normalizer{catalog: cat}
}

// Normalize maps one row onto core and dynamic fields. It never rejects a
// row; use HasRequired to filter rows that cannot be matched.
func (n *Normalizer) Normalize(row record.Row, tmpl *models.Template) record.Canonical {
	if tmpl != nil {
		row = template.Apply(tmpl, row)
	}

	rec := record.NewCanonical()
	var addressParts []string

	for i, cell := range row {
		value := cell.Value.Trimmed()

		field, ok := n.field(cell.Column, tmpl != nil)
		if !ok {
			rec.Dynamic[n.dynamicKey(cell.Column, i)] = value
			continue
		}

		if value.IsNull() {
			continue
		}
		text := value.Text()

		switch {
		case field == catalog.FieldAddress:
			addressParts = append(addressParts, text)
		case !rec.Has(field):
			rec.Set(field, text)
		}
	}

	if len(addressParts) > 0 {
		rec.Set(catalog.FieldAddress, strings.Join(addressParts, AddressSeparator))
	}

	foldSecondName(rec)

	return rec
}

// field resolves a column to a canonical field. Template targets may also
// name a canonical field directly.
func (n *Normalizer) field(column string, templated bool) (string, bool) {
	if field, ok := n.catalog.Lookup(column); ok {
		return field, true
	}
	if templated && n.catalog.IsField(column) {
		return column, true
	}
	return "", false
}

// foldSecondName merges the second given name into first_name.
func foldSecondName(rec record.Canonical) {
	second := rec.Field(catalog.FieldSecondName)
	delete(rec.Core, catalog.FieldSecondName)
	if second == "" || !rec.Has(catalog.FieldFirstName) {
		return
	}
	rec.Set(catalog.FieldFirstName, rec.Field(catalog.FieldFirstName)+" "+second)
}

// dynamicKey keeps dynamic keys disjoint from core field names and non-empty.
func (n *Normalizer) dynamicKey(column string, index int) string {
	key := DynamicKey(column)
	if key == "" {
		return "column_" + strconv.Itoa(index+1)
	}
	if n.catalog.IsField(key) {
		return "custom_" + key
	}
	return key
}

// HasRequired reports whether every required identity field is present.
func (n *Normalizer) HasRequired(rec record.Canonical) bool {
	for _, field := range n.catalog.RequiredFields() {
		if !rec.Has(field) {
			return false
		}
	}
	return true
}

// DynamicKey converts an arbitrary column name into a snake_case key:
// CustomEmployeeID -> custom_employee_id.
func DynamicKey(column string) string {
	key := camelBoundary.ReplaceAllString(column, "${1}_${2}")
	key = strings.ToLower(key)
	key = nonKeyChars.ReplaceAllString(key, "_")
	key = underscoreRun.ReplaceAllString(key, "_")
	return strings.Trim(key, "_")
}

// Summarize describes how the columns of a row are interpreted
func (n *Normalizer) Summarize(row record.Row, tmpl *models.Template) models.MappingSummary {
	summary := models.MappingSummary{
		CoreFieldsMapped: map[string]string{},
		DynamicFields:    map[string]string{},
		SkippedColumns:   []string{},
	}

	for i, cell := range row {
		column := cell.Column
		if tmpl != nil {
			targets := template.Targets(tmpl, column)
			if len(targets) == 0 {
				summary.SkippedColumns = append(summary.SkippedColumns, column)
				continue
			}
			column = targets[0]
		}

		if field, ok := n.field(column, tmpl != nil); ok {
			if field == catalog.FieldSecondName {
				field = catalog.FieldFirstName
			}
			summary.CoreFieldsMapped[cell.Column] = field
			continue
		}
		summary.DynamicFields[cell.Column] = n.dynamicKey(column, i)
	}

	return summary
}
