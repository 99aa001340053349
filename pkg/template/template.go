// Package template applies and validates user-authored mapping templates.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

// Targets returns the names a file column is rewritten to under tmpl: its
// mapped field (if any) and the declared field name when it names a template
// field.
// Mapping keys match case-insensitively, an exact spelling wins.
func Targets(tmpl *models.Template, column string) []string {
	var targets []string

	if target, ok := tmpl.Mappings.Data[column]; ok {
		targets = append(targets, target)
	} else {
		for key, target := range tmpl.Mappings.Data {
			if strings.EqualFold(key, column) {
				targets = append(targets, target)
				break
			}
		}
	}

	for _, f := range tmpl.Fields {
		if strings.EqualFold(f.FieldName, column) {
			targets = append(targets, f.FieldName)
			break
		}
	}

	return targets
}

// Apply rewrites a row through the template. Mapped columns are renamed,
// template field columns take the declared name, everything else is dropped.
// Cell order follows the file.
func Apply(tmpl *models.Template, row record.Row) record.Row {
	out := make(record.Row, 0, len(row))
	for _, cell := range row {
		for _, target := range Targets(tmpl, cell.Column) {
			out = append(out, record.Cell{Column: target, Value: cell.Value})
		}
	}
	return out
}

// ExpectedColumns lists the mapping keys followed by the field names.
func ExpectedColumns(tmpl *models.Template) []string {
	columns := make([]string, 0, len(tmpl.Mappings.Data)+len(tmpl.Fields))
	columns = append(columns, sortedKeys(tmpl.Mappings.Data)...)
	for _, f := range tmpl.Fields {
		columns = append(columns, f.FieldName)
	}
	return columns
}

// ValidateMappings checks that every mapping has a column and a target.
func ValidateMappings(mappings map[string]string) error {
	if len(mappings) == 0 {
		return fmt.Errorf("mappings must contain at least one column")
	}
	for _, key := range sortedKeys(mappings) {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("mapping column names cannot be empty")
		}
		if strings.TrimSpace(mappings[key]) == "" {
			return fmt.Errorf("mapping for column '%s' must name a field", key)
		}
	}
	return nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const (
	msgInvalidFieldName = "Field name can only contain letters, numbers, and underscores (e.g., customer_age, order_total)."
	msgInvalidFieldType = "Field type must be one of: string, integer, date, boolean, or decimal."
)

// ValidateField checks a template field's name and type before it is stored.
func ValidateField(field models.TemplateField) error {
	if !fieldName.MatchString(field.FieldName) {
		return errors.New(msgInvalidFieldName)
	}
	if !ectolinq.Contains(models.FieldTypes, field.FieldType) {
		return errors.New(msgInvalidFieldType)
	}
	return nil
}

// ValidateFields checks every field and rejects names repeated in the list.
func ValidateFields(fields []models.TemplateField) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := ValidateField(f); err != nil {
			return err
		}
		if seen[f.FieldName] {
			return fmt.Errorf("A field named '%s' already exists in this template. Please use a different name.", f.FieldName)
		}
		seen[f.FieldName] = true
	}
	return nil
}
