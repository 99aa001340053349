package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

// epoch is the date a failed loose parse degrades to in the legacy importer.
const epoch = "1970-01-01"

var numeric = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var booleanWords = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"1": true, "0": true,
	"y": true, "n": true,
}

type ValueResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func valid() ValueResult { return ValueResult{Valid: true} }

func invalid(format string, args ...any) ValueResult {
	return ValueResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// ValidateValue checks one cell against a template field's declared type.
func ValidateValue(field models.TemplateField, value record.Value) ValueResult {
	name := field.FieldName

	if value.IsBlank() {
		if field.IsRequired {
			return invalid("The field '%s' is required and cannot be empty. Please provide a value.", name)
		}
		return valid()
	}

	text := strings.TrimSpace(value.Text())

	switch field.FieldType {
	case models.FieldTypeString:
		return valid()
	case models.FieldTypeInteger:
		if !isNumeric(value) || strings.Contains(text, ".") {
			return invalid("The field '%s' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed.", name)
		}
		return valid()
	case models.FieldTypeDecimal:
		if !isNumeric(value) {
			return invalid("The field '%s' must be a number (e.g., 3.14, 42, 0.5). Please enter a valid numeric value.", name)
		}
		return valid()
	case models.FieldTypeDate:
		t, ok := dates.Parse(text)
		if !ok || (t.Format(dates.Layout) == epoch && text != epoch) {
			return invalid("The field '%s' must be a valid date (e.g., 2024-01-15, 01/15/2024, or January 15, 2024). The value '%s' could not be recognized as a date.", name, value.Text())
		}
		return valid()
	case models.FieldTypeBoolean:
		if value.Kind() == record.KindBool || booleanWords[strings.ToLower(text)] {
			return valid()
		}
		return invalid("The field '%s' must be a yes/no value. Accepted values: 'true', 'false', 'yes', 'no', '1', '0', 'y', or 'n'.", name)
	default:
		return invalid("Field type '%s' is not recognized. Please contact support.", field.FieldType)
	}
}

func isNumeric(value record.Value) bool {
	switch value.Kind() {
	case record.KindNumber:
		return true
	case record.KindString:
		return numeric.MatchString(strings.TrimSpace(value.Text()))
	default:
		return false
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
