package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

func testTemplate() *models.Template {
	return &models.Template{
		Name: "barangay roster",
		Mappings: database.NewJSONB(map[string]string{
			"Apelyido":  "last_name",
			"Pangalan":  "first_name",
			"Kaarawan":  "birthday",
			"Household": "household_no",
		}),
		Fields: []models.TemplateField{
			{FieldName: "employee_id", FieldType: models.FieldTypeInteger, IsRequired: true},
			{FieldName: "remarks", FieldType: models.FieldTypeString},
		},
	}
}

func TestApply(t *testing.T) {
	row := record.Row{
		{Column: "pangalan", Value: record.String("Juan")},
		{Column: "Apelyido", Value: record.String("Dela Cruz")},
		{Column: "Unlisted", Value: record.String("dropped")},
		{Column: "employee_id", Value: record.Number(42)},
		{Column: "Household", Value: record.String("H-7")},
	}

	got := Apply(testTemplate(), row)

	assert.Equal(t, record.Row{
		{Column: "first_name", Value: record.String("Juan")},
		{Column: "last_name", Value: record.String("Dela Cruz")},
		{Column: "employee_id", Value: record.Number(42)},
		{Column: "household_no", Value: record.String("H-7")},
	}, got)
}

func TestTargets_ExactSpellingWins(t *testing.T) {
	tmpl := &models.Template{Mappings: database.NewJSONB(map[string]string{
		"NAME": "last_name",
		"name": "first_name",
	})}

	assert.Equal(t, []string{"first_name"}, Targets(tmpl, "name"))
	assert.Equal(t, []string{"last_name"}, Targets(tmpl, "NAME"))
	assert.Empty(t, Targets(tmpl, "other"))
}

func TestTargets_FieldColumnIgnoresCase(t *testing.T) {
	tmpl := testTemplate()

	assert.Equal(t, []string{"employee_id"}, Targets(tmpl, "Employee_ID"))
	assert.Equal(t, []string{"remarks"}, Targets(tmpl, "REMARKS"))
}

func TestExpectedColumns(t *testing.T) {
	assert.Equal(t,
		[]string{"Apelyido", "Household", "Kaarawan", "Pangalan", "employee_id", "remarks"},
		ExpectedColumns(testTemplate()),
	)
}

func TestValidateMappings(t *testing.T) {
	require.NoError(t, ValidateMappings(map[string]string{"Surname": "last_name"}))
	assert.Error(t, ValidateMappings(nil))
	assert.Error(t, ValidateMappings(map[string]string{" ": "last_name"}))
	assert.Error(t, ValidateMappings(map[string]string{"Surname": ""}))
}

func TestValidateValue(t *testing.T) {
	field := func(ft models.FieldType, required bool) models.TemplateField {
		return models.TemplateField{FieldName: "f", FieldType: ft, IsRequired: required}
	}

	tests := []struct {
		name  string
		field models.TemplateField
		value record.Value
		valid bool
		err   string
	}{
		{"optional blank", field(models.FieldTypeInteger, false), record.String("  "), true, ""},
		{"required null", field(models.FieldTypeString, true), record.Null(), false,
			"The field 'f' is required and cannot be empty. Please provide a value."},
		{"string", field(models.FieldTypeString, true), record.String("anything"), true, ""},
		{"integer text", field(models.FieldTypeInteger, false), record.String("42"), true, ""},
		{"integer number", field(models.FieldTypeInteger, false), record.Number(100), true, ""},
		{"integer negative", field(models.FieldTypeInteger, false), record.String("-7"), true, ""},
		{"integer decimal", field(models.FieldTypeInteger, false), record.String("4.2"), false,
			"The field 'f' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed."},
		{"integer fractional number", field(models.FieldTypeInteger, false), record.Number(3.5), false,
			"The field 'f' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed."},
		{"integer word", field(models.FieldTypeInteger, false), record.String("ten"), false,
			"The field 'f' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed."},
		{"integer bool", field(models.FieldTypeInteger, false), record.Bool(true), false,
			"The field 'f' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed."},
		{"decimal", field(models.FieldTypeDecimal, false), record.String("3.14"), true, ""},
		{"decimal leading dot", field(models.FieldTypeDecimal, false), record.String(".5"), true, ""},
		{"decimal exponent", field(models.FieldTypeDecimal, false), record.String("1e3"), true, ""},
		{"decimal hex", field(models.FieldTypeDecimal, false), record.String("0x1p-2"), false,
			"The field 'f' must be a number (e.g., 3.14, 42, 0.5). Please enter a valid numeric value."},
		{"date iso", field(models.FieldTypeDate, false), record.String("2024-01-15"), true, ""},
		{"date us", field(models.FieldTypeDate, false), record.String("01/15/2024"), true, ""},
		{"date long", field(models.FieldTypeDate, false), record.String("January 15, 2024"), true, ""},
		{"date epoch literal", field(models.FieldTypeDate, false), record.String("1970-01-01"), true, ""},
		{"date epoch other spelling", field(models.FieldTypeDate, false), record.String("01/01/1970"), false,
			"The field 'f' must be a valid date (e.g., 2024-01-15, 01/15/2024, or January 15, 2024). The value '01/01/1970' could not be recognized as a date."},
		{"date garbage", field(models.FieldTypeDate, false), record.String("soon"), false,
			"The field 'f' must be a valid date (e.g., 2024-01-15, 01/15/2024, or January 15, 2024). The value 'soon' could not be recognized as a date."},
		{"boolean yes", field(models.FieldTypeBoolean, false), record.String("YES"), true, ""},
		{"boolean n", field(models.FieldTypeBoolean, false), record.String("n"), true, ""},
		{"boolean zero", field(models.FieldTypeBoolean, false), record.Number(0), true, ""},
		{"boolean native", field(models.FieldTypeBoolean, false), record.Bool(false), true, ""},
		{"boolean maybe", field(models.FieldTypeBoolean, false), record.String("maybe"), false,
			"The field 'f' must be a yes/no value. Accepted values: 'true', 'false', 'yes', 'no', '1', '0', 'y', or 'n'."},
		{"unknown type", field("money", false), record.String("12"), false,
			"Field type 'money' is not recognized. Please contact support."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateValue(tt.field, tt.value)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.err, got.Error)
		})
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		name  string
		field models.TemplateField
		err   string
	}{
		{"valid", models.TemplateField{FieldName: "order_total", FieldType: models.FieldTypeDecimal}, ""},
		{"space in name", models.TemplateField{FieldName: "order total", FieldType: models.FieldTypeString},
			"Field name can only contain letters, numbers, and underscores (e.g., customer_age, order_total)."},
		{"empty name", models.TemplateField{FieldType: models.FieldTypeString},
			"Field name can only contain letters, numbers, and underscores (e.g., customer_age, order_total)."},
		{"unknown type", models.TemplateField{FieldName: "price", FieldType: "money"},
			"Field type must be one of: string, integer, date, boolean, or decimal."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateField(tt.field)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.err)
		})
	}
}

func TestValidateFields_NamesAreCaseSensitive(t *testing.T) {
	fields := []models.TemplateField{
		{FieldName: "Region", FieldType: models.FieldTypeString},
		{FieldName: "region", FieldType: models.FieldTypeString},
	}
	assert.NoError(t, ValidateFields(fields))

	fields = append(fields, models.TemplateField{FieldName: "Region", FieldType: models.FieldTypeInteger})
	assert.EqualError(t, ValidateFields(fields),
		"A field named 'Region' already exists in this template. Please use a different name.")
}
