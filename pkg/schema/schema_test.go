package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

func testTemplate() *models.Template {
	return &models.Template{
		Mappings: database.NewJSONB(map[string]string{
			"Apelyido": "last_name",
			"Pangalan": "first_name",
		}),
		Fields: []models.TemplateField{
			{FieldName: "employee_id", FieldType: models.FieldTypeInteger, IsRequired: true},
			{FieldName: "hired_on", FieldType: models.FieldTypeDate},
		},
	}
}

func TestValidateColumns_TemplateExactMatchAnyOrderAnyCase(t *testing.T) {
	v := NewValidator(catalog.Default())

	report := v.ValidateColumns(testTemplate(), []string{"HIRED_ON", "pangalan", "Employee_ID", "apelyido"})

	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Extra)
	assert.Equal(t, []string{"Apelyido", "Pangalan", "employee_id", "hired_on"}, report.Expected)
}

func TestValidateColumns_TemplateCollectsEverything(t *testing.T) {
	v := NewValidator(catalog.Default())

	report := v.ValidateColumns(testTemplate(), []string{"Apelyido", "Nickname", "Extra Col"})

	assert.False(t, report.Valid)
	assert.Equal(t, []string{"pangalan", "employee_id", "hired_on"}, report.Missing)
	assert.Equal(t, []string{"nickname", "extra col"}, report.Extra)
	assert.Equal(t, []string{
		"Required column 'pangalan' is missing from your file. Please add this column to proceed.",
		"Required column 'employee_id' is missing from your file. Please add this column to proceed.",
		"Required column 'hired_on' is missing from your file. Please add this column to proceed.",
		"Column 'nickname' is not expected in this template. Please remove it or update your template.",
		"Column 'extra col' is not expected in this template. Please remove it or update your template.",
	}, report.Errors)
}

func TestValidateColumns_Idempotent(t *testing.T) {
	v := NewValidator(catalog.Default())
	actual := []string{"Apelyido", "Nickname"}

	first := v.ValidateColumns(testTemplate(), actual)
	second := v.ValidateColumns(testTemplate(), actual)
	assert.Equal(t, first, second)

	first = v.ValidateColumns(nil, actual)
	second = v.ValidateColumns(nil, actual)
	assert.Equal(t, first, second)
}

func TestValidateColumns_Catalog(t *testing.T) {
	cat := catalog.Default()
	v := NewValidator(cat)

	report := v.ValidateColumns(nil, []string{"SURNAME", "fname", "DOB", "city", "street"})
	assert.True(t, report.Valid)
	assert.Equal(t, cat.AllVariations(), report.Expected)

	report = v.ValidateColumns(nil, []string{"Surname", "Hobby"})
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"first_name"}, report.Missing)
	assert.Equal(t, []string{"Hobby"}, report.Extra)
	assert.Equal(t, []string{
		"Required column for 'first_name' is missing. Please include one of: 'firstname', 'FirstName', 'first_name', 'fname'.",
		"Column 'Hobby' is not a recognized core field. If this is a custom field, please create a template that includes it.",
	}, report.Errors)
}

func TestValidateColumns_CatalogSecondNameDoesNotSatisfyFirstName(t *testing.T) {
	v := NewValidator(catalog.Default())

	report := v.ValidateColumns(nil, []string{"lastname", "secondname"})
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"first_name"}, report.Missing)
}

func TestValidateSample(t *testing.T) {
	v := NewValidator(catalog.Default())
	rows := []record.Row{
		{{Column: "employee_id", Value: record.String("12")}, {Column: "hired_on", Value: record.String("2024-01-15")}},
		{{Column: "employee_id", Value: record.String("1.5")}, {Column: "hired_on", Value: record.String("never")}},
		{{Column: "Employee_ID", Value: record.Null()}},
	}

	issues := v.ValidateSample(testTemplate(), rows, 0)
	assert.Equal(t, []RowIssue{
		{Row: 2, Field: "employee_id", Message: "The field 'employee_id' must be a whole number (e.g., 1, 42, 100). Decimal values are not allowed."},
		{Row: 2, Field: "hired_on", Message: "The field 'hired_on' must be a valid date (e.g., 2024-01-15, 01/15/2024, or January 15, 2024). The value 'never' could not be recognized as a date."},
		{Row: 3, Field: "employee_id", Message: "The field 'employee_id' is required and cannot be empty. Please provide a value."},
	}, issues)

	assert.Empty(t, v.ValidateSample(testTemplate(), rows, 1))
	assert.Nil(t, v.ValidateSample(nil, rows, 10))
}
