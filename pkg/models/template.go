package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDecimal FieldType = "decimal"
)

// FieldTypes lists the supported template field types
var FieldTypes = []FieldType{FieldTypeString, FieldTypeInteger, FieldTypeDate, FieldTypeBoolean, FieldTypeDecimal}

// Template is a user-authored column mapping plus custom typed fields
type Template struct {
	ID        uuid.UUID                         `db:"id" json:"id"`
	UserID    string                            `db:"user_id" json:"user_id"`
	Name      string                            `db:"name" json:"name"`
	Mappings  database.JSONB[map[string]string] `db:"mappings" json:"mappings"`
	Fields    []TemplateField                   `db:"-" json:"fields"`
	CreatedAt time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time                         `db:"updated_at" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

type TemplateField struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TemplateID uuid.UUID `db:"template_id" json:"template_id"`
	FieldName  string    `db:"field_name" json:"field_name"`
	FieldType  FieldType `db:"field_type" json:"field_type"`
	IsRequired bool      `db:"is_required" json:"is_required"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (TemplateField) TableName() string {
	return "template_fields"
}
