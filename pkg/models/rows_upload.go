package models

import (
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/record"
)

// RowsUpload is a spreadsheet sent as JSON. Cells keep their JSON type so
// numbers and booleans reach validation untouched.
type RowsUpload struct {
	FileName   string           `json:"file_name" validate:"required"`
	TemplateID *uuid.UUID       `json:"template_id,omitempty"`
	Columns    []string         `json:"columns" validate:"required,min=1"`
	Rows       [][]record.Value `json:"rows" validate:"required,min=1"`
}

// Records zips every row with the header. Rows with no values are dropped.
func (u RowsUpload) Records() []record.Row {
	rows := make([]record.Row, 0, len(u.Rows))
	for _, values := range u.Rows {
		row := record.NewRow(u.Columns, values)
		if row.IsEmpty() {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
