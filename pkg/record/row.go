package record

import "strings"

// Cell is one column of an uploaded row, keyed by the header as spelled in
// the file.
type Cell struct {
	Column string `json:"column"`
	Value  Value  `json:"value"`
}

// Row preserves the column order of the source file.
type Row []Cell

// NewRow zips a header with cell values. Missing trailing cells become Null.
func NewRow(header []string, values []Value) Row {
	row := make(Row, 0, len(header))
	for i, col := range header {
		v := Null()
		if i < len(values) {
			v = values[i]
		}
		row = append(row, Cell{Column: col, Value: v})
	}
	return row
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, c := range r {
		cols[i] = c.Column
	}
	return cols
}

// Get returns the value of the first cell with exactly this column name.
func (r Row) Get(column string) (Value, bool) {
	for _, c := range r {
		if c.Column == column {
			return c.Value, true
		}
	}
	return Null(), false
}

// GetFold is Get with case-insensitive column matching.
func (r Row) GetFold(column string) (Value, bool) {
	for _, c := range r {
		if strings.EqualFold(c.Column, column) {
			return c.Value, true
		}
	}
	return Null(), false
}

// IsEmpty reports whether every cell is blank.
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.Value.IsBlank() {
			return false
		}
	}
	return true
}
