package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// Builders default to the PostgreSQL flavor so placeholders render as $n.

type InsertBuilder = sqlbuilder.InsertBuilder
type UpdateBuilder = sqlbuilder.UpdateBuilder
type DeleteBuilder = sqlbuilder.DeleteBuilder
type SelectBuilder = sqlbuilder.SelectBuilder

func NewInsertBuilder() *InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

func NewUpdateBuilder() *UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func NewSelectBuilder() *SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewCountBuilder selects COUNT(*) from table; callers add the filters
func NewCountBuilder(table string) *SelectBuilder {
	sb := NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	return sb
}

// Now is the database clock, for created_at and updated_at columns
func Now() any {
	return sqlbuilder.Raw("NOW()")
}

// Struct maps a model's db tags to column lists
type Struct struct {
	s *sqlbuilder.Struct
}

func NewStruct(v any) *Struct {
	return &Struct{s: sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)}
}

// SelectFrom selects every tagged column of the model from table
func (s *Struct) SelectFrom(table string) *SelectBuilder {
	return s.s.SelectFrom(table)
}
