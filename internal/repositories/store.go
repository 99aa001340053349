// Package repositories joins the per-table repositories into the record
// store the importer works against.
package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/matchresult"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RecordStore keeps persons and their match results in Postgres.
type RecordStore struct {
	persons *person.Repository
	results *matchresult.Repository
}

var _ importer.Store = (*RecordStore)(nil)

func NewRecordStore(persons *person.Repository, results *matchresult.Repository) *RecordStore {
	return &RecordStore{
		persons: persons,
		results: results,
	}
}

func (s *RecordStore) FindCandidates(ctx context.Context, criteria importer.Criteria) ([]models.Person, error) {
	return s.persons.FindCandidates(ctx, criteria)
}

func (s *RecordStore) InsertPerson(ctx context.Context, p *models.Person) error {
	return s.persons.Insert(ctx, p)
}

func (s *RecordStore) RecordAudit(ctx context.Context, result *models.MatchResult) error {
	return s.results.Create(ctx, result)
}

func (s *RecordStore) LinkPersonToAudit(ctx context.Context, personID, auditID uuid.UUID) error {
	return s.persons.LinkToAudit(ctx, personID, auditID)
}
