package importer

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Scope selects how much of the population is offered to the match engine.
type Scope string

const (
	// ScopeAll offers every known person
	ScopeAll Scope = "all"
	// ScopeLastInitial offers persons whose last name shares the first letter
	ScopeLastInitial Scope = "last_initial"
)

// ParseScope falls back to ScopeAll for unknown values
func ParseScope(s string) Scope {
	if Scope(s) == ScopeLastInitial {
		return ScopeLastInitial
	}
	return ScopeAll
}

// Criteria narrows candidate retrieval. Names are normalized match keys.
type Criteria struct {
	LastName  string
	FirstName string
	Scope     Scope
}

// Store holds the person population and the audit trail of decisions.
// Candidates are returned oldest first.
type Store interface {
	FindCandidates(ctx context.Context, criteria Criteria) ([]models.Person, error)
	InsertPerson(ctx context.Context, person *models.Person) error
	RecordAudit(ctx context.Context, result *models.MatchResult) error
	LinkPersonToAudit(ctx context.Context, personID, auditID uuid.UUID) error
}

// Batches tracks the lifecycle of an upload.
type Batches interface {
	Create(ctx context.Context, batch *models.UploadBatch) error
	Complete(ctx context.Context, batch *models.UploadBatch) error
	Fail(ctx context.Context, batch *models.UploadBatch) error
}

// Transactor runs fn in a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher announces decisions and finished batches to other services.
type Publisher interface {
	MatchDecided(ctx context.Context, batch *models.UploadBatch, result *models.MatchResult) error
	BatchFinished(ctx context.Context, batch *models.UploadBatch) error
}

// Lineage records where persons and decisions came from.
type Lineage interface {
	RecordDecision(ctx context.Context, batch *models.UploadBatch, result *models.MatchResult, created *models.Person) error
}
