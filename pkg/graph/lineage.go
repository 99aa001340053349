package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	RelProduced = "PRODUCED"
	RelMatched  = "MATCHED"
	RelCreated  = "CREATED"
)

// Statement is one parameterized Cypher statement
type Statement struct {
	Cypher string
	Params map[string]any
}

// Store runs Cypher against the graph. *Client is the Bolt implementation.
type Store interface {
	Write(ctx context.Context, statements ...Statement) error
	Read(ctx context.Context, stmt Statement) ([]map[string]any, error)
}

// Event is one decision that touched a person
type Event struct {
	BatchID       string  `json:"batch_id"`
	FileName      string  `json:"file_name"`
	MatchResultID string  `json:"match_result_id"`
	Relation      string  `json:"relation"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	DecidedAt     string  `json:"decided_at"`
}

// Lineage keeps (Batch)-[:PRODUCED]->(MatchResult)-[:MATCHED|CREATED]->(Person)
type Lineage struct {
	store  Store
	logger ectologger.Logger
}

var _ importer.Lineage = (*Lineage)(nil)

func NewLineage(store Store, logger ectologger.Logger) *Lineage {
	return &Lineage{
		store:  store,
		logger: logger,
	}
}

// RecordDecision writes the decision and the person it points at. created is
// set only when the decision inserted the person.
func (l *Lineage) RecordDecision(ctx context.Context, batch *models.UploadBatch, result *models.MatchResult, created *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Lineage.RecordDecision")
	defer span.End()

	statements := DecisionStatements(batch, result, created)
	if err := l.store.Write(ctx, statements...); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id":        batch.ID,
			"match_result_id": result.ID,
		}).Error("Failed to record lineage")
		return err
	}
	return nil
}

// DecisionStatements builds the MERGE statements for one decision
func DecisionStatements(batch *models.UploadBatch, result *models.MatchResult, created *models.Person) []Statement {
	statements := []Statement{
		{
			Cypher: `MERGE (b:Batch {id: $batch_id})
SET b.file_name = $file_name, b.user_id = $user_id, b.uploaded_at = $uploaded_at`,
			Params: map[string]any{
				"batch_id":    batch.ID.String(),
				"file_name":   batch.FileName,
				"user_id":     batch.UserID,
				"uploaded_at": formatTime(batch.UploadedAt),
			},
		},
		{
			Cypher: `MATCH (b:Batch {id: $batch_id})
MERGE (r:MatchResult {id: $id})
SET r.status = $status, r.confidence = $confidence, r.uploaded_record_id = $uploaded_record_id, r.created_at = $created_at
MERGE (b)-[:` + RelProduced + `]->(r)`,
			Params: map[string]any{
				"batch_id":           batch.ID.String(),
				"id":                 result.ID.String(),
				"status":             string(result.MatchStatus),
				"confidence":         result.ConfidenceScore,
				"uploaded_record_id": result.UploadedRecordID,
				"created_at":         formatTime(result.CreatedAt),
			},
		},
	}

	if result.MatchedSystemID == nil {
		return statements
	}

	rel := RelMatched
	person := map[string]any{}
	if created != nil {
		rel = RelCreated
		person["last_name"] = created.LastName
		person["first_name"] = created.FirstName
		person["birthday"] = created.BirthdayKey()
	}

	return append(statements, Statement{
		Cypher: `MATCH (r:MatchResult {id: $id})
MERGE (p:Person {uid: $uid})
SET p += $person
MERGE (r)-[:` + rel + `]->(p)`,
		Params: map[string]any{
			"id":     result.ID.String(),
			"uid":    *result.MatchedSystemID,
			"person": person,
		},
	})
}

// PersonHistory lists the decisions that created or matched a person, oldest
// first
func (l *Lineage) PersonHistory(ctx context.Context, uid string) ([]Event, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Lineage.PersonHistory")
	defer span.End()

	rows, err := l.store.Read(ctx, Statement{
		Cypher: `MATCH (b:Batch)-[:` + RelProduced + `]->(r:MatchResult)-[rel]->(p:Person {uid: $uid})
RETURN b.id AS batch_id, b.file_name AS file_name, r.id AS match_result_id, type(rel) AS relation,
       r.status AS status, r.confidence AS confidence, r.created_at AS decided_at
ORDER BY r.created_at`,
		Params: map[string]any{"uid": uid},
	})
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("uid", uid).Error("Failed to read lineage")
		return nil, err
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, Event{
			BatchID:       asString(row["batch_id"]),
			FileName:      asString(row["file_name"]),
			MatchResultID: asString(row["match_result_id"]),
			Relation:      asString(row["relation"]),
			Status:        asString(row["status"]),
			Confidence:    asFloat(row["confidence"]),
			DecidedAt:     asString(row["decided_at"]),
		})
	}
	return events, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
