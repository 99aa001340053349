package matchresult

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "match_results"

var matchResultStruct = database.NewStruct(new(models.MatchResult))

// Filter narrows a batch's results
type Filter struct {
	Status models.MatchStatus `query:"status"`
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit record.
func (r *Repository) Create(ctx context.Context, result *models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.Create")
	defer span.End()

	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}

	ib := database.NewInsertBuilder().
		InsertInto(tableName).
		Cols(
			"id", "batch_id", "uploaded_record_id", "uploaded_last_name", "uploaded_first_name",
			"uploaded_middle_name", "match_status", "confidence_score", "matched_system_id", "rule",
			"field_breakdown", "dynamic_fields", "created_at",
		).
		Values(
			result.ID, result.BatchID, result.UploadedRecordID, result.UploadedLastName, result.UploadedFirstName,
			result.UploadedMiddleName, result.MatchStatus, result.ConfidenceScore, result.MatchedSystemID, result.Rule,
			result.FieldBreakdown, result.DynamicFields, database.Now(),
		).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&result.CreatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id":           result.BatchID,
			"uploaded_record_id": result.UploadedRecordID,
		}).Error("failed to create match result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match result")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"match_result_id": result.ID,
		"match_status":    result.MatchStatus,
	}).Debugf("Created %s", tableName)
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.GetByID")
	defer span.End()

	sb := matchResultStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var result models.MatchResult
	err := r.db.Active(ctx).GetContext(ctx, &result, query, args...)
	if database.IsNoRows(err) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "match result %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("match_result_id", id).Error("failed to get match result")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match result")
	}

	return &result, nil
}

// ListByBatch pages through a batch's results in the order they were written.
func (r *Repository) ListByBatch(ctx context.Context, batchID uuid.UUID, filter Filter, page models.Page) ([]models.MatchResult, int, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.ListByBatch")
	defer span.End()

	page = page.Normalize()

	countSb := database.NewCountBuilder(tableName)
	countSb.Where(countSb.Equal("batch_id", batchID))
	sb := matchResultStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("batch_id", batchID))
	if filter.Status != "" {
		countSb.Where(countSb.Equal("match_status", filter.Status))
		sb.Where(sb.Equal("match_status", filter.Status))
	}

	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.Active(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("failed to count match results")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match results")
	}

	sb.OrderBy("created_at", "id")
	sb.Limit(page.PageSize).Offset(page.Offset())

	query, args := sb.Build()
	var results []models.MatchResult
	if err := r.db.Active(ctx).SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("failed to list match results")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match results")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":     batchID,
		"result_count": len(results),
	}).Debugf("Listed %s", tableName)
	return results, total, nil
}

// ListByMatchedID returns every decision that pointed at a person uid.
func (r *Repository) ListByMatchedID(ctx context.Context, uid string) ([]models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.ListByMatchedID")
	defer span.End()

	sb := matchResultStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("matched_system_id", uid))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var results []models.MatchResult
	if err := r.db.Active(ctx).SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("uid", uid).Error("failed to list match results for person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match results for person")
	}

	return results, nil
}

// RepointMatchedID moves decisions from removed duplicate persons to the
// person that was kept.
func (r *Repository) RepointMatchedID(ctx context.Context, from []string, to string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.RepointMatchedID")
	defer span.End()

	if len(from) == 0 {
		return 0, nil
	}
	values := make([]any, len(from))
	for i, uid := range from {
		values[i] = uid
	}

	ub := database.NewUpdateBuilder()
	ub.Update(tableName).
		Set(ub.Assign("matched_system_id", to)).
		Where(ub.In("matched_system_id", values...))

	query, args := ub.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("uid", to).Error("failed to repoint match results")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint match results")
	}

	updated, _ := result.RowsAffected()
	return updated, nil
}

// DeleteAll removes every audit record.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchResultRepository.DeleteAll")
	defer span.End()

	result, err := r.db.Active(ctx).ExecContext(ctx, "DELETE FROM "+tableName)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to purge match results")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to purge match results")
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
