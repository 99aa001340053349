package batch

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

const tableName = "upload_batches"

var batchStruct = database.NewStruct(new(models.UploadBatch))

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

// Create opens a batch in the PROCESSING state.
func (r *Repository) Create(ctx context.Context, batch *models.UploadBatch) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Create")
	defer span.End()

	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusProcessing
	}

	ib := database.NewInsertBuilder().
		InsertInto(tableName).
		Cols("id", "file_name", "uploaded_by", "user_id", "template_id", "status", "column_mapping", "uploaded_at").
		Values(batch.ID, batch.FileName, batch.UploadedBy, batch.UserID, batch.TemplateID, batch.Status, batch.ColumnMapping, database.Now()).
		Returning("uploaded_at")

	query, args := ib.Build()
	if err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&batch.UploadedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id":  batch.ID,
			"file_name": batch.FileName,
		}).Error("failed to create upload batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create upload batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":  batch.ID,
		"file_name": batch.FileName,
	}).Debugf("Created %s", tableName)
	return nil
}

// Complete stores the final counters of a batch.
func (r *Repository) Complete(ctx context.Context, batch *models.UploadBatch) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Complete")
	defer span.End()

	return r.finish(ctx, batch)
}

// Fail stores the failure message and the counters reached before it.
func (r *Repository) Fail(ctx context.Context, batch *models.UploadBatch) error {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.Fail")
	defer span.End()

	return r.finish(ctx, batch)
}

func (r *Repository) finish(ctx context.Context, batch *models.UploadBatch) error {
	ub := database.NewUpdateBuilder()
	ub.Update(tableName).
		Set(
			ub.Assign("status", batch.Status),
			ub.Assign("error_message", batch.ErrorMessage),
			ub.Assign("total_rows", batch.TotalRows),
			ub.Assign("skipped_rows", batch.SkippedRows),
			ub.Assign("matched_rows", batch.MatchedRows),
			ub.Assign("duplicate_rows", batch.DuplicateRows),
			ub.Assign("new_rows", batch.NewRows),
			ub.Assign("completed_at", batch.CompletedAt),
		).
		Where(ub.Equal("id", batch.ID))

	query, args := ub.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		var rows int64
		rows, err = result.RowsAffected()
		if err == nil && rows == 0 {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "upload batch %s does not exist", batch.ID)
		}
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batch.ID,
			"status":   batch.Status,
		}).Error("failed to update upload batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update upload batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.ID,
		"status":   batch.Status,
	}).Debugf("Updated %s", tableName)
	return nil
}

// GetByID returns a batch owned by userID.
func (r *Repository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.UploadBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.GetByID")
	defer span.End()

	sb := batchStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("id", id), sb.Equal("user_id", userID))

	query, args := sb.Build()
	var batch models.UploadBatch
	err := r.db.Active(ctx).GetContext(ctx, &batch, query, args...)
	if database.IsNoRows(err) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "upload batch %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", id).Error("failed to get upload batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get upload batch")
	}

	return &batch, nil
}

// List pages through a user's batches, newest first.
func (r *Repository) List(ctx context.Context, userID string, page models.Page) ([]models.UploadBatch, int, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.List")
	defer span.End()

	page = page.Normalize()

	countSb := database.NewCountBuilder(tableName)
	countSb.Where(countSb.Equal("user_id", userID))
	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.Active(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count upload batches")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count upload batches")
	}

	sb := batchStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("uploaded_at").Desc()
	sb.Limit(page.PageSize).Offset(page.Offset())

	query, args := sb.Build()
	var batches []models.UploadBatch
	if err := r.db.Active(ctx).SelectContext(ctx, &batches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list upload batches")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list upload batches")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_count": len(batches),
	}).Debugf("Listed %s", tableName)
	return batches, total, nil
}

// DeleteAll removes every batch along with its match results.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "BatchRepository.DeleteAll")
	defer span.End()

	result, err := r.db.Active(ctx).ExecContext(ctx, "DELETE FROM "+tableName)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to purge upload batches")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to purge upload batches")
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
