package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/matchresult"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type BatchRepo interface {
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.UploadBatch, error)
	List(ctx context.Context, userID string, page models.Page) ([]models.UploadBatch, int, error)
}

type ResultRepo interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID, filter matchresult.Filter, page models.Page) ([]models.MatchResult, int, error)
	ListByMatchedID(ctx context.Context, uid string) ([]models.MatchResult, error)
}

// BatchHandler exposes upload batches and their match results
type BatchHandler struct {
	batches BatchRepo
	results ResultRepo
	logger  ectologger.Logger
}

func NewBatchHandler(batches BatchRepo, results ResultRepo, logger ectologger.Logger) *BatchHandler {
	return &BatchHandler{
		batches: batches,
		results: results,
		logger:  logger,
	}
}

// Register registers batch routes
func (h *BatchHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/results", h.Results)
}

// List pages through the caller's batches, newest first
func (h *BatchHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.List")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	page, err := BindPage(c)
	if err != nil {
		return err
	}

	batches, total, err := h.batches.List(ctx, userID, page)
	if err != nil {
		return err
	}
	return SuccessResponse(c, models.NewListResponse(batches, total, page))
}

func (h *BatchHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Get")
	defer span.End()

	batch, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, batch)
}

// Results pages through a batch's decisions, optionally by status
func (h *BatchHandler) Results(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Results")
	defer span.End()

	batch, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	page, err := BindPage(c)
	if err != nil {
		return err
	}

	filter := matchresult.Filter{Status: models.MatchStatus(c.QueryParam("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		return BadRequest("status must be one of: MATCHED, POSSIBLE DUPLICATE, NEW RECORD")
	}

	results, total, err := h.results.ListByBatch(ctx, batch.ID, filter, page)
	if err != nil {
		return err
	}
	return SuccessResponse(c, models.NewListResponse(results, total, page))
}

func (h *BatchHandler) owned(ctx context.Context, c echo.Context) (*models.UploadBatch, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return nil, err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.batches.GetByID(ctx, userID, id)
}
