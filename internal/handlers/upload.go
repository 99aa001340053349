package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/spreadsheet"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Importer runs an upload through the matching pipeline
type Importer interface {
	Upload(ctx context.Context, upload importer.Upload) (*importer.Result, error)
}

// TemplateGetter loads a caller's template
type TemplateGetter interface {
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Template, error)
}

// UploadHandler accepts spreadsheets and JSON rows
type UploadHandler struct {
	importer  Importer
	templates TemplateGetter
	reader    *spreadsheet.Reader
	logger    ectologger.Logger
}

func NewUploadHandler(imp Importer, templates TemplateGetter, reader *spreadsheet.Reader, logger ectologger.Logger) *UploadHandler {
	return &UploadHandler{
		importer:  imp,
		templates: templates,
		reader:    reader,
		logger:    logger,
	}
}

// Register registers upload routes
func (h *UploadHandler) Register(g *echo.Group) {
	g.POST("", h.UploadFile)
	g.POST("/rows", h.UploadRows)
}

// UploadFile imports a multipart "file" with an optional "template_id"
func (h *UploadHandler) UploadFile(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "UploadHandler.UploadFile")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return BadRequest("a file is required in the 'file' form field")
	}

	tmpl, err := h.template(ctx, userID, c.FormValue("template_id"))
	if err != nil {
		return err
	}

	src, err := header.Open()
	if err != nil {
		return BadRequest("unable to open the uploaded file")
	}
	defer src.Close()

	file, err := h.reader.Read(ctx, header.Filename, header.Size, src)
	if err != nil {
		return err
	}

	return h.run(ctx, c, importer.Upload{
		FileName:   file.Name,
		UploadedBy: appctx.GetUserName(ctx),
		UserID:     userID,
		Template:   tmpl,
		Columns:    file.Columns(),
		Rows:       file.Rows,
	})
}

// UploadRows imports rows sent as JSON
func (h *UploadHandler) UploadRows(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "UploadHandler.UploadRows")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req models.RowsUpload
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	var tmpl *models.Template
	if req.TemplateID != nil {
		if tmpl, err = h.templates.GetByID(ctx, userID, *req.TemplateID); err != nil {
			return err
		}
	}

	rows := req.Records()
	if len(rows) == 0 {
		return spreadsheet.NoDataRows()
	}

	return h.run(ctx, c, importer.Upload{
		FileName:   req.FileName,
		UploadedBy: appctx.GetUserName(ctx),
		UserID:     userID,
		Template:   tmpl,
		Columns:    req.Columns,
		Rows:       rows,
	})
}

func (h *UploadHandler) run(ctx context.Context, c echo.Context, upload importer.Upload) error {
	result, err := h.importer.Upload(ctx, upload)
	if err != nil {
		if result != nil && httperror.IsHTTPError(err) {
			return httperror.ToHTTPError(err).AddMetaValue("batch_id", result.Batch.ID)
		}
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   result.Batch.ID,
		"file_name":  result.Batch.FileName,
		"total_rows": result.Batch.TotalRows,
		"warnings":   len(result.Warnings),
	}).Info("Upload processed")
	return c.JSON(http.StatusCreated, result)
}

func (h *UploadHandler) template(ctx context.Context, userID, raw string) (*models.Template, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, BadRequest("invalid template_id: must be a valid UUID")
	}
	return h.templates.GetByID(ctx, userID, id)
}
