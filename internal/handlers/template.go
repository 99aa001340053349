package handlers

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/template"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// TemplateRepo stores templates and their fields
type TemplateRepo interface {
	Create(ctx context.Context, tmpl *models.Template) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Template, error)
	List(ctx context.Context, userID string) ([]models.Template, error)
	Update(ctx context.Context, tmpl *models.Template, replaceFields bool) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	ListFields(ctx context.Context, templateID uuid.UUID) ([]models.TemplateField, error)
	GetField(ctx context.Context, templateID, fieldID uuid.UUID) (*models.TemplateField, error)
	CreateField(ctx context.Context, field *models.TemplateField) error
	UpdateField(ctx context.Context, field *models.TemplateField) error
	DeleteField(ctx context.Context, templateID, fieldID uuid.UUID) error
}

// TemplateHandler handles template and template field endpoints
type TemplateHandler struct {
	repo   TemplateRepo
	logger ectologger.Logger
}

func NewTemplateHandler(repo TemplateRepo, logger ectologger.Logger) *TemplateHandler {
	return &TemplateHandler{
		repo:   repo,
		logger: logger,
	}
}

// FieldRequest is a template field in a request body
type FieldRequest struct {
	FieldName  string           `json:"field_name" validate:"required,max=255"`
	FieldType  models.FieldType `json:"field_type" validate:"required"`
	IsRequired bool             `json:"is_required"`
}

func (r FieldRequest) toField(templateID uuid.UUID) models.TemplateField {
	return models.TemplateField{
		TemplateID: templateID,
		FieldName:  r.FieldName,
		FieldType:  r.FieldType,
		IsRequired: r.IsRequired,
	}
}

// CreateTemplateRequest represents the create template request body
type CreateTemplateRequest struct {
	Name     string            `json:"name" validate:"required,max=255"`
	Mappings map[string]string `json:"mappings" validate:"required"`
	Fields   []FieldRequest    `json:"fields" validate:"dive"`
}

// UpdateTemplateRequest represents the update template request body. Fields
// replace the template's fields only when present.
type UpdateTemplateRequest struct {
	Name     string            `json:"name" validate:"required,max=255"`
	Mappings map[string]string `json:"mappings" validate:"required"`
	Fields   *[]FieldRequest   `json:"fields,omitempty" validate:"omitempty,dive"`
}

// Register registers template routes
func (h *TemplateHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/fields", h.ListFields)
	g.POST("/:id/fields", h.CreateField)
	g.GET("/:id/fields/:fieldId", h.GetField)
	g.PUT("/:id/fields/:fieldId", h.UpdateField)
	g.DELETE("/:id/fields/:fieldId", h.DeleteField)
}

func validateTemplate(mappings map[string]string, fields []models.TemplateField) error {
	if err := template.ValidateMappings(mappings); err != nil {
		return Unprocessable(err.Error())
	}
	if err := template.ValidateFields(fields); err != nil {
		return Unprocessable(err.Error())
	}
	return nil
}

// List returns the caller's templates
func (h *TemplateHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.List")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	templates, err := h.repo.List(ctx, userID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, templates)
}

// Create stores a template with its fields
func (h *TemplateHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.Create")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req CreateTemplateRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	tmpl := &models.Template{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     req.Name,
		Mappings: database.NewJSONB(req.Mappings),
	}
	tmpl.Fields = ectolinq.Map(req.Fields, func(f FieldRequest) models.TemplateField { return f.toField(tmpl.ID) })
	if err := validateTemplate(req.Mappings, tmpl.Fields); err != nil {
		return err
	}

	if err := h.repo.Create(ctx, tmpl); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"template_id":   tmpl.ID,
		"template_name": tmpl.Name,
	}).Info("Created template")
	return CreatedResponse(c, tmpl)
}

// Get returns one of the caller's templates
func (h *TemplateHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.Get")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	return SuccessResponse(c, tmpl)
}

// Update renames a template, replaces its mappings and optionally its fields
func (h *TemplateHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.Update")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}

	var req UpdateTemplateRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	tmpl.Name = req.Name
	tmpl.Mappings = database.NewJSONB(req.Mappings)
	replaceFields := req.Fields != nil
	if replaceFields {
		tmpl.Fields = ectolinq.Map(*req.Fields, func(f FieldRequest) models.TemplateField { return f.toField(tmpl.ID) })
	}
	if err := validateTemplate(req.Mappings, tmpl.Fields); err != nil {
		return err
	}

	if err := h.repo.Update(ctx, tmpl, replaceFields); err != nil {
		return err
	}
	return SuccessResponse(c, tmpl)
}

// Delete removes a template and its fields
func (h *TemplateHandler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.Delete")
	defer span.End()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("template_id", id).Info("Deleted template")
	return NoContentResponse(c)
}

func (h *TemplateHandler) ListFields(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.ListFields")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}

	fields, err := h.repo.ListFields(ctx, tmpl.ID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fields)
}

func (h *TemplateHandler) GetField(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.GetField")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	fieldID, err := ParseUUID(c, "fieldId")
	if err != nil {
		return err
	}

	field, err := h.repo.GetField(ctx, tmpl.ID, fieldID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, field)
}

func (h *TemplateHandler) CreateField(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.CreateField")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}

	var req FieldRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	field := req.toField(tmpl.ID)
	if err := template.ValidateField(field); err != nil {
		return Unprocessable(err.Error())
	}
	if err := h.repo.CreateField(ctx, &field); err != nil {
		return err
	}
	return CreatedResponse(c, field)
}

func (h *TemplateHandler) UpdateField(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.UpdateField")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	fieldID, err := ParseUUID(c, "fieldId")
	if err != nil {
		return err
	}

	var req FieldRequest
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	field := req.toField(tmpl.ID)
	field.ID = fieldID
	if err := template.ValidateField(field); err != nil {
		return Unprocessable(err.Error())
	}
	if err := h.repo.UpdateField(ctx, &field); err != nil {
		return err
	}
	return SuccessResponse(c, field)
}

func (h *TemplateHandler) DeleteField(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "TemplateHandler.DeleteField")
	defer span.End()

	tmpl, err := h.owned(ctx, c)
	if err != nil {
		return err
	}
	fieldID, err := ParseUUID(c, "fieldId")
	if err != nil {
		return err
	}

	if err := h.repo.DeleteField(ctx, tmpl.ID, fieldID); err != nil {
		return err
	}
	return NoContentResponse(c)
}

// owned loads the template named by :id when it belongs to the caller
func (h *TemplateHandler) owned(ctx context.Context, c echo.Context) (*models.Template, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return nil, err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.repo.GetByID(ctx, userID, id)
}
