package template

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	templatesTable = "templates"
	fieldsTable    = "template_fields"
)

var (
	templateStruct = database.NewStruct(new(models.Template))
	fieldStruct    = database.NewStruct(new(models.TemplateField))
)

const (
	msgTemplateNotFound  = "Template not found or you do not have permission to access it."
	msgDuplicateTemplate = "You already have a template with this name. Please choose a different name."
	msgFieldNotFound     = "Template field not found."
	msgDuplicateField    = "A field named '%s' already exists in this template. Please use a different name."
)

// Repository stores templates and their fields. Every template read is
// scoped to the owning user.
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

// Create inserts a template and its fields in one transaction.
func (r *Repository) Create(ctx context.Context, tmpl *models.Template) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Create")
	defer span.End()

	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}

	return database.InTx(ctx, r.db, func(ctx context.Context) error {
		ib := database.NewInsertBuilder().
			InsertInto(templatesTable).
			Cols("id", "user_id", "name", "mappings", "created_at", "updated_at").
			Values(tmpl.ID, tmpl.UserID, tmpl.Name, tmpl.Mappings, database.Now(), database.Now()).
			Returning("created_at", "updated_at")

		query, args := ib.Build()
		err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, msgDuplicateTemplate)
		}
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("template_name", tmpl.Name).Error("failed to create template")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create template")
		}

		for i := range tmpl.Fields {
			tmpl.Fields[i].TemplateID = tmpl.ID
			if err := r.insertField(ctx, &tmpl.Fields[i]); err != nil {
				return err
			}
		}

		r.logger.WithContext(ctx).WithFields(map[string]any{
			"template_id":   tmpl.ID,
			"template_name": tmpl.Name,
			"field_count":   len(tmpl.Fields),
		}).Debugf("Created %s", templatesTable)
		return nil
	})
}

// GetByID returns a template with its fields.
func (r *Repository) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.GetByID")
	defer span.End()

	sb := templateStruct.SelectFrom(templatesTable)
	sb.Where(sb.Equal("id", id), sb.Equal("user_id", userID))

	query, args := sb.Build()
	var tmpl models.Template
	err := r.db.Active(ctx).GetContext(ctx, &tmpl, query, args...)
	if database.IsNoRows(err) {
		return nil, httperror.NewHTTPError(http.StatusNotFound, msgTemplateNotFound)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("template_id", id).Error("failed to get template")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get template")
	}

	fields, err := r.listFields(ctx, []uuid.UUID{tmpl.ID})
	if err != nil {
		return nil, err
	}
	tmpl.Fields = fields

	return &tmpl, nil
}

// List returns a user's templates ordered by name, with their fields.
func (r *Repository) List(ctx context.Context, userID string) ([]models.Template, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.List")
	defer span.End()

	sb := templateStruct.SelectFrom(templatesTable)
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var templates []models.Template
	if err := r.db.Active(ctx).SelectContext(ctx, &templates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list templates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list templates")
	}
	if len(templates) == 0 {
		return []models.Template{}, nil
	}

	fields, err := r.listFields(ctx, ectolinq.Map(templates, func(t models.Template) uuid.UUID { return t.ID }))
	if err != nil {
		return nil, err
	}
	byTemplate := make(map[uuid.UUID][]models.TemplateField, len(templates))
	for _, f := range fields {
		byTemplate[f.TemplateID] = append(byTemplate[f.TemplateID], f)
	}
	for i := range templates {
		templates[i].Fields = byTemplate[templates[i].ID]
		if templates[i].Fields == nil {
			templates[i].Fields = []models.TemplateField{}
		}
	}

	r.logger.WithContext(ctx).WithField("template_count", len(templates)).Debugf("Listed %s", templatesTable)
	return templates, nil
}

// Update renames the template and replaces its mappings. When replaceFields
// is set the template's fields are replaced by tmpl.Fields.
func (r *Repository) Update(ctx context.Context, tmpl *models.Template, replaceFields bool) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Update")
	defer span.End()

	return database.InTx(ctx, r.db, func(ctx context.Context) error {
		ub := database.NewUpdateBuilder()
		ub.Update(templatesTable).
			Set(
				ub.Assign("name", tmpl.Name),
				ub.Assign("mappings", tmpl.Mappings),
				ub.Assign("updated_at", database.Now()),
			).
			Where(ub.Equal("id", tmpl.ID), ub.Equal("user_id", tmpl.UserID))
		ub.SQL("RETURNING updated_at")

		query, args := ub.Build()
		err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&tmpl.UpdatedAt)
		if database.IsNoRows(err) {
			return httperror.NewHTTPError(http.StatusNotFound, msgTemplateNotFound)
		}
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, msgDuplicateTemplate)
		}
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("template_id", tmpl.ID).Error("failed to update template")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update template")
		}

		if replaceFields {
			db := database.NewDeleteBuilder()
			db.DeleteFrom(fieldsTable).Where(db.Equal("template_id", tmpl.ID))
			query, args := db.Build()
			if _, err := r.db.Active(ctx).ExecContext(ctx, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithField("template_id", tmpl.ID).Error("failed to clear template fields")
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update template fields")
			}
			for i := range tmpl.Fields {
				tmpl.Fields[i].ID = uuid.Nil
				tmpl.Fields[i].TemplateID = tmpl.ID
				if err := r.insertField(ctx, &tmpl.Fields[i]); err != nil {
					return err
				}
			}
		}

		r.logger.WithContext(ctx).WithField("template_id", tmpl.ID).Debugf("Updated %s", templatesTable)
		return nil
	})
}

// Delete removes a template. Its fields go with it.
func (r *Repository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(templatesTable).Where(db.Equal("id", id), db.Equal("user_id", userID))

	query, args := db.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		var rows int64
		rows, err = result.RowsAffected()
		if err == nil && rows == 0 {
			return httperror.NewHTTPError(http.StatusNotFound, msgTemplateNotFound)
		}
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("template_id", id).Error("failed to delete template")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete template")
	}

	r.logger.WithContext(ctx).WithField("template_id", id).Debugf("Deleted %s", templatesTable)
	return nil
}

// DeleteAll removes every template and field.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.DeleteAll")
	defer span.End()

	result, err := r.db.Active(ctx).ExecContext(ctx, "DELETE FROM "+templatesTable)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to purge templates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to purge templates")
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// ListFields returns the fields of a template in creation order.
func (r *Repository) ListFields(ctx context.Context, templateID uuid.UUID) ([]models.TemplateField, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.ListFields")
	defer span.End()

	return r.listFields(ctx, []uuid.UUID{templateID})
}

func (r *Repository) listFields(ctx context.Context, templateIDs []uuid.UUID) ([]models.TemplateField, error) {
	ids := make([]any, len(templateIDs))
	for i, id := range templateIDs {
		ids[i] = id
	}

	sb := fieldStruct.SelectFrom(fieldsTable)
	sb.Where(sb.In("template_id", ids...))
	sb.OrderBy("created_at", "field_name")

	query, args := sb.Build()
	fields := []models.TemplateField{}
	if err := r.db.Active(ctx).SelectContext(ctx, &fields, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list template fields")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list template fields")
	}
	return fields, nil
}

// GetField returns one field of a template.
func (r *Repository) GetField(ctx context.Context, templateID, fieldID uuid.UUID) (*models.TemplateField, error) {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.GetField")
	defer span.End()

	sb := fieldStruct.SelectFrom(fieldsTable)
	sb.Where(sb.Equal("id", fieldID), sb.Equal("template_id", templateID))

	query, args := sb.Build()
	var field models.TemplateField
	err := r.db.Active(ctx).GetContext(ctx, &field, query, args...)
	if database.IsNoRows(err) {
		return nil, httperror.NewHTTPError(http.StatusNotFound, msgFieldNotFound)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("field_id", fieldID).Error("failed to get template field")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get template field")
	}
	return &field, nil
}

// CreateField adds a field. Names are unique per template, case-sensitive.
func (r *Repository) CreateField(ctx context.Context, field *models.TemplateField) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.CreateField")
	defer span.End()

	return r.insertField(ctx, field)
}

func (r *Repository) insertField(ctx context.Context, field *models.TemplateField) error {
	if field.ID == uuid.Nil {
		field.ID = uuid.New()
	}

	ib := database.NewInsertBuilder().
		InsertInto(fieldsTable).
		Cols("id", "template_id", "field_name", "field_type", "is_required", "created_at", "updated_at").
		Values(field.ID, field.TemplateID, field.FieldName, field.FieldType, field.IsRequired, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&field.CreatedAt, &field.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, msgDuplicateField, field.FieldName)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"template_id": field.TemplateID,
			"field_name":  field.FieldName,
		}).Error("failed to create template field")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create template field")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"template_id": field.TemplateID,
		"field_name":  field.FieldName,
	}).Debugf("Created %s", fieldsTable)
	return nil
}

// UpdateField rewrites a field's name, type and required flag.
func (r *Repository) UpdateField(ctx context.Context, field *models.TemplateField) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.UpdateField")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(fieldsTable).
		Set(
			ub.Assign("field_name", field.FieldName),
			ub.Assign("field_type", field.FieldType),
			ub.Assign("is_required", field.IsRequired),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("id", field.ID), ub.Equal("template_id", field.TemplateID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&field.UpdatedAt)
	if database.IsNoRows(err) {
		return httperror.NewHTTPError(http.StatusNotFound, msgFieldNotFound)
	}
	if database.IsUniqueViolation(err) {
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, msgDuplicateField, field.FieldName)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("field_id", field.ID).Error("failed to update template field")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update template field")
	}

	r.logger.WithContext(ctx).WithField("field_id", field.ID).Debugf("Updated %s", fieldsTable)
	return nil
}

func (r *Repository) DeleteField(ctx context.Context, templateID, fieldID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "TemplateRepository.DeleteField")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(fieldsTable).Where(db.Equal("id", fieldID), db.Equal("template_id", templateID))

	query, args := db.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		var rows int64
		rows, err = result.RowsAffected()
		if err == nil && rows == 0 {
			return httperror.NewHTTPError(http.StatusNotFound, msgFieldNotFound)
		}
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("field_id", fieldID).Error("failed to delete template field")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete template field")
	}

	r.logger.WithContext(ctx).WithField("field_id", fieldID).Debugf("Deleted %s", fieldsTable)
	return nil
}
