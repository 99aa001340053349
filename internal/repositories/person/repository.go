package person

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "persons"

var personStruct = database.NewStruct(new(models.Person))

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

// FindCandidates returns the persons offered to the match engine, oldest
// first.
func (r *Repository) FindCandidates(ctx context.Context, criteria importer.Criteria) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.FindCandidates")
	defer span.End()

	sb := personStruct.SelectFrom(tableName)
	if criteria.Scope == importer.ScopeLastInitial && criteria.LastName != "" {
		initial := []rune(criteria.LastName)[0]
		sb.Where(sb.Like("last_name_normalized", escapeLike(string(initial))+"%"))
	}
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var persons []models.Person
	if err := r.db.Active(ctx).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"scope": criteria.Scope,
		}).Error("failed to find candidate persons")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find candidate persons")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_count": len(persons),
		"scope":           criteria.Scope,
	}).Debugf("Loaded %s candidates", tableName)
	return persons, nil
}

// Insert creates a person. A uid collision is returned unwrapped so callers
// can recognize it with database.IsUniqueViolation.
func (r *Repository) Insert(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.Insert")
	defer span.End()

	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	person.Normalize()

	ib := database.NewInsertBuilder().
		InsertInto(tableName).
		Cols(
			"id", "uid", "last_name", "first_name", "middle_name", "suffix", "birthday",
			"gender", "civil_status", "address", "barangay",
			"last_name_normalized", "first_name_normalized", "middle_name_normalized",
			"origin_batch_id", "origin_match_result_id", "created_at", "updated_at",
		).
		Values(
			person.ID, person.UID, person.LastName, person.FirstName, person.MiddleName, person.Suffix, person.Birthday,
			person.Gender, person.CivilStatus, person.Address, person.Barangay,
			person.LastNameNormalized, person.FirstNameNormalized, person.MiddleNameNormalized,
			person.OriginBatchID, person.OriginMatchResultID, database.Now(), database.Now(),
		).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.db.Active(ctx).QueryRowxContext(ctx, query, args...).Scan(&person.CreatedAt, &person.UpdatedAt)
	if err != nil {
		log := r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id": person.ID,
			"uid":       person.UID,
		})
		if database.IsUniqueViolation(err) {
			log.Error("person uid already exists")
			return fmt.Errorf("failed to create person %s: %w", person.UID, err)
		}
		log.Error("failed to create person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id": person.ID,
		"uid":       person.UID,
	}).Debugf("Created %s", tableName)
	return nil
}

// LinkToAudit stores the match result that created the person.
func (r *Repository) LinkToAudit(ctx context.Context, personID, auditID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.LinkToAudit")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(tableName).
		Set(
			ub.Assign("origin_match_result_id", auditID),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("id", personID))

	query, args := ub.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err == nil {
		var rows int64
		rows, err = result.RowsAffected()
		if err == nil && rows == 0 {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", personID)
		}
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id":       personID,
			"match_result_id": auditID,
		}).Error("failed to link person to match result")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link person to match result")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id":       personID,
		"match_result_id": auditID,
	}).Debugf("Linked %s to its origin", tableName)
	return nil
}

func (r *Repository) GetByUID(ctx context.Context, uid string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.GetByUID")
	defer span.End()

	sb := personStruct.SelectFrom(tableName)
	sb.Where(sb.Equal("uid", uid))

	query, args := sb.Build()
	var person models.Person
	err := r.db.Active(ctx).GetContext(ctx, &person, query, args...)
	if database.IsNoRows(err) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", uid)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("uid", uid).Error("failed to get person by uid")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person by uid")
	}

	return &person, nil
}

// List pages through persons, optionally filtered by a case-insensitive
// name prefix.
func (r *Repository) List(ctx context.Context, search string, page models.Page) ([]models.Person, int, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.List")
	defer span.End()

	page = page.Normalize()
	search = models.NormalizeKey(search)

	countSb := database.NewCountBuilder(tableName)
	sb := personStruct.SelectFrom(tableName)
	if search != "" {
		pattern := escapeLike(search) + "%"
		countSb.Where(countSb.Or(countSb.Like("last_name_normalized", pattern), countSb.Like("first_name_normalized", pattern)))
		sb.Where(sb.Or(sb.Like("last_name_normalized", pattern), sb.Like("first_name_normalized", pattern)))
	}

	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.Active(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count persons")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count persons")
	}

	sb.OrderBy("last_name_normalized", "first_name_normalized", "created_at")
	sb.Limit(page.PageSize).Offset(page.Offset())

	query, args := sb.Build()
	var persons []models.Person
	if err := r.db.Active(ctx).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list persons")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list persons")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"person_count": len(persons),
		"total":        total,
	}).Debugf("Listed %s", tableName)
	return persons, total, nil
}

// FindDuplicateGroups groups persons that agree on last, first and middle
// name and birthday. Persons without a birthday are never grouped.
func (r *Repository) FindDuplicateGroups(ctx context.Context) ([]dedupe.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.FindDuplicateGroups")
	defer span.End()

	dupSb := database.NewSelectBuilder()
	dupSb.Select("last_name_normalized", "first_name_normalized", "middle_name_normalized", "birthday").
		From(tableName).
		Where(dupSb.IsNotNull("birthday")).
		GroupBy("last_name_normalized", "first_name_normalized", "middle_name_normalized", "birthday").
		Having("COUNT(*) > 1")

	sb := personStruct.SelectFrom(tableName)
	sb.Where(fmt.Sprintf("(last_name_normalized, first_name_normalized, middle_name_normalized, birthday) IN (%s)", sb.Var(dupSb)))
	sb.OrderBy("last_name_normalized", "first_name_normalized", "middle_name_normalized", "birthday", "created_at", "id")

	query, args := sb.Build()
	var persons []models.Person
	if err := r.db.Active(ctx).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to find duplicate persons")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find duplicate persons")
	}

	groups := dedupe.GroupDuplicates(persons)
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"group_count": len(groups),
	}).Debugf("Found duplicate %s", tableName)
	return groups, nil
}

// DeleteByIDs removes persons and returns how many were deleted.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(tableName).Where(db.In("id", values...))

	query, args := db.Build()
	result, err := r.db.Active(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_count", len(ids)).Error("failed to delete persons")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete persons")
	}

	deleted, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithField("deleted", deleted).Debugf("Deleted %s", tableName)
	return deleted, nil
}

// DeleteAll removes every person.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonRepository.DeleteAll")
	defer span.End()

	result, err := r.db.Active(ctx).ExecContext(ctx, "DELETE FROM "+tableName)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to purge persons")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to purge persons")
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
