// Package importer runs uploaded rows through normalization and matching and
// records every decision.
package importer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Ramsey-B/fern/pkg/catalog"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dates"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
	"github.com/Ramsey-B/fern/pkg/record"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultSampleRows is how many rows have their template field values
	// type-checked before import
	DefaultSampleRows = 100

	// UIDPrefix starts every generated person uid
	UIDPrefix = "UID-"
)

const (
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

type Config struct {
	// SampleRows limits the advisory value check. Zero or less checks every row.
	SampleRows int
	Scope      Scope
}

// Upload is one file's worth of rows with its header.
type Upload struct {
	FileName   string
	UploadedBy string
	UserID     string
	Template   *models.Template
	Columns    []string
	Rows       []record.Row
}

// Result describes a processed upload.
type Result struct {
	Batch    *models.UploadBatch `json:"batch"`
	Warnings []schema.RowIssue   `json:"warnings"`
}

// Outcome is what happened to a single row.
type Outcome struct {
	Row      int                 `json:"row"`
	Skipped  bool                `json:"skipped"`
	Decision matching.Decision   `json:"decision"`
	Result   *models.MatchResult `json:"result,omitempty"`
	Person   *models.Person      `json:"person,omitempty"`
}

type Service struct {
	config     Config
	normalizer *normalizer.Normalizer
	validator  *schema.Validator
	engine     *matching.Engine
	store      Store
	batches    Batches
	tx         Transactor
	locker     Locker
	publisher  Publisher
	lineage    Lineage
	logger     ectologger.Logger
	now        func() time.Time
}

// Option wires an optional collaborator into the Service.
type Option func(*Service)

// WithPublisher announces decisions as they are made
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLineage records provenance for every decision
func WithLineage(l Lineage) Option {
	return func(s *Service) { s.lineage = l }
}

// WithLocker replaces the in-process identity lock
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func NewService(
	config Config,
	cat *catalog.Catalog,
	engine *matching.Engine,
	store Store,
	batches Batches,
	tx Transactor,
	logger ectologger.Logger,
	opts ...Option,
) *Service {
	if config.Scope == "" {
		config.Scope = ScopeAll
	}
	s := &Service{
		config:     config,
		normalizer: normalizer.New(cat),
		validator:  schema.NewValidator(cat),
		engine:     engine,
		store:      store,
		batches:    batches,
		tx:         tx,
		locker:     NewKeyedMutex(),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload validates the header, opens a batch and processes every row. A
// header that does not match the expected columns rejects the whole file
// before anything is written.
func (s *Service) Upload(ctx context.Context, upload Upload) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "Importer.Upload")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"file_name": upload.FileName,
		"row_count": len(upload.Rows),
	})

	report := s.validator.ValidateColumns(upload.Template, upload.Columns)
	if !report.Valid {
		log.WithField("errors", report.Errors).Warn("upload rejected by column validation")
		return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, "The uploaded file does not have the expected columns").
			AddMetaValue("errors", report.Errors).
			AddMetaValue("expected", report.Expected).
			AddMetaValue("missing", report.Missing).
			AddMetaValue("extra", report.Extra)
	}

	warnings := s.validator.ValidateSample(upload.Template, upload.Rows, s.config.SampleRows)
	if warnings == nil {
		warnings = []schema.RowIssue{}
	}
	for _, issue := range warnings {
		log.WithFields(map[string]any{
			"row":   issue.Row,
			"field": issue.Field,
		}).Warn(issue.Message)
	}

	batch := &models.UploadBatch{
		ID:         uuid.New(),
		FileName:   upload.FileName,
		UploadedBy: upload.UploadedBy,
		UserID:     upload.UserID,
		Status:     models.BatchStatusProcessing,
	}
	if upload.Template != nil {
		batch.TemplateID = &upload.Template.ID
	}
	if len(upload.Rows) > 0 {
		batch.ColumnMapping = database.NewJSONB(s.normalizer.Summarize(upload.Rows[0], upload.Template))
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	if _, err := s.Process(ctx, batch, upload.Template, upload.Rows); err != nil {
		return &Result{Batch: batch, Warnings: warnings}, err
	}

	return &Result{Batch: batch, Warnings: warnings}, nil
}

// Process runs rows through the pipeline in file order and finishes the
// batch. Each row commits on its own, so rows handled before an error or a
// cancellation stay recorded.
func (s *Service) Process(ctx context.Context, batch *models.UploadBatch, tmpl *models.Template, rows []record.Row) ([]Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Importer.Process")
	defer span.End()

	ctx = appctx.SetBatchID(ctx, batch.ID.String())
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":  batch.ID,
		"file_name": batch.FileName,
		"template":  templateName(tmpl),
		"row_count": len(rows),
	})
	log.Info("Starting record import")

	start := s.now()
	outcomes := make([]Outcome, 0, len(rows))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return outcomes, s.fail(ctx, batch, start, fmt.Errorf("import aborted after %d of %d rows: %w", i, len(rows), err))
		}

		outcome, err := s.ProcessRow(ctx, batch, tmpl, i, row)
		if err != nil {
			metrics.RecordRow(outcomeFailed)
			return outcomes, s.fail(ctx, batch, start, err)
		}
		outcomes = append(outcomes, outcome)
	}

	batch.TotalRows = len(rows)
	batch.Status = models.BatchStatusCompleted
	completed := s.now()
	batch.CompletedAt = &completed
	if err := s.batches.Complete(ctx, batch); err != nil {
		return outcomes, s.fail(ctx, batch, start, fmt.Errorf("failed to complete batch: %w", err))
	}
	metrics.RecordBatch(string(batch.Status), completed.Sub(start).Seconds())
	s.announceBatch(ctx, batch)

	log.WithFields(map[string]any{
		"processed":   batch.Processed(),
		"skipped":     batch.SkippedRows,
		"new_records": batch.NewRows,
		"matched":     batch.MatchedRows,
		"duplicates":  batch.DuplicateRows,
	}).Info("Record import completed")

	return outcomes, nil
}

// ProcessRow normalizes, matches and records one row. index is the row's
// zero-based position among the file's data rows.
func (s *Service) ProcessRow(ctx context.Context, batch *models.UploadBatch, tmpl *models.Template, index int, row record.Row) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Importer.ProcessRow")
	defer span.End()

	outcome := Outcome{Row: index + 1}
	rec := s.normalizer.Normalize(row, tmpl)
	if !s.normalizer.HasRequired(rec) {
		batch.SkippedRows++
		metrics.RecordRow(outcomeSkipped)
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"batch_id":       batch.ID,
			"row_index":      index + 1,
			"has_last_name":  rec.Has(catalog.FieldLastName),
			"has_first_name": rec.Has(catalog.FieldFirstName),
		}).Warn("Skipping row with missing required fields")
		outcome.Skipped = true
		return outcome, nil
	}

	rec = normalizer.Standardize(rec)
	subject := matching.SubjectFromRecord(rec)

	waitStart := s.now()
	unlock, err := s.locker.Lock(ctx, subject.LockKey())
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("row_index", index+1).Error("failed to lock identity")
		return outcome, err
	}
	defer unlock()
	metrics.RecordLockWait(s.now().Sub(waitStart).Seconds())

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.decide(ctx, batch, index, rec, subject, &outcome)
	})
	if err != nil {
		return outcome, err
	}
	unlock()

	batch.Add(outcome.Decision.Status)
	metrics.RecordRow(string(outcome.Decision.Status))

	s.announceDecision(ctx, batch, outcome)

	return outcome, nil
}

// decide runs inside the row transaction while the identity lock is held.
func (s *Service) decide(ctx context.Context, batch *models.UploadBatch, index int, rec record.Canonical, subject matching.Subject, outcome *Outcome) error {
	candidates, err := s.store.FindCandidates(ctx, Criteria{
		LastName:  subject.LastName,
		FirstName: subject.FirstName,
		Scope:     s.config.Scope,
	})
	if err != nil {
		return err
	}

	matchStart := s.now()
	decision := s.engine.Match(subject, candidates)
	metrics.RecordDecision(string(decision.Status), s.now().Sub(matchStart).Seconds())

	result := &models.MatchResult{
		ID:                 uuid.New(),
		BatchID:            batch.ID,
		UploadedRecordID:   uploadedRecordID(rec, index),
		UploadedLastName:   rec.Field(catalog.FieldLastName),
		UploadedFirstName:  rec.Field(catalog.FieldFirstName),
		UploadedMiddleName: rec.Core[catalog.FieldMiddleName],
		MatchStatus:        decision.Status,
		ConfidenceScore:    decision.Confidence,
		Rule:               decision.Rule,
	}

	dynamic, ok := normalizer.FitDynamic(rec.Dynamic, normalizer.MaxDynamicBytes)
	if !ok {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"row_index":   index + 1,
			"field_count": len(rec.Dynamic),
		}).Warn("dynamic fields too large to keep with the match result")
	}
	result.DynamicFields = database.NewJSONB(dynamic)

	if decision.Status != models.MatchStatusNewRecord {
		result.MatchedSystemID = decision.MatchedID
		result.FieldBreakdown = database.NewJSONB(matching.Breakdown(rec, *decision.Person))
		if err := s.store.RecordAudit(ctx, result); err != nil {
			return err
		}
		outcome.Decision = decision
		outcome.Result = result
		return nil
	}

	person := NewPerson(rec, batch.ID)
	if err := s.store.InsertPerson(ctx, person); err != nil {
		if database.IsUniqueViolation(err) {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"batch_id":  batch.ID,
				"row_index": index + 1,
				"uid":       person.UID,
			}).Error("person uid already exists")
		}
		return err
	}

	decision.MatchedID = &person.UID
	result.MatchedSystemID = &person.UID
	if err := s.store.RecordAudit(ctx, result); err != nil {
		return err
	}
	if err := s.store.LinkPersonToAudit(ctx, person.ID, result.ID); err != nil {
		return err
	}
	person.OriginMatchResultID = &result.ID

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   batch.ID,
		"record_id":  person.UID,
		"last_name":  person.LastName,
		"first_name": person.FirstName,
	}).Info("New record created")

	outcome.Decision = decision
	outcome.Result = result
	outcome.Person = person
	return nil
}

// fail marks the batch FAILED and returns cause.
func (s *Service) fail(ctx context.Context, batch *models.UploadBatch, start time.Time, cause error) error {
	s.logger.WithContext(ctx).WithError(cause).WithField("batch_id", batch.ID).Error("record import failed")

	message := cause.Error()
	if httperror.IsHTTPError(cause) {
		message = httperror.ToHTTPError(cause).Error()
	}
	batch.Status = models.BatchStatusFailed
	batch.ErrorMessage = &message
	completed := s.now()
	batch.CompletedAt = &completed

	if err := s.batches.Fail(context.WithoutCancel(ctx), batch); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Error("failed to mark batch as failed")
	}
	metrics.RecordBatch(string(batch.Status), completed.Sub(start).Seconds())
	s.announceBatch(context.WithoutCancel(ctx), batch)

	if database.IsUniqueViolation(cause) {
		return httperror.NewHTTPError(http.StatusInternalServerError, "a person with the generated uid already exists; the batch was stopped")
	}
	return cause
}

func (s *Service) announceDecision(ctx context.Context, batch *models.UploadBatch, outcome Outcome) {
	if s.publisher != nil {
		if err := s.publisher.MatchDecided(ctx, batch, outcome.Result); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to publish match decision")
		}
	}
	if s.lineage != nil {
		if err := s.lineage.RecordDecision(ctx, batch, outcome.Result, outcome.Person); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to record decision lineage")
		}
	}
}

func (s *Service) announceBatch(ctx context.Context, batch *models.UploadBatch) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.BatchFinished(ctx, batch); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to publish batch status")
	}
}

// NewPerson builds the person created by a NEW RECORD decision from a
// standardized record.
func NewPerson(rec record.Canonical, batchID uuid.UUID) *models.Person {
	person := &models.Person{
		ID:            uuid.New(),
		UID:           NewUID(),
		LastName:      rec.Field(catalog.FieldLastName),
		FirstName:     rec.Field(catalog.FieldFirstName),
		MiddleName:    rec.Core[catalog.FieldMiddleName],
		Suffix:        rec.Core[catalog.FieldSuffix],
		Gender:        rec.Core[catalog.FieldGender],
		CivilStatus:   rec.Core[catalog.FieldCivilStatus],
		Address:       rec.Core[catalog.FieldAddress],
		Barangay:      rec.Core[catalog.FieldBarangay],
		OriginBatchID: &batchID,
	}
	if birthday, ok := dates.Parse(rec.Field(catalog.FieldBirthday)); ok {
		person.Birthday = &birthday
	}
	person.Normalize()
	return person
}

// NewUID returns a fresh person uid. ULIDs sort by creation time.
func NewUID() string {
	return UIDPrefix + ulid.Make().String()
}

func uploadedRecordID(rec record.Canonical, index int) string {
	if uid := strings.TrimSpace(rec.Field(catalog.FieldUID)); uid != "" {
		return uid
	}
	return fmt.Sprintf("ROW-%d", index+1)
}

func templateName(tmpl *models.Template) string {
	if tmpl == nil {
		return "none"
	}
	return tmpl.Name
}
