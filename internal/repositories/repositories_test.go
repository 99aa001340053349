package repositories_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/internal/repositories/batch"
	"github.com/Ramsey-B/fern/internal/repositories/matchresult"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/internal/repositories/template"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fixture struct {
	db        database.DB
	templates *template.Repository
	batches   *batch.Repository
	persons   *person.Repository
	results   *matchresult.Repository
	service   *importer.Service
}

// newFixture migrates a live Postgres and empties every table
func newFixture(t *testing.T) *fixture {
	t.Helper()
	pg := testinfra.StartPostgres(t)

	logger := getTestLogger()
	cfg := database.Config{
		Driver:   "postgres",
		Host:     pg.Host,
		Port:     strconv.Itoa(pg.Port),
		User:     pg.User,
		Password: pg.Password,
		Name:     pg.Name,
		SSLMode:  "disable",
	}

	ctx := context.Background()
	db, sqlDB, err := database.Open(ctx, cfg, logger)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(cfg.Name, sqlDB.DB))

	f := &fixture{
		db:        db,
		templates: template.NewRepository(db, logger),
		batches:   batch.NewRepository(db, logger),
		persons:   person.NewRepository(db, logger),
		results:   matchresult.NewRepository(db, logger),
	}
	f.service = importer.NewService(
		importer.Config{SampleRows: 100, Scope: importer.ScopeAll},
		catalog.Default(),
		matching.NewDefaultEngine(),
		repositories.NewRecordStore(f.persons, f.results),
		f.batches,
		database.NewTransactor(db),
		logger,
	)

	_, err = f.persons.DeleteAll(ctx)
	require.NoError(t, err)
	_, err = f.results.DeleteAll(ctx)
	require.NoError(t, err)
	_, err = f.batches.DeleteAll(ctx)
	require.NoError(t, err)
	_, err = f.templates.DeleteAll(ctx)
	require.NoError(t, err)
	return f
}

var columns = []string{"Surname", "FirstName", "MiddleName", "DOB"}

func row(values ...string) record.Row {
	cells := make([]record.Value, len(values))
	for i, v := range values {
		cells[i] = record.String(v)
	}
	return record.NewRow(columns, cells)
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestIntegrationImport_MatchesAgainstStoredPersons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Upload(ctx, importer.Upload{
		FileName: "first.csv", UploadedBy: "encoder", UserID: "user-1", Columns: columns,
		Rows: []record.Row{row("Dela Cruz", "Juan", "Santos", "1990-01-15")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, first.Batch.Status)
	assert.Equal(t, 1, first.Batch.NewRows)

	second, err := f.service.Upload(ctx, importer.Upload{
		FileName: "second.csv", UploadedBy: "encoder", UserID: "user-1", Columns: columns,
		Rows: []record.Row{
			row("DELA CRUZ", "JUAN", "SANTOS", "01/15/1990"),
			row("Reyes", "Ana", "", "1985-03-02"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Batch.MatchedRows)
	assert.Equal(t, 1, second.Batch.NewRows)

	stored, err := f.batches.GetByID(ctx, "user-1", second.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.TotalRows)
	require.NotNil(t, stored.CompletedAt)

	_, err = f.batches.GetByID(ctx, "user-2", second.Batch.ID)
	assertNotFound(t, err)

	matched, total, err := f.results.ListByBatch(ctx, second.Batch.ID, matchresult.Filter{Status: models.MatchStatusMatched}, models.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.NotNil(t, matched[0].MatchedSystemID)

	p, err := f.persons.GetByUID(ctx, *matched[0].MatchedSystemID)
	require.NoError(t, err)
	assert.Equal(t, "Dela Cruz", p.LastName)
	require.NotNil(t, p.OriginBatchID)
	assert.Equal(t, first.Batch.ID, *p.OriginBatchID)

	decisions, err := f.results.ListByMatchedID(ctx, p.UID)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	persons, total, err := f.persons.List(ctx, "reyes", models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Ana", persons[0].FirstName)
}

func TestIntegrationDedupe_CollapsesExactCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Upload(ctx, importer.Upload{
		FileName: "a.csv", UserID: "user-1", Columns: columns,
		Rows: []record.Row{row("Cruz", "Juan", "", "1990-01-02")},
	})
	require.NoError(t, err)

	kept, _, err := f.results.ListByBatch(ctx, result.Batch.ID, matchresult.Filter{}, models.Page{})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	keptUID := *kept[0].MatchedSystemID

	keptPerson, err := f.persons.GetByUID(ctx, keptUID)
	require.NoError(t, err)
	copyPerson := &models.Person{
		UID:       importer.NewUID(),
		LastName:  keptPerson.LastName,
		FirstName: keptPerson.FirstName,
		Birthday:  keptPerson.Birthday,
	}
	require.NoError(t, f.persons.Insert(ctx, copyPerson))

	report, err := dedupe.NewSweeper(f.persons, f.results, database.NewTransactor(f.db), importer.NewKeyedMutex(), getTestLogger()).Sweep(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, []string{copyPerson.UID}, report.Merges[0].RemovedUIDs)
	assert.Equal(t, keptUID, report.Merges[0].KeptUID)

	_, err = f.persons.GetByUID(ctx, copyPerson.UID)
	assertNotFound(t, err)
}

func TestIntegrationTemplate_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl := &models.Template{
		ID:       uuid.New(),
		UserID:   "user-1",
		Name:     "Barangay list",
		Mappings: database.NewJSONB(map[string]string{"Apelyido": "last_name"}),
	}
	tmpl.Fields = []models.TemplateField{{TemplateID: tmpl.ID, FieldName: "household_no", FieldType: models.FieldTypeInteger}}
	require.NoError(t, f.templates.Create(ctx, tmpl))

	dup := &models.Template{ID: uuid.New(), UserID: "user-1", Name: "Barangay list", Mappings: tmpl.Mappings}
	err := f.templates.Create(ctx, dup)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))

	got, err := f.templates.GetByID(ctx, "user-1", tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "last_name", got.Mappings.Data["Apelyido"])
	require.Len(t, got.Fields, 1)

	_, err = f.templates.GetByID(ctx, "user-2", tmpl.ID)
	assertNotFound(t, err)

	field := &models.TemplateField{TemplateID: tmpl.ID, FieldName: "household_no", FieldType: models.FieldTypeString}
	err = f.templates.CreateField(ctx, field)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))

	require.NoError(t, f.templates.Delete(ctx, "user-1", tmpl.ID))
	_, err = f.templates.GetByID(ctx, "user-1", tmpl.ID)
	assertNotFound(t, err)
}
