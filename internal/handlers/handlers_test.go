package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/matchresult"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/spreadsheet"
)

const testUser = "user-1"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type registrar interface {
	Register(g *echo.Group)
}

func newServer(prefix string, h registrar) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Use(middleware.Context())
	h.Register(e.Group(prefix))
	return e
}

func do(e *echo.Echo, method, path string, body any, user string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var errNotFound = httperror.NewHTTPError(http.StatusNotFound, "not found")

type fakeTemplates struct {
	templates map[uuid.UUID]*models.Template
	created   *models.Template
	fields    []models.TemplateField
}

func newFakeTemplates(tmpls ...*models.Template) *fakeTemplates {
	f := &fakeTemplates{templates: map[uuid.UUID]*models.Template{}}
	for _, t := range tmpls {
		f.templates[t.ID] = t
	}
	return f
}

func (f *fakeTemplates) Create(_ context.Context, tmpl *models.Template) error {
	f.created = tmpl
	f.templates[tmpl.ID] = tmpl
	return nil
}

func (f *fakeTemplates) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.Template, error) {
	tmpl, ok := f.templates[id]
	if !ok || tmpl.UserID != userID {
		return nil, errNotFound
	}
	cp := *tmpl
	return &cp, nil
}

func (f *fakeTemplates) List(_ context.Context, userID string) ([]models.Template, error) {
	var out []models.Template
	for _, t := range f.templates {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTemplates) Update(_ context.Context, tmpl *models.Template, _ bool) error {
	f.templates[tmpl.ID] = tmpl
	return nil
}

func (f *fakeTemplates) Delete(_ context.Context, userID string, id uuid.UUID) error {
	if _, err := f.GetByID(context.Background(), userID, id); err != nil {
		return err
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeTemplates) ListFields(_ context.Context, templateID uuid.UUID) ([]models.TemplateField, error) {
	return f.templates[templateID].Fields, nil
}

func (f *fakeTemplates) GetField(_ context.Context, templateID, fieldID uuid.UUID) (*models.TemplateField, error) {
	for _, field := range f.templates[templateID].Fields {
		if field.ID == fieldID {
			return &field, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeTemplates) CreateField(_ context.Context, field *models.TemplateField) error {
	field.ID = uuid.New()
	f.fields = append(f.fields, *field)
	return nil
}

func (f *fakeTemplates) UpdateField(_ context.Context, field *models.TemplateField) error {
	f.fields = append(f.fields, *field)
	return nil
}

func (f *fakeTemplates) DeleteField(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func TestTemplateHandler_Create(t *testing.T) {
	repo := newFakeTemplates()
	e := newServer("/api/templates", NewTemplateHandler(repo, testLogger()))

	rec := do(e, http.MethodPost, "/api/templates", map[string]any{
		"name":     "Barangay list",
		"mappings": map[string]string{"Surname": "last_name", "Given": "first_name"},
		"fields":   []map[string]any{{"field_name": "household_no", "field_type": "integer"}},
	}, testUser)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, repo.created)
	assert.Equal(t, testUser, repo.created.UserID)
	assert.Equal(t, "last_name", repo.created.Mappings.Data["Surname"])
	require.Len(t, repo.created.Fields, 1)
	assert.Equal(t, repo.created.ID, repo.created.Fields[0].TemplateID)
}

func TestTemplateHandler_CreateRejects(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		user string
		code int
	}{
		{
			name: "missing user",
			body: map[string]any{"name": "a", "mappings": map[string]string{"A": "last_name"}},
			code: http.StatusUnauthorized,
		},
		{
			name: "missing name",
			body: map[string]any{"mappings": map[string]string{"A": "last_name"}},
			user: testUser,
			code: http.StatusBadRequest,
		},
		{
			name: "empty mappings",
			body: map[string]any{"name": "a", "mappings": map[string]string{}},
			user: testUser,
			code: http.StatusUnprocessableEntity,
		},
		{
			name: "bad field name",
			body: map[string]any{
				"name":     "a",
				"mappings": map[string]string{"A": "last_name"},
				"fields":   []map[string]any{{"field_name": "house no", "field_type": "string"}},
			},
			user: testUser,
			code: http.StatusUnprocessableEntity,
		},
		{
			name: "bad field type",
			body: map[string]any{
				"name":     "a",
				"mappings": map[string]string{"A": "last_name"},
				"fields":   []map[string]any{{"field_name": "house_no", "field_type": "float"}},
			},
			user: testUser,
			code: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeTemplates()
			e := newServer("/api/templates", NewTemplateHandler(repo, testLogger()))

			rec := do(e, http.MethodPost, "/api/templates", tt.body, tt.user)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Nil(t, repo.created)
		})
	}
}

func TestTemplateHandler_GetIsScopedToOwner(t *testing.T) {
	tmpl := &models.Template{ID: uuid.New(), UserID: "someone-else", Name: "theirs"}
	e := newServer("/api/templates", NewTemplateHandler(newFakeTemplates(tmpl), testLogger()))

	rec := do(e, http.MethodGet, "/api/templates/"+tmpl.ID.String(), nil, testUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/templates/not-a-uuid", nil, testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplateHandler_UpdateKeepsFieldsWhenOmitted(t *testing.T) {
	field := models.TemplateField{ID: uuid.New(), FieldName: "household_no", FieldType: models.FieldTypeInteger}
	tmpl := &models.Template{ID: uuid.New(), UserID: testUser, Name: "old", Fields: []models.TemplateField{field}}
	repo := newFakeTemplates(tmpl)
	e := newServer("/api/templates", NewTemplateHandler(repo, testLogger()))

	rec := do(e, http.MethodPut, "/api/templates/"+tmpl.ID.String(), map[string]any{
		"name":     "new",
		"mappings": map[string]string{"Surname": "last_name"},
	}, testUser)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := repo.templates[tmpl.ID]
	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, []models.TemplateField{field}, updated.Fields)
}

func TestTemplateHandler_CreateField(t *testing.T) {
	tmpl := &models.Template{ID: uuid.New(), UserID: testUser, Name: "t"}
	repo := newFakeTemplates(tmpl)
	e := newServer("/api/templates", NewTemplateHandler(repo, testLogger()))

	rec := do(e, http.MethodPost, "/api/templates/"+tmpl.ID.String()+"/fields",
		map[string]any{"field_name": "purok", "field_type": "string", "is_required": true}, testUser)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, repo.fields, 1)
	assert.Equal(t, tmpl.ID, repo.fields[0].TemplateID)
	assert.True(t, repo.fields[0].IsRequired)
}

type fakeImporter struct {
	upload *importer.Upload
	err    error
}

func (f *fakeImporter) Upload(_ context.Context, upload importer.Upload) (*importer.Result, error) {
	f.upload = &upload
	batch := &models.UploadBatch{ID: uuid.New(), FileName: upload.FileName, BatchCounts: models.BatchCounts{TotalRows: len(upload.Rows)}}
	return &importer.Result{Batch: batch}, f.err
}

func newUploadServer(imp *fakeImporter, templates *fakeTemplates) *echo.Echo {
	reader := spreadsheet.NewReader(1<<20, testLogger())
	return newServer("/api/uploads", NewUploadHandler(imp, templates, reader, testLogger()))
}

func TestUploadHandler_UploadFile(t *testing.T) {
	imp := &fakeImporter{}
	e := newUploadServer(imp, newFakeTemplates())

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "people.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("last_name,first_name\nCruz,Juan\nReyes,Ana\n"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, testUser)
	req.Header.Set(middleware.HeaderUserName, "Encoder One")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, imp.upload)
	assert.Equal(t, "people.csv", imp.upload.FileName)
	assert.Equal(t, "Encoder One", imp.upload.UploadedBy)
	assert.Equal(t, testUser, imp.upload.UserID)
	assert.Equal(t, []string{"last_name", "first_name"}, imp.upload.Columns)
	assert.Len(t, imp.upload.Rows, 2)
	assert.Nil(t, imp.upload.Template)
}

func TestUploadHandler_UploadFileRequiresFile(t *testing.T) {
	e := newUploadServer(&fakeImporter{}, newFakeTemplates())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(""))
	req.Header.Set(middleware.HeaderUserID, testUser)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandler_UploadRows(t *testing.T) {
	tmpl := &models.Template{ID: uuid.New(), UserID: testUser, Name: "t"}
	imp := &fakeImporter{}
	e := newUploadServer(imp, newFakeTemplates(tmpl))

	rec := do(e, http.MethodPost, "/api/uploads/rows", map[string]any{
		"file_name":   "feed.json",
		"template_id": tmpl.ID,
		"columns":     []string{"last_name", "first_name", "age"},
		"rows":        [][]any{{"Cruz", "Juan", 41}, {nil, "", nil}},
	}, testUser)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, imp.upload)
	assert.Equal(t, "feed.json", imp.upload.FileName)
	require.NotNil(t, imp.upload.Template)
	assert.Equal(t, tmpl.ID, imp.upload.Template.ID)
	assert.Len(t, imp.upload.Rows, 1)
}

func TestUploadHandler_UploadRowsWithOnlyEmptyRows(t *testing.T) {
	imp := &fakeImporter{}
	e := newUploadServer(imp, newFakeTemplates())

	rec := do(e, http.MethodPost, "/api/uploads/rows", map[string]any{
		"file_name": "feed.json",
		"columns":   []string{"last_name"},
		"rows":      [][]any{{nil}, {""}},
	}, testUser)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Nil(t, imp.upload)
}

func TestUploadHandler_FailedBatchCarriesID(t *testing.T) {
	imp := &fakeImporter{err: httperror.NewHTTPError(http.StatusInternalServerError, "batch failed")}
	e := newUploadServer(imp, newFakeTemplates())

	rec := do(e, http.MethodPost, "/api/uploads/rows", map[string]any{
		"file_name": "feed.json",
		"columns":   []string{"last_name"},
		"rows":      [][]any{{"Cruz"}},
	}, testUser)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[middleware.ErrorResponse](t, rec)
	assert.Equal(t, "batch failed", resp.Message)
	assert.NotEmpty(t, resp.Meta["batch_id"])
}

type fakeBatches struct {
	batch *models.UploadBatch
}

func (f *fakeBatches) GetByID(_ context.Context, userID string, id uuid.UUID) (*models.UploadBatch, error) {
	if f.batch == nil || f.batch.ID != id || f.batch.UserID != userID {
		return nil, errNotFound
	}
	return f.batch, nil
}

func (f *fakeBatches) List(_ context.Context, userID string, _ models.Page) ([]models.UploadBatch, int, error) {
	if f.batch == nil || f.batch.UserID != userID {
		return nil, 0, nil
	}
	return []models.UploadBatch{*f.batch}, 1, nil
}

type fakeResults struct {
	filter  matchresult.Filter
	page    models.Page
	results []models.MatchResult
}

func (f *fakeResults) ListByBatch(_ context.Context, _ uuid.UUID, filter matchresult.Filter, page models.Page) ([]models.MatchResult, int, error) {
	f.filter = filter
	f.page = page
	return f.results, len(f.results), nil
}

func (f *fakeResults) ListByMatchedID(context.Context, string) ([]models.MatchResult, error) {
	return f.results, nil
}

func TestBatchHandler_List(t *testing.T) {
	batch := &models.UploadBatch{ID: uuid.New(), UserID: testUser, FileName: "a.csv"}
	e := newServer("/api/batches", NewBatchHandler(&fakeBatches{batch: batch}, &fakeResults{}, testLogger()))

	rec := do(e, http.MethodGet, "/api/batches?page=1&page_size=10", nil, testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.ListResponse[models.UploadBatch]](t, rec)
	assert.Equal(t, 1, resp.TotalCount)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a.csv", resp.Items[0].FileName)

	rec = do(e, http.MethodGet, "/api/batches", nil, "other-user")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.ListResponse[models.UploadBatch]](t, rec).Items)
}

func TestBatchHandler_Results(t *testing.T) {
	batch := &models.UploadBatch{ID: uuid.New(), UserID: testUser}
	results := &fakeResults{}
	e := newServer("/api/batches", NewBatchHandler(&fakeBatches{batch: batch}, results, testLogger()))

	rec := do(e, http.MethodGet, "/api/batches/"+batch.ID.String()+"/results?status=MATCHED&page=2", nil, testUser)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.MatchStatusMatched, results.filter.Status)
	assert.Equal(t, 2, results.page.Page)

	rec = do(e, http.MethodGet, "/api/batches/"+batch.ID.String()+"/results?status=MAYBE", nil, testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/batches/"+batch.ID.String()+"/results", nil, "other-user")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakePersons struct {
	person *models.Person
	search string
}

func (f *fakePersons) GetByUID(_ context.Context, uid string) (*models.Person, error) {
	if f.person == nil || f.person.UID != uid {
		return nil, errNotFound
	}
	return f.person, nil
}

func (f *fakePersons) List(_ context.Context, search string, _ models.Page) ([]models.Person, int, error) {
	f.search = search
	return []models.Person{*f.person}, 1, nil
}

type fakeHistory struct {
	events []graph.Event
}

func (f *fakeHistory) PersonHistory(context.Context, string) ([]graph.Event, error) {
	return f.events, nil
}

func TestPersonHandler_ListAndGet(t *testing.T) {
	person := &models.Person{ID: uuid.New(), UID: "UID-1", LastName: "Cruz", FirstName: "Juan"}
	persons := &fakePersons{person: person}
	results := &fakeResults{results: []models.MatchResult{{ID: uuid.New(), MatchStatus: models.MatchStatusMatched}}}
	e := newServer("/api/persons", NewPersonHandler(persons, results, nil, testLogger()))

	rec := do(e, http.MethodGet, "/api/persons?search=cruz", nil, testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cruz", persons.search)

	rec = do(e, http.MethodGet, "/api/persons/UID-1", nil, testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "UID-1", body["uid"])
	assert.Len(t, body["decisions"], 1)

	rec = do(e, http.MethodGet, "/api/persons/UID-2", nil, testUser)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersonHandler_Lineage(t *testing.T) {
	person := &models.Person{ID: uuid.New(), UID: "UID-1"}

	e := newServer("/api/persons", NewPersonHandler(&fakePersons{person: person}, &fakeResults{}, nil, testLogger()))
	rec := do(e, http.MethodGet, "/api/persons/UID-1/lineage", nil, testUser)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	history := &fakeHistory{events: []graph.Event{{BatchID: "b1", Relation: graph.RelCreated}}}
	e = newServer("/api/persons", NewPersonHandler(&fakePersons{person: person}, &fakeResults{}, history, testLogger()))
	rec = do(e, http.MethodGet, "/api/persons/UID-1/lineage", nil, testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]graph.Event](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, graph.RelCreated, events[0].Relation)
}
