package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/record"
)

type stubUploader struct {
	calls  int
	result *importer.Result
	err    error
}

func (s *stubUploader) Upload(context.Context, importer.Upload) (*importer.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubTemplates struct {
	err error
}

func (s stubTemplates) GetByID(_ context.Context, _ string, id uuid.UUID) (*models.Template, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Template{ID: id}, nil
}

func message(templateID *uuid.UUID, rows ...[]record.Value) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{
		Offset: 7,
		Upload: &kafka.UploadMessage{
			RowsUpload: models.RowsUpload{
				FileName:   "feed.json",
				TemplateID: templateID,
				Columns:    []string{"last_name", "first_name"},
				Rows:       rows,
			},
			UserID:     "user-1",
			UploadedBy: "user-1",
		},
	}
}

func TestRowsIngester_Handle(t *testing.T) {
	row := []record.Value{record.String("Cruz"), record.String("Juan")}
	batch := &models.UploadBatch{ID: uuid.New()}
	templateID := uuid.New()
	transient := errors.New("connection refused")

	tests := []struct {
		name      string
		msg       *kafka.IncomingMessage
		uploader  *stubUploader
		templates stubTemplates
		wantErr   error
		wantCalls int
	}{
		{
			name:      "imported",
			msg:       message(nil, row),
			uploader:  &stubUploader{result: &importer.Result{Batch: batch}},
			wantCalls: 1,
		},
		{
			name:      "failed batch is committed",
			msg:       message(nil, row),
			uploader:  &stubUploader{result: &importer.Result{Batch: batch}, err: transient},
			wantCalls: 1,
		},
		{
			name:      "schema rejection is committed",
			msg:       message(nil, row),
			uploader:  &stubUploader{err: httperror.NewHTTPError(http.StatusUnprocessableEntity, "bad columns")},
			wantCalls: 1,
		},
		{
			name:      "batch never opened is retried",
			msg:       message(nil, row),
			uploader:  &stubUploader{err: transient},
			wantErr:   transient,
			wantCalls: 1,
		},
		{
			name:     "empty rows are skipped",
			msg:      message(nil, []record.Value{record.Null(), record.String(" ")}),
			uploader: &stubUploader{},
		},
		{
			name:      "unknown template is skipped",
			msg:       message(&templateID, row),
			uploader:  &stubUploader{},
			templates: stubTemplates{err: httperror.NewHTTPError(http.StatusNotFound, "Template not found")},
		},
		{
			name:      "template lookup failure is retried",
			msg:       message(&templateID, row),
			uploader:  &stubUploader{},
			templates: stubTemplates{err: transient},
			wantErr:   transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingest := &rowsIngester{
				importer:  tt.uploader,
				templates: tt.templates,
				logger:    ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
			}

			err := ingest.Handle(context.Background(), tt.msg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, tt.uploader.calls)
		})
	}
}
