package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Import uploads published to the rows topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.withPipeline().start(ctx); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				a.stop(shutdownCtx)
			}()

			ingest := &rowsIngester{importer: a.importer(), templates: a.templates, logger: a.logger}
			consumer, err := kafka.NewConsumer(a.cfg.Consumer(), a.logger, ingest.Handle)
			if err != nil {
				return err
			}
			if err := consumer.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				a.logger.Info("Stopping consumer")
			case <-consumer.Done():
			}
			if err := consumer.Stop(); err != nil {
				a.logger.WithError(err).Error("Failed to close consumer")
			}
			return consumer.Err()
		},
	}
}

type uploader interface {
	Upload(ctx context.Context, upload importer.Upload) (*importer.Result, error)
}

type templateGetter interface {
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Template, error)
}

// rowsIngester turns one rows-topic message into one upload. Returning nil
// commits the message, so only failures worth retrying return an error.
type rowsIngester struct {
	importer  uploader
	templates templateGetter
	logger    ectologger.Logger
}

func (r *rowsIngester) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	upload := msg.Upload
	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"file_name": upload.FileName,
		"user_id":   upload.UserID,
		"offset":    msg.Offset,
	})

	var tmpl *models.Template
	if upload.TemplateID != nil {
		var err error
		if tmpl, err = r.templates.GetByID(ctx, upload.UserID, *upload.TemplateID); err != nil {
			if rejected(err) {
				log.WithError(err).Warn("Upload names an unknown template, skipping")
				return nil
			}
			return err
		}
	}

	rows := upload.Records()
	if len(rows) == 0 {
		log.Warn("Upload has no data rows, skipping")
		return nil
	}

	result, err := r.importer.Upload(ctx, importer.Upload{
		FileName:   upload.FileName,
		UploadedBy: upload.UploadedBy,
		UserID:     upload.UserID,
		Template:   tmpl,
		Columns:    upload.Columns,
		Rows:       rows,
	})
	switch {
	case err == nil:
		log.WithField("batch_id", result.Batch.ID).Info("Upload imported")
		return nil
	case result != nil:
		// the batch was opened and marked FAILED
		log.WithError(err).WithField("batch_id", result.Batch.ID).Error("Upload batch failed")
		return nil
	case rejected(err):
		log.WithError(err).Warn("Upload rejected")
		return nil
	default:
		return err
	}
}

// rejected reports whether err is a client error that a retry cannot fix
func rejected(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError
}
