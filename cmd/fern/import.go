package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/spreadsheet"
)

func importCmd() *cobra.Command {
	var (
		userID     string
		uploadedBy string
		templateID string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV or XLSX file from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.withPipeline().start(ctx); err != nil {
				return err
			}
			defer a.stop(context.Background())

			if uploadedBy == "" {
				uploadedBy = userID
			}
			result, err := a.importFile(ctx, args[0], userID, uploadedBy, templateID)
			if result != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(result)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id that owns the batch")
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "uploader name recorded on the batch (defaults to --user)")
	cmd.Flags().StringVar(&templateID, "template", "", "template id to map the columns with")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (a *app) importFile(ctx context.Context, path, userID, uploadedBy, templateID string) (*importer.Result, error) {
	var tmpl *models.Template
	if templateID != "" {
		id, err := uuid.Parse(templateID)
		if err != nil {
			return nil, fmt.Errorf("invalid --template: %w", err)
		}
		if tmpl, err = a.templates.GetByID(ctx, userID, id); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	file, err := spreadsheet.NewReader(a.cfg.UploadMaxBytes, a.logger).Read(ctx, filepath.Base(path), info.Size(), f)
	if err != nil {
		return nil, err
	}

	return a.importer().Upload(ctx, importer.Upload{
		FileName:   file.Name,
		UploadedBy: uploadedBy,
		UserID:     userID,
		Template:   tmpl,
		Columns:    file.Columns(),
		Rows:       file.Rows,
	})
}
