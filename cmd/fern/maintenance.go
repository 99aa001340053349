package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dedupe"
)

func dedupeCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse persons that share every exact match key into the oldest one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.withTracing().withDatabase(false).withRedis().start(ctx); err != nil {
				return err
			}
			defer a.stop(context.Background())

			sweeper := dedupe.NewSweeper(a.persons, a.results, database.NewTransactor(a.db), a.locker(), a.logger)
			report, err := sweeper.Sweep(ctx, dryRun)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the duplicate groups without changing anything")
	return cmd
}

// purgeCounts is what purge removed, by table
type purgeCounts struct {
	Persons      int64 `json:"persons"`
	MatchResults int64 `json:"match_results"`
	Batches      int64 `json:"batches"`
	Templates    int64 `json:"templates"`
}

func purgeCmd() *cobra.Command {
	var (
		yes           bool
		keepTemplates bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every person, decision and batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("purge deletes all data, pass --yes to confirm")
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.withDatabase(false).start(ctx); err != nil {
				return err
			}
			defer a.stop(context.Background())

			counts, err := a.purge(ctx, keepTemplates)
			if err != nil {
				return err
			}

			a.logger.WithFields(map[string]any{
				"persons":       counts.Persons,
				"match_results": counts.MatchResults,
				"batches":       counts.Batches,
				"templates":     counts.Templates,
			}).Warn("Purged data")
			return json.NewEncoder(cmd.OutOrStdout()).Encode(counts)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	cmd.Flags().BoolVar(&keepTemplates, "keep-templates", false, "keep templates and their fields")
	return cmd
}

func (a *app) purge(ctx context.Context, keepTemplates bool) (purgeCounts, error) {
	var counts purgeCounts
	err := database.InTx(ctx, a.db, func(ctx context.Context) error {
		var err error
		if counts.Persons, err = a.persons.DeleteAll(ctx); err != nil {
			return err
		}
		if counts.MatchResults, err = a.results.DeleteAll(ctx); err != nil {
			return err
		}
		if counts.Batches, err = a.batches.DeleteAll(ctx); err != nil {
			return err
		}
		if !keepTemplates {
			counts.Templates, err = a.templates.DeleteAll(ctx)
		}
		return err
	})
	return counts, err
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.withDatabase(true).start(cmd.Context()); err != nil {
				return err
			}
			a.stop(context.Background())
			a.logger.Info("Migrations applied")
			return nil
		},
	}
}
