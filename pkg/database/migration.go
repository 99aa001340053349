package database

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/file"
	pkgerrors "github.com/pkg/errors"
)

// migrateLogger routes golang-migrate output through ectologger
type migrateLogger struct {
	logger ectologger.Logger
}

func (l migrateLogger) Verbose() bool { return true }

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Infof(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	// Version pins the schema; zero means the newest file
	Version uint
	// Force marks the schema as Force before migrating, clearing a dirty flag
	Force int
	// AutoRollback resets a dirty schema to the version it had before the run
	AutoRollback bool
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

// MigratePostgres brings the templates, batches, persons and match results
// tables up to the configured version.
func (ms *MigrationService) MigratePostgres(databaseName string, db *sql.DB) error {
	folder, err := ms.folder()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create postgres migration driver")
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return pkgerrors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{logger: ms.logger}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			return pkgerrors.Wrapf(err, "failed to force schema to version %d", ms.config.Force)
		}
	}

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return pkgerrors.Wrap(err, "failed to read schema version")
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	log := ms.logger.WithFields(map[string]any{
		"from_version": before,
		"duration":     time.Since(start).String(),
	})
	switch {
	case err == nil:
		log.Info("Applied migrations")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("Schema already up to date")
		return nil
	}
	return ms.recover(m, folder, before, err)
}

func (ms *MigrationService) folder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if !filepath.IsAbs(folder) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		folder = filepath.Join(wd, folder)
	}
	if _, err := os.Stat(folder); err != nil {
		return "", pkgerrors.Wrapf(err, "migration folder %s does not exist", folder)
	}
	return folder, nil
}

// recover handles a failed run. A schema ahead of the shipped files is pinned
// to the newest file; a dirty schema is reset when AutoRollback is set. The
// original error is returned either way so startup still fails.
func (ms *MigrationService) recover(m *migrate.Migrate, folder string, before uint, runErr error) error {
	if strings.Contains(runErr.Error(), "no migration found for version") {
		latest, err := getLatestVersion(folder)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to get latest migration version")
		}
		ms.logger.Warnf("Schema version %d has no migration file, forcing version %d", before, latest)
		return m.Force(latest)
	}

	ms.logger.WithError(runErr).Error("Migration failed")
	if !ms.config.AutoRollback {
		return runErr
	}

	current, dirty, err := m.Version()
	if err != nil || !dirty {
		return runErr
	}
	target := int(before)
	if target == 0 {
		target = int(current) - 1
	}
	ms.logger.Warnf("Schema dirty at version %d, resetting to %d", current, target)
	if err := m.Force(target); err != nil {
		return pkgerrors.Wrapf(err, "failed to reset schema to version %d", target)
	}
	return runErr
}

// getLatestVersion walks the folder with the migrate file source, which
// skips names that are not migrations.
func getLatestVersion(folder string) (int, error) {
	src, err := (&file.File{}).Open("file://" + folder)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "no migration files found in %s", folder)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			return int(version), nil
		}
		if err != nil {
			return 0, err
		}
		version = next
	}
}
