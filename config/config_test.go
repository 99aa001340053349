package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ValueSampleRows)
	assert.Equal(t, "all", cfg.MatchCandidateScope)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, "db/pg", cfg.Migration().MigrationFolderPath)
}

func TestLoad_EnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("FERN_TEST_ONLY=1\nVALUE_SAMPLE_ROWS=25\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("FERN_TEST_ONLY")
		os.Unsetenv("VALUE_SAMPLE_ROWS")
	})

	cfg, err := Load(file, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.ValueSampleRows)
}

func TestConfig_Brokers(t *testing.T) {
	cfg := Config{KafkaBrokers: " kafka-1:9092, ,kafka-2:9092 "}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Producer().Brokers)
}

func TestConfig_MigrationVersionNeverNegative(t *testing.T) {
	cfg := Config{DatabaseMigrationVersion: -3}
	assert.Equal(t, uint(0), cfg.Migration().Version)
}
