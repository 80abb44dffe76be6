package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, []string{"wardrobe_events"}, cfg.ConsumerTopics)
	require.False(t, cfg.FeedYearLabels)
	require.Equal(t, time.UTC, cfg.FeedLocation())
}

func TestLoadReadsEnvironmentAndDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_DRIVER=sqlite\nSQLITE_PATH=/tmp/closet.db\nLOG_LEVEL=debug\nHTTP_ADDRESS=:7000\n"), 0o600))

	t.Setenv("HTTP_ADDRESS", ":9090")
	t.Setenv("KAFKA_BROKERS", " a:1, ,b:2 ")
	t.Setenv("DLQ_BASE_DELAY", "15s")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("FEED_YEAR_LABELS", "true")
	t.Setenv("FEED_DEFAULT_TIMEZONE", "Europe/London")
	// godotenv sets variables in the process; make sure they do not leak.
	for _, key := range []string{"STORE_DRIVER", "SQLITE_PATH", "LOG_LEVEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress, "environment wins over the file")
	require.Equal(t, StoreSQLite, cfg.StoreDriver)
	require.Equal(t, "/tmp/closet.db", cfg.SQLitePath)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	require.Equal(t, 15*time.Second, cfg.DLQBaseDelay)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.True(t, cfg.FeedYearLabels)
	require.Equal(t, "Europe/London", cfg.FeedLocation().String())
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	bad := cfg
	bad.StoreDriver = "mysql"
	bad.FeedTimezone = "Mars/Olympus"
	err = bad.Validate()
	require.ErrorContains(t, err, "STORE_DRIVER")
	require.ErrorContains(t, err, "FEED_DEFAULT_TIMEZONE")
}
