package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, DispatcherInline, cfg.Queue.Dispatcher)
	require.Equal(t, StorageLocal, cfg.Storage.Driver)
	require.Equal(t, 500, cfg.Import.BatchSize)
	require.Equal(t, 5*time.Second, cfg.Queue.RetryBaseDelay)
	require.InDelta(t, 0.8, cfg.Import.FuzzyThreshold, 1e-9)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DB_DRIVER=sqlite\nIMPORT_BATCH_SIZE=200\nIMPORT_INVOCATION_BUDGET=50s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("IMPORT_BATCH_SIZE", "")
	os.Unsetenv("IMPORT_BATCH_SIZE")
	t.Setenv("IMPORT_INVOCATION_BUDGET", "")
	os.Unsetenv("IMPORT_INVOCATION_BUDGET")

	cfg, err := LoadConfig(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, 200, cfg.Import.BatchSize)
	require.Equal(t, 50*time.Second, cfg.Import.InvocationBudget)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASK_DISPATCHER", "rabbitmq")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("TASK_SIGNING_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "ftp")

	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
	require.Contains(t, err.Error(), "RABBITMQ_URL")
	require.Contains(t, err.Error(), "TASK_SIGNING_SECRET")
	require.Contains(t, err.Error(), "STORAGE_DRIVER")
}
