package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"QUEUE_HOST":        "localhost",
		"STORE_ENDPOINT":    "http://localhost:9000",
		"UPLOADS_BUCKET":    "uploads",
		"WAREHOUSE_BUCKET":  "warehouse",
		"CATALOG_JDBC_URL":  "clickhouse://localhost:9000/default",
		"JOBSTORE_HOST":     "localhost",
		"WAREHOUSE_PATH":    "/warehouse",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Coordinator.APIPort)
	require.Equal(t, int64(100*1024*1024), cfg.Coordinator.FileMaxSize)
	require.Equal(t, 3600, cfg.JobTTLSeconds)
	require.Equal(t, 10000, cfg.PreviewMaxRows)
}

func TestLoadMissingRequired(t *testing.T) {
	os.Clearenv()
	_, err := Load("")
	require.Error(t, err)
}

func TestValidateWorkerCount(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Worker.Count = 0
	require.Error(t, Validate(cfg))
}
