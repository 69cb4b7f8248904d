package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into an empty directory so a stray config.yaml
// in the package directory is never picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "memory", cfg.Database.Driver)

	assert.True(t, cfg.Batch.Enabled)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentJobs)
	assert.Equal(t, 5, cfg.Batch.BatchSize)
	assert.Equal(t, 3, cfg.Batch.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Batch.RetryDelay)

	assert.Equal(t, 5, cfg.Pools.Conversion.CoreSize)
	assert.Equal(t, 10, cfg.Pools.Conversion.MaxSize)
	assert.Equal(t, "discard_oldest", cfg.Pools.Analysis.Policy)
	assert.Equal(t, 2, cfg.Pools.Analysis.Permits)
	assert.Equal(t, "abort", cfg.Pools.Batch.Policy)

	assert.Equal(t, 5*time.Minute, cfg.Events.RetryDelay)
	assert.Equal(t, 3, cfg.Events.MaxRetries)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MEDIA_SERVER_PORT", "9090")
	t.Setenv("MEDIA_SERVER_LOG_LEVEL", "debug")
	t.Setenv("MEDIA_BATCH_BATCH_SIZE", "20")
	t.Setenv("MEDIA_BATCH_RETRY_DELAY", "250ms")
	t.Setenv("MEDIA_POOLS_IMAGE_POLICY", "abort")
	t.Setenv("MEDIA_EVENTS_DRIVER", "kafka")
	t.Setenv("MEDIA_EVENTS_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 20, cfg.Batch.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.RetryDelay)
	assert.Equal(t, "abort", cfg.Pools.Image.Policy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
}

func TestLoadFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
batch:
  max_concurrent_jobs: 6
storage:
  driver: filesystem
  base_dir: /var/media
  signing_secret: s3cret
`), 0o600))

	// env wins over the file
	t.Setenv("MEDIA_BATCH_MAX_CONCURRENT_JOBS", "2")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Batch.MaxConcurrentJobs)
	assert.Equal(t, "filesystem", cfg.Storage.Driver)
	assert.Equal(t, "/var/media", cfg.Storage.BaseDir)
}

func TestLoadFile_Missing(t *testing.T) {
	dir := chdirTemp(t)

	_, err := LoadFile(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"invalid port", map[string]string{"MEDIA_SERVER_PORT": "70000"}},
		{"invalid log level", map[string]string{"MEDIA_SERVER_LOG_LEVEL": "verbose"}},
		{"batch size above limit", map[string]string{"MEDIA_BATCH_BATCH_SIZE": "101"}},
		{"zero concurrency", map[string]string{"MEDIA_BATCH_MAX_CONCURRENT_JOBS": "0"}},
		{"postgres without url", map[string]string{"MEDIA_DATABASE_DRIVER": "postgres"}},
		{"filesystem without secret", map[string]string{"MEDIA_STORAGE_DRIVER": "filesystem"}},
		{"gcs without bucket", map[string]string{"MEDIA_STORAGE_DRIVER": "gcs"}},
		{"redis without url", map[string]string{"MEDIA_EVENTS_DRIVER": "redis"}},
		{"unknown policy", map[string]string{"MEDIA_POOLS_BATCH_POLICY": "yolo"}},
		{"core above max", map[string]string{"MEDIA_POOLS_BATCH_CORE_SIZE": "9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestPoolsConfigSpecs(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	specs, err := cfg.Pools.Specs()
	require.NoError(t, err)
	require.Len(t, specs, len(pool.Kinds))

	assert.Equal(t, pool.DefaultSpecs(), specs)

	cfg.Pools.Image.Policy = "nope"
	_, err = cfg.Pools.Specs()
	assert.Error(t, err)
}
