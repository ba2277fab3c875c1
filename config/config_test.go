package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 224, cfg.Extractor.InputWidth)
	assert.Equal(t, 224, cfg.Extractor.InputHeight)
	assert.Equal(t, "nearest", cfg.Extractor.Interpolation)
	assert.Equal(t, "vgg16", cfg.Extractor.Backbone)
	assert.Equal(t, 0.2, cfg.Classifier.TestSize)
	assert.Equal(t, int64(42), cfg.Classifier.Seed)
	assert.Equal(t, 1.0, cfg.Classifier.C)
	assert.Equal(t, 100, cfg.Classifier.MaxIter)
	assert.Equal(t, "Train", cfg.Dataset.TrainDir)
	assert.Equal(t, "Test", cfg.Dataset.TestDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "firesmoke.yaml")
	body := []byte(`
dataset:
  root: /data/fire
classifier:
  solver: adam
  max_iter: 250
cache:
  enabled: true
  path: /tmp/features.db
output:
  report_interval: 1m
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/fire", cfg.Dataset.Root)
	assert.Equal(t, "adam", cfg.Classifier.Solver)
	assert.Equal(t, 250, cfg.Classifier.MaxIter)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Output.ReportInterval)
	// Untouched keys keep their defaults.
	assert.Equal(t, "Train", cfg.Dataset.TrainDir)
	assert.Equal(t, int64(42), cfg.Classifier.Seed)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIRESMOKE_DATASET_ROOT", "/env/root")
	t.Setenv("FIRESMOKE_SEED", "7")
	t.Setenv("FIRESMOKE_TEST_SIZE", "0.25")
	t.Setenv("FIRESMOKE_CACHE_ENABLED", "true")
	t.Setenv("FIRESMOKE_REPORT_INTERVAL", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/env/root", cfg.Dataset.Root)
	assert.Equal(t, int64(7), cfg.Classifier.Seed)
	assert.Equal(t, 0.25, cfg.Classifier.TestSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Output.ReportInterval)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"FIRESMOKE_MAX_ITER", "not-a-number"},
		{"FIRESMOKE_SEED", "4.2"},
		{"FIRESMOKE_C", "one"},
		{"FIRESMOKE_TEST_SIZE", "20%"},
		{"FIRESMOKE_CACHE_ENABLED", "sometimes"},
		{"FIRESMOKE_REPORT_INTERVAL", "30"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFileMissingIsNoop(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FIRESMOKE_SOLVER=adam\nFIRESMOKE_LOADER=opencv\n"), 0o644))
	t.Setenv("FIRESMOKE_SOLVER", "lbfgs")
	t.Setenv("FIRESMOKE_LOADER", "")
	os.Unsetenv("FIRESMOKE_LOADER")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "lbfgs", os.Getenv("FIRESMOKE_SOLVER"))
	assert.Equal(t, "opencv", os.Getenv("FIRESMOKE_LOADER"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Dataset.Root = "" }},
		{"no backbone", func(c *Config) { c.Extractor.Backbone = "" }},
		{"zero width", func(c *Config) { c.Extractor.InputWidth = 0 }},
		{"bad loader", func(c *Config) { c.Extractor.Loader = "vips" }},
		{"bad solver", func(c *Config) { c.Classifier.Solver = "newton" }},
		{"negative C", func(c *Config) { c.Classifier.C = -1 }},
		{"zero iterations", func(c *Config) { c.Classifier.MaxIter = 0 }},
		{"test size one", func(c *Config) { c.Classifier.TestSize = 1 }},
		{"no output", func(c *Config) { c.Output.ModelPath = "" }},
		{"negative report interval", func(c *Config) { c.Output.ReportInterval = -time.Second }},
		{"cache without path", func(c *Config) { c.Cache.Enabled = true; c.Cache.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
