package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 384, cfg.Normalizer.MaxDimension)
	assert.Equal(t, 10*time.Second, cfg.Probe.Timeout)
	assert.False(t, cfg.Probe.Enabled)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Analyzer.SupportedFormats = nil
	cfg.Normalizer.MaxDimension = 0
	cfg.Annotator.Quality = 101
	cfg.Annotator.Format = "bmp"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.Contains(t, err.Error(), "normalizer.max_dimension")
}

func TestValidateProbe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled probe ignores backend", func(c *Config) { c.Probe.Backend = "nope" }, false},
		{"enabled ollama", func(c *Config) { c.Probe.Enabled = true }, false},
		{"enabled llamacpp", func(c *Config) {
			c.Probe.Enabled = true
			c.Probe.Backend = BackendLlamaCPP
		}, false},
		{"unknown backend", func(c *Config) {
			c.Probe.Enabled = true
			c.Probe.Backend = "openai"
		}, true},
		{"missing url", func(c *Config) {
			c.Probe.Enabled = true
			c.Probe.URL = ""
		}, true},
		{"zero timeout", func(c *Config) { c.Probe.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
normalizer:
  max_dimension: 512
probe:
  enabled: true
  backend: llamacpp
  url: http://gpu-box:8080
  timeout: 3s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Normalizer.MaxDimension)
	assert.True(t, cfg.Probe.Enabled)
	assert.Equal(t, BackendLlamaCPP, cfg.Probe.Backend)
	assert.Equal(t, "http://gpu-box:8080", cfg.Probe.URL)
	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched sections keep their defaults
	assert.Equal(t, "png", cfg.Annotator.Format)
	assert.Equal(t, "llava:7b", cfg.Probe.Model)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	original := Default()
	original.Server.Address = "127.0.0.1:9000"
	original.Analyzer.SupportedFormats = []string{"png"}
	require.NoError(t, original.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DENTAL_PROBE_ENABLED", "true")
	t.Setenv("DENTAL_PROBE_TIMEOUT", "250ms")
	t.Setenv("DENTAL_SUPPORTED_FORMATS", "png,jpeg")
	t.Setenv("DENTAL_LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Probe.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Probe.Timeout)
	assert.Equal(t, []string{"png", "jpeg"}, cfg.Analyzer.SupportedFormats)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DENTAL_MAX_DIMENSION=256\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("DENTAL_MAX_DIMENSION") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Normalizer.MaxDimension)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DENTAL_ANNOTATOR_QUALITY", "0")

	_, err := Load("")
	require.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.json", filepath.Base(GetConfigPath()))
}
