package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/adaptiq/internal/estimate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "adaptiq.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15, cfg.Session.Stopping.MinItems)
	assert.Equal(t, 30, cfg.Session.Stopping.MaxItems)
	assert.Equal(t, 0.30, cfg.Session.Stopping.StandardErrorThreshold)
	assert.Equal(t, 0.20, cfg.Selector.MaxExposureRate)
	assert.Equal(t, 60*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, estimate.MissingItemSkip, cfg.Session.MLE.MissingItems)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	p := writeConfig(t, `
log_level: debug
seed: 42
item_bank: /srv/items.yaml
selector:
  max_exposure_rate: 0.25
session:
  idle_timeout: 15m
  stopping:
    min_items: 10
    max_items: 20
  content_targets:
    algebra: 5
    geometry: 5
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, "/srv/items.yaml", cfg.ItemBank)
	assert.Equal(t, 0.25, cfg.Selector.MaxExposureRate)
	assert.Equal(t, 0.05, cfg.Selector.RandomizationPercentile)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 10, cfg.Session.Stopping.MinItems)
	assert.Equal(t, 20, cfg.Session.Stopping.MaxItems)
	assert.Equal(t, 0.30, cfg.Session.Stopping.StandardErrorThreshold)
	assert.Equal(t, map[string]int{"algebra": 5, "geometry": 5}, cfg.Session.ContentTargets)
	assert.Equal(t, 50, cfg.Session.MLE.MaxIterations)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "log_level: debug\nsession:\n  stopping:\n    max_items: 20\n")
	t.Setenv("ADAPTIQ_LOG_LEVEL", "warn")
	t.Setenv("ADAPTIQ_MAX_ITEMS", "40")
	t.Setenv("ADAPTIQ_SE_THRESHOLD", "0.25")
	t.Setenv("ADAPTIQ_IDLE_TIMEOUT", "2h")
	t.Setenv("ADAPTIQ_SEED", "7")
	t.Setenv("ADAPTIQ_DB", "/tmp/adaptiq-test.db")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 40, cfg.Session.Stopping.MaxItems)
	assert.Equal(t, 0.25, cfg.Session.Stopping.StandardErrorThreshold)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTimeout)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "/tmp/adaptiq-test.db", cfg.DBPath)
}

func TestMalformedEnvIsReported(t *testing.T) {
	t.Setenv("ADAPTIQ_MAX_ITEMS", "many")
	t.Setenv("ADAPTIQ_IDLE_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADAPTIQ_MAX_ITEMS")
	assert.Contains(t, err.Error(), "ADAPTIQ_IDLE_TIMEOUT")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad level", "log_level: loud\n", "log level"},
		{"max below min", "session:\n  stopping:\n    min_items: 20\n    max_items: 10\n", "max items"},
		{"exposure rate", "selector:\n  max_exposure_rate: 0\n", "exposure rate"},
		{"quadrature", "session:\n  eap:\n    quadrature_points: 1\n", "quadrature"},
		{"theta bounds", "session:\n  mle:\n    min_theta: 4\n    max_theta: -4\n", "theta bounds"},
		{"content target", "session:\n  content_targets:\n    algebra: -1\n", "content target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "selector: [unclosed\n"))
	assert.Error(t, err)
}
