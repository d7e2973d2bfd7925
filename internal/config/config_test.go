package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionscope/motionscope/internal/detect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motionscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default().System, cfg.System); diff != "" {
		t.Errorf("system config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Default().Engine, cfg.Engine); diff != "" {
		t.Errorf("engine settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
system:
  log_level: debug
engine:
  detection:
    algorithm: frame_difference
    threshold: 40
api:
  enabled: true
  host: 127.0.0.1
  port: 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.System.LogLevel)
	assert.Equal(t, detect.AlgorithmFrameDifference, cfg.Engine.Detection.Algorithm)
	assert.Equal(t, 40, cfg.Engine.Detection.Threshold)
	assert.Equal(t, 9090, cfg.API.Port)
	// Unset fields inherit defaults.
	assert.Equal(t, 50, cfg.Engine.Detection.MinObjectSize)
	assert.Equal(t, int64(5000), cfg.Engine.LostAfterMillis)
	assert.True(t, cfg.Store.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
engine:
  detection:
    threshold: 300
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "engine: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad api port", func(c *Config) { c.API.Port = 70000 }, false},
		{"api disabled ignores port", func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }, true},
		{"store without path", func(c *Config) { c.Store.Path = "" }, false},
		{"store disabled without path", func(c *Config) { c.Store.Enabled = false; c.Store.Path = "" }, true},
		{"unknown log level", func(c *Config) { c.System.LogLevel = "chatty" }, false},
		{"bad engine settings", func(c *Config) { c.Engine.LostAfterMillis = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range levels {
		cfg := Default()
		cfg.System.LogLevel = name
		assert.Equal(t, want, cfg.SlogLevel(), name)
	}
}

func TestOnChangeCallback(t *testing.T) {
	cfg := Default()
	var got *Config
	cfg.OnChange(func(c *Config) { got = c })

	fresh := Default()
	fresh.System.LogLevel = "debug"
	cfg.apply(fresh)

	require.NotNil(t, got)
	assert.Equal(t, "debug", got.System.LogLevel)
	assert.Equal(t, "debug", cfg.System.LogLevel)
}

func TestOnChangeMultipleCallbacks(t *testing.T) {
	cfg := Default()
	var order []int
	cfg.OnChange(func(*Config) { order = append(order, 1) })
	cfg.OnChange(func(*Config) { order = append(order, 2) })

	cfg.apply(Default())
	assert.Equal(t, []int{1, 2}, order)
}

func TestOnChangeReentrantRegistration(t *testing.T) {
	cfg := Default()
	fired := false
	// Callbacks run outside the lock on a copied list, so a callback may
	// register another callback without deadlocking.
	cfg.OnChange(func(c *Config) {
		c.OnChange(func(*Config) { fired = true })
	})

	cfg.apply(Default())
	assert.False(t, fired, "late registration waits for the next reload")

	cfg.apply(Default())
	assert.True(t, fired)
}
