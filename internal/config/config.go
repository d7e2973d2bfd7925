// Package config provides configuration loading, validation, and hot
// reload for the motionscope daemon.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/motionscope/motionscope/internal/engine"
)

// Config is the daemon configuration.
type Config struct {
	System SystemConfig    `yaml:"system"`
	Engine engine.Settings `yaml:"engine"`
	API    APIConfig       `yaml:"api"`
	Bus    BusConfig       `yaml:"bus"`
	Store  StoreConfig     `yaml:"store"`

	mu       sync.Mutex        `yaml:"-"`
	path     string            `yaml:"-"`
	watcher  *fsnotify.Watcher `yaml:"-"`
	onChange []func(*Config)   `yaml:"-"`
}

// SystemConfig holds daemon-wide settings.
type SystemConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json or text
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig holds event persistence settings. Persistence is owned by
// the daemon, not the engine; disabling it leaves the engine untouched.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			Name:      "motionscope",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Engine: engine.DefaultSettings(),
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Bus: BusConfig{
			Host: "127.0.0.1",
			Port: 14222,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "motionscope.db",
		},
	}
}

// Load reads and validates a YAML config file. Missing file returns the
// defaults; partial files inherit defaults for unset sections.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Engine.Detection.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api: port %d out of range", c.API.Port)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store: path required when enabled")
	}
	switch c.System.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("system: unknown log level %q", c.System.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured level to slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.System.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnChange registers a callback invoked after a successful reload.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Watch reloads the config when the file changes on disk. A reload that
// fails validation is logged and discarded; the previous settings stay
// in effect.
func (c *Config) Watch(logger *slog.Logger) error {
	if c.path == "" {
		return fmt.Errorf("no config path to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.path, err)
	}
	c.watcher = watcher
	logger = logger.With("component", "config")

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fresh, err := Load(c.path)
				if err != nil {
					logger.Warn("config reload rejected, keeping previous settings", "error", err)
					continue
				}
				c.apply(fresh)
				logger.Info("config reloaded", "path", c.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (c *Config) apply(fresh *Config) {
	c.mu.Lock()
	c.System = fresh.System
	c.Engine = fresh.Engine
	c.API = fresh.API
	c.Bus = fresh.Bus
	c.Store = fresh.Store
	callbacks := append([]func(*Config){}, c.onChange...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
}

// Close stops the watcher.
func (c *Config) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
