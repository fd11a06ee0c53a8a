// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Config holds all DSI configuration.
type Config struct {
	Version int `yaml:"version"`

	Backend   BackendConfig   `yaml:"backend"`
	Find      FindConfig      `yaml:"find"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig selects and tunes the metadata store.
type BackendConfig struct {
	Engine   string `yaml:"engine"` // sqlite | duckdb
	Path     string `yaml:"path"`
	RunTable *bool  `yaml:"run_table,omitempty"`
	Backup   *bool  `yaml:"backup,omitempty"`
}

// FindConfig controls find-expression translation.
type FindConfig struct {
	// Portable makes ~ case-sensitive and ~~ case-insensitive on every engine.
	Portable *bool `yaml:"portable,omitempty"`
}

// LogConfig sets the logrus level.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       *bool   `yaml:"enabled,omitempty"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// Bool dereferences an optional flag.
func Bool(b *bool) bool { return b != nil && *b }

func boolPtr(b bool) *bool { return &b }

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			Engine:   "sqlite",
			Path:     "dsi.db",
			RunTable: boolPtr(false),
			Backup:   boolPtr(false),
		},
		Find: FindConfig{
			Portable: boolPtr(true),
		},
		Log: LogConfig{
			Level: "warn",
		},
		Telemetry: TelemetryConfig{
			Enabled:       boolPtr(false),
			Endpoint:      "localhost:4317",
			ServiceName:   "dsi",
			SamplingRatio: 1.0,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	search []string
}

// NewManager creates a new configuration manager searching the standard
// locations.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		search: configPaths(),
	}
}

// NewManagerWithPaths creates a manager that reads only the given files, in
// order.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but report broken ones
			if !os.IsNotExist(err) {
				return dsierr.Wrap(err, dsierr.KindValue, "invalid configuration file").WithContext("path", path)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// configPaths returns config file paths in priority order.
func configPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/dsi/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dsi", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".dsi.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges set values from src into config.
func (m *Manager) merge(src *Config) {
	// Backend
	if src.Backend.Engine != "" {
		m.config.Backend.Engine = src.Backend.Engine
	}
	if src.Backend.Path != "" {
		m.config.Backend.Path = src.Backend.Path
	}
	if src.Backend.RunTable != nil {
		m.config.Backend.RunTable = src.Backend.RunTable
	}
	if src.Backend.Backup != nil {
		m.config.Backend.Backup = src.Backend.Backup
	}

	// Find
	if src.Find.Portable != nil {
		m.config.Find.Portable = src.Find.Portable
	}

	// Log
	if src.Log.Level != "" {
		m.config.Log.Level = src.Log.Level
	}

	// Telemetry
	if src.Telemetry.Enabled != nil {
		m.config.Telemetry.Enabled = src.Telemetry.Enabled
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.ServiceName != "" {
		m.config.Telemetry.ServiceName = src.Telemetry.ServiceName
	}
	if src.Telemetry.SamplingRatio != 0 {
		m.config.Telemetry.SamplingRatio = src.Telemetry.SamplingRatio
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// DSI_ENGINE
	if v := os.Getenv("DSI_ENGINE"); v != "" {
		m.config.Backend.Engine = v
	}

	// DSI_DATABASE
	if v := os.Getenv("DSI_DATABASE"); v != "" {
		m.config.Backend.Path = v
	}

	// DSI_RUN_TABLE
	if b, ok := envBool("DSI_RUN_TABLE"); ok {
		m.config.Backend.RunTable = &b
	}

	// DSI_BACKUP
	if b, ok := envBool("DSI_BACKUP"); ok {
		m.config.Backend.Backup = &b
	}

	// DSI_PORTABLE_FIND
	if b, ok := envBool("DSI_PORTABLE_FIND"); ok {
		m.config.Find.Portable = &b
	}

	// DSI_LOG_LEVEL
	if v := os.Getenv("DSI_LOG_LEVEL"); v != "" {
		m.config.Log.Level = v
	}

	// DSI_TELEMETRY_ENDPOINT enables tracing
	if v := os.Getenv("DSI_TELEMETRY_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = boolPtr(true)
	}
}

func envBool(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path, or to the user config file when
// path is empty.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return dsierr.Wrap(err, dsierr.KindIO, "cannot locate home directory")
		}
		path = filepath.Join(home, ".dsi", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return dsierr.Wrap(err, dsierr.KindIO, "cannot create config directory")
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return dsierr.Wrap(err, dsierr.KindValue, "cannot encode configuration")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return dsierr.Wrap(err, dsierr.KindIO, "cannot write configuration").WithContext("path", path)
	}
	return nil
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
