// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all InvoiceFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Engine    EngineConfig    `yaml:"engine"`
	Reports   ReportsConfig   `yaml:"reports"`
	Places    PlacesConfig    `yaml:"places"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig controls burst windowing and artifact storage.
type EngineConfig struct {
	Debounce time.Duration `yaml:"debounce"`  // quiet period ending a burst
	BurstTTL time.Duration `yaml:"burst_ttl"` // abandoned-window lifetime
	TempDir  string        `yaml:"temp_dir"`  // uploaded workbooks land here
}

// ReportsConfig controls the report sink.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// PlacesConfig selects the default-place backend.
type PlacesConfig struct {
	Backend string `yaml:"backend"` // memory | redis

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig for the redis place backend.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	Prefix   string        `yaml:"prefix"`
	Timeout  time.Duration `yaml:"timeout"`
	PoolSize int           `yaml:"pool_size"`
}

// ServerConfig for the HTTP intake server.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	MaxUploadSize string `yaml:"max_upload_size"`
}

// WatchConfig for the inbox directory watcher.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	User    string `yaml:"user"` // events from the inbox are attributed to this user
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	flowDir := filepath.Join(homeDir, ".invoiceflow")

	return &Config{
		Version: 1,
		Engine: EngineConfig{
			Debounce: time.Second,
			BurstTTL: 12 * time.Second,
			TempDir:  filepath.Join(os.TempDir(), "invoiceflow"),
		},
		Reports: ReportsConfig{
			Dir: filepath.Join(flowDir, "reports"),
		},
		Places: PlacesConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Prefix:   "invoiceflow:places:",
				Timeout:  5 * time.Second,
				PoolSize: 10,
			},
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "localhost",
			MaxUploadSize: "50MB",
		},
		Watch: WatchConfig{
			Enabled: false,
			Dir:     filepath.Join(flowDir, "inbox"),
			User:    "inbox",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but surface errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	// Ensure directories exist
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/invoiceflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".invoiceflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".invoiceflow.yaml"))
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

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	// Engine
	if src.Engine.Debounce != 0 {
		m.config.Engine.Debounce = src.Engine.Debounce
	}
	if src.Engine.BurstTTL != 0 {
		m.config.Engine.BurstTTL = src.Engine.BurstTTL
	}
	if src.Engine.TempDir != "" {
		m.config.Engine.TempDir = src.Engine.TempDir
	}

	// Reports
	if src.Reports.Dir != "" {
		m.config.Reports.Dir = src.Reports.Dir
	}

	// Places
	if src.Places.Backend != "" {
		m.config.Places.Backend = src.Places.Backend
	}
	if src.Places.Redis.Address != "" {
		m.config.Places.Redis.Address = src.Places.Redis.Address
	}
	if src.Places.Redis.Password != "" {
		m.config.Places.Redis.Password = src.Places.Redis.Password
	}
	if src.Places.Redis.Database != 0 {
		m.config.Places.Redis.Database = src.Places.Redis.Database
	}
	if src.Places.Redis.Prefix != "" {
		m.config.Places.Redis.Prefix = src.Places.Redis.Prefix
	}
	if src.Places.Redis.Timeout != 0 {
		m.config.Places.Redis.Timeout = src.Places.Redis.Timeout
	}
	if src.Places.Redis.PoolSize != 0 {
		m.config.Places.Redis.PoolSize = src.Places.Redis.PoolSize
	}

	// Server
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.MaxUploadSize != "" {
		m.config.Server.MaxUploadSize = src.Server.MaxUploadSize
	}

	// Watch
	if src.Watch.Enabled {
		m.config.Watch.Enabled = true
	}
	if src.Watch.Dir != "" {
		m.config.Watch.Dir = src.Watch.Dir
	}
	if src.Watch.User != "" {
		m.config.Watch.User = src.Watch.User
	}

	// Telemetry
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	// INVOICEFLOW_DEBOUNCE
	if v := os.Getenv("INVOICEFLOW_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Engine.Debounce = d
		}
	}

	// INVOICEFLOW_BURST_TTL
	if v := os.Getenv("INVOICEFLOW_BURST_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			m.config.Engine.BurstTTL = d
		}
	}

	// INVOICEFLOW_REPORTS_DIR
	if v := os.Getenv("INVOICEFLOW_REPORTS_DIR"); v != "" {
		m.config.Reports.Dir = v
	}

	// INVOICEFLOW_PLACES_BACKEND
	if v := os.Getenv("INVOICEFLOW_PLACES_BACKEND"); v != "" {
		m.config.Places.Backend = v
	}

	// INVOICEFLOW_REDIS_ADDRESS
	if v := os.Getenv("INVOICEFLOW_REDIS_ADDRESS"); v != "" {
		m.config.Places.Redis.Address = v
	}

	// INVOICEFLOW_PORT
	if v := os.Getenv("INVOICEFLOW_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			m.config.Server.Port = port
		}
	}

	// INVOICEFLOW_WATCH_DIR
	if v := os.Getenv("INVOICEFLOW_WATCH_DIR"); v != "" {
		m.config.Watch.Enabled = true
		m.config.Watch.Dir = v
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Engine.TempDir,
		m.config.Reports.Dir,
	}
	if m.config.Watch.Enabled {
		dirs = append(dirs, m.config.Watch.Dir)
	}

	for _, dir := range dirs {
		os.MkdirAll(dir, 0755)
	}
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

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".invoiceflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
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
