// Package config provides YAML-based configuration for the kbdesk companion
// server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains companion HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// BackendConfig points at the RAG backend
type BackendConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// KnowledgeBase preselects the chat selector. Empty sends no selector.
	KnowledgeBase string `yaml:"knowledge_base"`
}

// StorageConfig contains local file settings
type StorageConfig struct {
	DataDirectory  string `yaml:"data_directory"`
	SpoolDirectory string `yaml:"spool_directory"`
	// WatchDirectory enables the inbox watcher when set.
	WatchDirectory      string `yaml:"watch_directory"`
	SpoolMaxAgeHours    int    `yaml:"spool_max_age_hours"`
	CleanupIntervalMins int    `yaml:"cleanup_interval_minutes"`
}

// UIConfig contains widget timing settings
type UIConfig struct {
	NoticeSeconds       int `yaml:"notice_seconds"`
	CopyFeedbackSeconds int `yaml:"copy_feedback_seconds"`
}

// AdvancedConfig contains tuning options
type AdvancedConfig struct {
	LogLevel                string `yaml:"log_level"`
	PrettyLogs              bool   `yaml:"pretty_logs"`
	EnableRequestLogging    bool   `yaml:"enable_request_logging"`
	WebSocketMaxMessageSize int    `yaml:"websocket_max_message_size_kb"`
	WatchSettleMillis       int    `yaml:"watch_settle_millis"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 300,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:8000",
			TimeoutSeconds: 300,
		},
		Storage: StorageConfig{
			DataDirectory:       "./data",
			SpoolDirectory:      "./data/spool",
			SpoolMaxAgeHours:    24,
			CleanupIntervalMins: 10,
		},
		UI: UIConfig{
			NoticeSeconds:       5,
			CopyFeedbackSeconds: 2,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			PrettyLogs:              true,
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
			WatchSettleMillis:       500,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults there
// first when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# kbdesk configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if url := os.Getenv("BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.SpoolDirectory = filepath.Join(dataDir, "spool")
	}
	if watchDir := os.Getenv("KB_WATCH_DIR"); watchDir != "" {
		c.Storage.WatchDirectory = watchDir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.SpoolDirectory)
	resolve(&c.Storage.WatchDirectory)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// BackendTimeout returns the backend HTTP client timeout.
func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// NoticeTTL returns how long widget notices stay visible.
func (c *AppConfig) NoticeTTL() time.Duration {
	return time.Duration(c.UI.NoticeSeconds) * time.Second
}

// CopyFeedback returns how long a copied chat entry stays flagged.
func (c *AppConfig) CopyFeedback() time.Duration {
	return time.Duration(c.UI.CopyFeedbackSeconds) * time.Second
}

// SpoolMaxAge returns the age after which spool files are removed.
func (c *AppConfig) SpoolMaxAge() time.Duration {
	return time.Duration(c.Storage.SpoolMaxAgeHours) * time.Hour
}

// CleanupInterval returns how often spool files and old jobs are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Storage.CleanupIntervalMins) * time.Minute
}

// WatchSettle returns how long an inbox file must be quiet before staging.
func (c *AppConfig) WatchSettle() time.Duration {
	return time.Duration(c.Advanced.WatchSettleMillis) * time.Millisecond
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.SpoolDirectory,
	}
	if c.Storage.WatchDirectory != "" {
		dirs = append(dirs, c.Storage.WatchDirectory)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
