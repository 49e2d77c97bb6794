package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Library  LibraryConfig  `toml:"library"`
	Session  SessionConfig  `toml:"session"`
	Logging  LoggingConfig  `toml:"logging"`
	Auth     AuthConfig     `toml:"auth"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	StaticDir   string `toml:"static_dir"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// DatabaseConfig contains the library index configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains the sync mapping library configuration
type LibraryConfig struct {
	Path            string   `toml:"path"`
	AudioFormats    []string `toml:"audio_formats"`
	WatchForChanges bool     `toml:"watch_for_changes"`
	ScanOnStartup   bool     `toml:"scan_on_startup"`
}

// SessionConfig controls builder/player session lifecycle
type SessionConfig struct {
	TimeoutMinutes int `toml:"timeout_minutes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	Enabled           bool   `toml:"enabled"`
	UsersFilePath     string `toml:"users_file_path"`
	SessionDuration   string `toml:"session_duration"`
	SecureCookies     bool   `toml:"secure_cookies"`
	AllowRegistration bool   `toml:"allow_registration"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	Region       string `toml:"region"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			StaticDir:   "./static",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Database: DatabaseConfig{
			Path: "./tabsync.db",
		},
		Library: LibraryConfig{
			Path:            "./mappings",
			AudioFormats:    []string{".mp3", ".flac", ".wav", ".m4a"},
			WatchForChanges: true,
			ScanOnStartup:   true,
		},
		Session: SessionConfig{
			TimeoutMinutes: 120,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
		Auth: AuthConfig{
			Enabled:           false,
			UsersFilePath:     "./users.toml",
			SessionDuration:   "24h",
			SecureCookies:     false,
			AllowRegistration: false,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			Region:       "us",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create or open file
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Write header comment
	header := `# Tabsync Server Configuration
# This file contains all configuration options for the tabsync server.
# Edit the values below to customize your server settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	// Encode configuration to TOML
	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Validate library config
	if c.Library.Path == "" {
		return fmt.Errorf("library path cannot be empty")
	}
	if len(c.Library.AudioFormats) == 0 {
		return fmt.Errorf("at least one audio format must be specified")
	}

	if c.Session.TimeoutMinutes < 1 {
		return fmt.Errorf("session timeout must be at least one minute")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsAudioFormatSupported checks if an audio file format can be probed
func (c *Config) IsAudioFormatSupported(format string) bool {
	for _, supported := range c.Library.AudioFormats {
		if supported == format {
			return true
		}
	}
	return false
}
