package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("CreatesDefaultWhenMissing", func(t *testing.T) {
		testDir := t.TempDir()
		configPath := filepath.Join(testDir, "config.toml")

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Errorf("Expected default config file to be created: %v", err)
		}
		if cfg.Server.Port != "8080" {
			t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
		}
		if cfg.Session.TimeoutMinutes != 120 {
			t.Errorf("Expected default session timeout 120, got %d", cfg.Session.TimeoutMinutes)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		testDir := t.TempDir()
		configPath := filepath.Join(testDir, "config.toml")

		cfg := DefaultConfig()
		cfg.Server.Port = "9090"
		cfg.Library.Path = "/srv/mappings"
		cfg.Library.AudioFormats = []string{".mp3", ".flac"}
		cfg.Auth.Enabled = true

		if err := cfg.SaveToFile(configPath); err != nil {
			t.Fatalf("Failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to reload config: %v", err)
		}
		if loaded.Server.Port != "9090" {
			t.Errorf("Expected port 9090, got %s", loaded.Server.Port)
		}
		if loaded.Library.Path != "/srv/mappings" {
			t.Errorf("Expected library path /srv/mappings, got %s", loaded.Library.Path)
		}
		if len(loaded.Library.AudioFormats) != 2 {
			t.Errorf("Expected 2 audio formats, got %d", len(loaded.Library.AudioFormats))
		}
		if !loaded.Auth.Enabled {
			t.Error("Expected auth to remain enabled")
		}
	})

	t.Run("RejectsInvalidFile", func(t *testing.T) {
		testDir := t.TempDir()
		configPath := filepath.Join(testDir, "config.toml")
		if err := os.WriteFile(configPath, []byte("this is not toml {{"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("Expected error for malformed config file")
		}
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"Defaults", func(c *Config) {}, true},
		{"EmptyPort", func(c *Config) { c.Server.Port = "" }, false},
		{"EmptyHost", func(c *Config) { c.Server.Host = "" }, false},
		{"EmptyDatabasePath", func(c *Config) { c.Database.Path = "" }, false},
		{"EmptyLibraryPath", func(c *Config) { c.Library.Path = "" }, false},
		{"NoAudioFormats", func(c *Config) { c.Library.AudioFormats = nil }, false},
		{"ZeroSessionTimeout", func(c *Config) { c.Session.TimeoutMinutes = 0 }, false},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "localhost"
	cfg.Server.Port = "8080"

	if addr := cfg.GetAddress(); addr != "localhost:8080" {
		t.Errorf("Expected localhost:8080, got %s", addr)
	}
}

func TestIsAudioFormatSupported(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.IsAudioFormatSupported(".mp3") {
		t.Error("Expected .mp3 to be supported")
	}
	if cfg.IsAudioFormatSupported(".ogg") {
		t.Error("Expected .ogg to be unsupported")
	}
}
