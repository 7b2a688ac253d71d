package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// SyncConfig controls the refresh triggers
type SyncConfig struct {
	// PollIntervalSec is the fixed poll period; 0 uses the default
	PollIntervalSec int `json:"poll_interval_sec"`
	// PushURL is the websocket endpoint for push notifications.
	// Empty disables the push listener; polling still runs.
	PushURL string `json:"push_url"`
	// PageSize is the folder fetch page size
	PageSize int `json:"page_size"`
}

// ComposeConfig controls draft autosave and the undo-send window
type ComposeConfig struct {
	// AutosaveDebounceMs is the typing pause before a draft autosave
	AutosaveDebounceMs int `json:"autosave_debounce_ms"`
	// UndoWindowSec is the length of the cancellable send countdown
	UndoWindowSec int `json:"undo_window_sec"`
}

// Config holds all configuration for the unibox client
type Config struct {
	// BaseURL is the platform REST API root
	BaseURL string `json:"base_url"`
	// TokenFile is the path to the file holding the API bearer token
	TokenFile string `json:"token_file"`
	// DBPath locates the local SQLite store for rules and preferences
	DBPath string `json:"db_path"`
	// InitialFolder is the folder opened on startup
	InitialFolder string `json:"initial_folder"`

	Sync    SyncConfig    `json:"sync"`
	Compose ComposeConfig `json:"compose"`

	// Logging
	LogFile string `json:"log_file"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		InitialFolder: "inbox",
		DBPath:        DefaultDBPath(),
		Sync: SyncConfig{
			PollIntervalSec: 120,
			PageSize:        50,
		},
		Compose: ComposeConfig{
			AutosaveDebounceMs: 2000,
			UndoWindowSec:      5,
		},
	}
}

// LoadConfig loads configuration from the given path over the defaults.
// A missing file is not an error; the defaults stand.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	// Environment overrides
	if v := os.Getenv("UNIBOX_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("UNIBOX_TOKEN_FILE"); v != "" {
		cfg.TokenFile = v
	}

	return cfg, nil
}

// SaveConfig writes the configuration to the given path, creating the
// parent directory if needed.
func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0o600)
}

// DefaultConfigPath returns ~/.config/unibox/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "unibox", "config.json")
}

// DefaultDBPath returns ~/.config/unibox/unibox.db
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "unibox", "unibox.db")
}

// PollInterval returns the poll period as a duration
func (c *Config) PollInterval() time.Duration {
	if c.Sync.PollIntervalSec <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Sync.PollIntervalSec) * time.Second
}

// AutosaveDebounce returns the autosave debounce as a duration
func (c *Config) AutosaveDebounce() time.Duration {
	if c.Compose.AutosaveDebounceMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Compose.AutosaveDebounceMs) * time.Millisecond
}

// UndoWindow returns the undo-send window as a duration
func (c *Config) UndoWindow() time.Duration {
	if c.Compose.UndoWindowSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Compose.UndoWindowSec) * time.Second
}
