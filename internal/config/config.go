package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for calbot.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Secrets  SecretsConfig  `toml:"secrets"`
	Matrix   MatrixConfig   `toml:"matrix"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Sync     SyncConfig     `toml:"sync"`
	Dispatch DispatchConfig `toml:"dispatch"`
}

// DatabaseConfig represents configuration for the state database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SecretsConfig selects how credentials are sealed at rest.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SecretsConfig struct {
	Type         string `toml:"type"`                    // "age" (default), "plain" or "test"
	IdentityPath string `toml:"identity_path,omitempty"` // only used for type=age
}

// MatrixConfig holds the homeserver the bot delivers reminders through.
type MatrixConfig struct {
	HomeserverURL string `toml:"homeserver_url"`
	AccessToken   string `toml:"access_token"`
}

// OAuthConfig holds the client credentials used to refresh calendar tokens.
// The authorization-code exchange that produces the initial token pair
// happens elsewhere; `calbot oauth add` stores its result.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
}

// SyncConfig controls calendar feed synchronization.
type SyncConfig struct {
	IntervalMinutes     int64 `toml:"interval_minutes"`      // default cadence; calendars may override
	MaxParallel         int64 `toml:"max_parallel"`          // cap on concurrent feed fetches
	HorizonDays         int64 `toml:"horizon_days"`          // how far ahead occurrences are searched
	FetchTimeoutSeconds int64 `toml:"fetch_timeout_seconds"` // per-fetch HTTP deadline
}

// DispatchConfig controls reminder delivery.
type DispatchConfig struct {
	IntervalMinutes int64 `toml:"interval_minutes"` // tick granularity; keep at 1
	GraceMinutes    int64 `toml:"grace_minutes"`    // how late a reminder may still fire
}

// NewConfig creates a new Config with the provided base directory and
// default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Secrets: SecretsConfig{
			Type:         "age",
			IdentityPath: filepath.Join(baseDir, "keys", "calbot.key"),
		},
		Sync: SyncConfig{
			IntervalMinutes:     5,
			MaxParallel:         4,
			HorizonDays:         730,
			FetchTimeoutSeconds: 15,
		},
		Dispatch: DispatchConfig{
			IntervalMinutes: 1,
			GraceMinutes:    60,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
