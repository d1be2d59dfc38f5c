package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/trackd/internal/utils"
)

var (
	home, _                        = os.UserHomeDir()
	DefaultConfigPath              = filepath.Join(home, ".trackd", "config.json")
	DefaultDataDir                 = filepath.Join(home, ".trackd", "data")
	DefaultServerURL               = "https://api.track.toggl.com"
	DefaultBackgroundSyncThreshold = 5 * time.Minute
	DefaultLogLevel                = "info"
)

var (
	ErrNoDataDir        = errors.New("config: data dir is required")
	ErrNoConfigPath     = errors.New("config: path is required")
	ErrInvalidServerURL = errors.New("config: invalid server url")
	ErrInvalidThreshold = errors.New("config: background sync threshold must not be negative")
	ErrInvalidLogLevel  = errors.New("config: invalid log level")
)

type Config struct {
	DataDir   string `json:"data_dir"`
	Email     string `json:"email,omitempty"`
	ServerURL string `json:"server_url"`
	// APIToken is persisted so a later run can restore the session
	APIToken                string        `json:"api_token,omitempty"`
	BackgroundSyncThreshold time.Duration `json:"background_sync_threshold,omitempty"`
	LogLevel                string        `json:"log_level,omitempty"`
	Path                    string        `json:"-"`
}

// Default returns a config populated with the default values
func Default() *Config {
	return &Config{
		DataDir:                 DefaultDataDir,
		ServerURL:               DefaultServerURL,
		BackgroundSyncThreshold: DefaultBackgroundSyncThreshold,
		LogLevel:                DefaultLogLevel,
		Path:                    DefaultConfigPath,
	}
}

// Validate normalizes paths and email in place and rejects unusable values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	if c.Path == "" {
		return ErrNoConfigPath
	}

	var err error
	if c.DataDir, err = utils.ResolvePath(c.DataDir); err != nil {
		return fmt.Errorf("config: data dir: %w", err)
	}
	if c.Path, err = utils.ResolvePath(c.Path); err != nil {
		return fmt.Errorf("config: path: %w", err)
	}

	if c.Email != "" {
		if c.Email, err = utils.NormalizeEmail(c.Email); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if err := validateServerURL(c.ServerURL); err != nil {
		return err
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.BackgroundSyncThreshold < 0 {
		return ErrInvalidThreshold
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return level, nil
}

// HasCredentials reports whether a previous login left an api token behind
func (c *Config) HasCredentials() bool {
	return c.APIToken != ""
}

// ClearCredentials forgets the api token and email
func (c *Config) ClearCredentials() {
	c.APIToken = ""
	c.Email = ""
}

// Save writes the config to c.Path, readable by the owner only since it
// carries the api token
func (c *Config) Save() error {
	if c.Path == "" {
		return ErrNoConfigPath
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

func validateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}
	return nil
}
