// Package config provides configuration loading and management for mdpreview.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mdpreview configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Editor  EditorConfig  `yaml:"editor"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the web server
type ServerConfig struct {
	// Addr is the listen address (default: 127.0.0.1:8080)
	Addr string `yaml:"addr"`
	// BaseURL is the externally visible URL used in emailed links and OAuth redirects
	BaseURL string `yaml:"base_url"`
	// ReadTimeout bounds reading a whole request
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds writing a response; 0 keeps SSE streams open
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig configures where data lives
type StorageConfig struct {
	// DataDir holds the SQLite database, secret key, outbox, backups and logs (default: ~/.mdpreview)
	DataDir string `yaml:"data_dir"`
}

// AuthConfig configures accounts and sessions
type AuthConfig struct {
	// Secret signs session and email tokens (empty = generated into the data dir)
	Secret          string        `yaml:"secret"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	RecoveryTTL     time.Duration `yaml:"recovery_ttl"`
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	// MaxLoginAttempts failed logins per email inside AttemptWindow (0 = default)
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	AttemptWindow    time.Duration `yaml:"attempt_window"`
	Google           GoogleConfig  `yaml:"google"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// RedirectURL defaults to <base_url>/auth/google/callback
	RedirectURL string `yaml:"redirect_url"`
}

// EditorConfig configures the editor session defaults
type EditorConfig struct {
	AutoSave        bool          `yaml:"autosave"`
	AutoSaveDelay   time.Duration `yaml:"autosave_delay"`
	AutoSaveCeiling time.Duration `yaml:"autosave_ceiling"`
	SaveTimeout     time.Duration `yaml:"save_timeout"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			BaseURL:     "http://127.0.0.1:8080",
			ReadTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "", // ~/.mdpreview
		},
		Auth: AuthConfig{
			SessionTTL:       30 * 24 * time.Hour,
			RecoveryTTL:      time.Hour,
			VerificationTTL:  24 * time.Hour,
			BcryptCost:       12,
			MaxLoginAttempts: 10,
			AttemptWindow:    15 * time.Minute,
		},
		Editor: EditorConfig{
			AutoSave:        true,
			AutoSaveDelay:   3 * time.Second,
			AutoSaveCeiling: 30 * time.Second,
			SaveTimeout:     15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.RecoveryTTL <= 0 || c.Auth.VerificationTTL <= 0 {
		return fmt.Errorf("auth token lifetimes must be positive")
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 31")
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth.secret must be at least 16 characters")
	}
	if c.Editor.AutoSaveDelay < 500*time.Millisecond || c.Editor.AutoSaveDelay > time.Minute {
		return fmt.Errorf("editor.autosave_delay must be between 500ms and 1m")
	}
	if c.Editor.AutoSaveCeiling < c.Editor.AutoSaveDelay {
		return fmt.Errorf("editor.autosave_ceiling must not be shorter than editor.autosave_delay")
	}
	if c.Editor.SaveTimeout <= 0 {
		return fmt.Errorf("editor.save_timeout must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may carry the signing secret and OAuth client secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// Booleans are not merged; they come from the file or the environment.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.BaseURL != "" {
		c.Server.BaseURL = other.Server.BaseURL
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}

	// Auth
	if other.Auth.Secret != "" {
		c.Auth.Secret = other.Auth.Secret
	}
	if other.Auth.SessionTTL != 0 {
		c.Auth.SessionTTL = other.Auth.SessionTTL
	}
	if other.Auth.RecoveryTTL != 0 {
		c.Auth.RecoveryTTL = other.Auth.RecoveryTTL
	}
	if other.Auth.VerificationTTL != 0 {
		c.Auth.VerificationTTL = other.Auth.VerificationTTL
	}
	if other.Auth.BcryptCost != 0 {
		c.Auth.BcryptCost = other.Auth.BcryptCost
	}
	if other.Auth.MaxLoginAttempts != 0 {
		c.Auth.MaxLoginAttempts = other.Auth.MaxLoginAttempts
	}
	if other.Auth.AttemptWindow != 0 {
		c.Auth.AttemptWindow = other.Auth.AttemptWindow
	}
	if other.Auth.Google.ClientID != "" {
		c.Auth.Google.ClientID = other.Auth.Google.ClientID
	}
	if other.Auth.Google.ClientSecret != "" {
		c.Auth.Google.ClientSecret = other.Auth.Google.ClientSecret
	}
	if other.Auth.Google.RedirectURL != "" {
		c.Auth.Google.RedirectURL = other.Auth.Google.RedirectURL
	}

	// Editor
	if other.Editor.AutoSaveDelay != 0 {
		c.Editor.AutoSaveDelay = other.Editor.AutoSaveDelay
	}
	if other.Editor.AutoSaveCeiling != 0 {
		c.Editor.AutoSaveCeiling = other.Editor.AutoSaveCeiling
	}
	if other.Editor.SaveTimeout != 0 {
		c.Editor.SaveTimeout = other.Editor.SaveTimeout
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Metrics
	if other.Metrics.Path != "" {
		c.Metrics.Path = other.Metrics.Path
	}
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string {
	dir := strings.TrimSpace(c.Storage.DataDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".mdpreview"
		}
		return filepath.Join(home, ".mdpreview")
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return dir
}

func (c *Config) SecretPath() string { return filepath.Join(c.DataDir(), "secret.key") }

func (c *Config) OutboxDir() string { return filepath.Join(c.DataDir(), "outbox") }

func (c *Config) LogFile() string { return filepath.Join(c.DataDir(), "mdpreview.log") }

// TokenFile holds the CLI's session token.
func (c *Config) TokenFile() string { return filepath.Join(c.DataDir(), "session.token") }

// GoogleRedirectURL returns the configured redirect or the one derived from base_url.
func (c *Config) GoogleRedirectURL() string {
	if c.Auth.Google.RedirectURL != "" {
		return c.Auth.Google.RedirectURL
	}
	return strings.TrimRight(c.Server.BaseURL, "/") + "/auth/google/callback"
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
}
