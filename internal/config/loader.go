package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/mdpreview"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override the file.
const (
	EnvConfig             = "MDPREVIEW_CONFIG"
	EnvDataDir            = "MDPREVIEW_DATA_DIR"
	EnvAddr               = "MDPREVIEW_ADDR"
	EnvBaseURL            = "MDPREVIEW_BASE_URL"
	EnvLogLevel           = "MDPREVIEW_LOG_LEVEL"
	EnvSecret             = "MDPREVIEW_SECRET"
	EnvGoogleClientID     = "MDPREVIEW_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "MDPREVIEW_GOOGLE_CLIENT_SECRET"
	EnvAutoSave           = "MDPREVIEW_AUTOSAVE"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	path   string
	lookup func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, lookup: os.LookupEnv}
}

// WithPath pins the config file (the --config flag).
func (l *Loader) WithPath(path string) *Loader {
	l.path = strings.TrimSpace(path)
	return l
}

// WithLookup replaces os.LookupEnv.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// Path returns the config file the loader reads: --config, then
// MDPREVIEW_CONFIG, then ~/.config/mdpreview/config.yaml.
func (l *Loader) Path() string {
	if l.path != "" {
		return l.path
	}
	if v, ok := l.lookup(EnvConfig); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return userConfigPath()
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. Config file (see Path)
// 3. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	path := l.Path()
	explicit := path != userConfigPath()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		switch {
		case err == nil:
			l.logger.Debug("Loaded config", slog.String("path", path))
			config = fileConfig
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			l.logger.Debug("No user config found", slog.String("path", path))
		default:
			return nil, err
		}
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) applyEnv(c *Config) {
	env := func(key string) (string, bool) {
		v, ok := l.lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	overrides := &Config{}
	if v, ok := env(EnvDataDir); ok {
		overrides.Storage.DataDir = v
	}
	if v, ok := env(EnvAddr); ok {
		overrides.Server.Addr = v
	}
	if v, ok := env(EnvBaseURL); ok {
		overrides.Server.BaseURL = v
	}
	if v, ok := env(EnvLogLevel); ok {
		overrides.Log.Level = v
	}
	if v, ok := env(EnvSecret); ok {
		overrides.Auth.Secret = v
	}
	if v, ok := env(EnvGoogleClientID); ok {
		overrides.Auth.Google.ClientID = v
	}
	if v, ok := env(EnvGoogleClientSecret); ok {
		overrides.Auth.Google.ClientSecret = v
	}
	c.Merge(overrides)

	if v, ok := env(EnvAutoSave); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Editor.AutoSave = b
		} else {
			l.logger.Warn("Ignoring invalid env value", slog.String("key", EnvAutoSave), slog.String("value", v))
		}
	}
}

// EnsureUserConfig creates the config file with defaults if it doesn't exist
// and returns its path.
func (l *Loader) EnsureUserConfig() (string, error) {
	path := l.Path()

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(path); err != nil {
		return "", err
	}

	l.logger.Info("Created default config", slog.String("path", path))
	return path, nil
}

func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}
