// Package config handles configuration loading and parsing for safety-check.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/dgerlanc/safety-check/internal/options"
	"mvdan.cc/sh/v3/shell"
)

//go:embed config.toml
var defaultConfig []byte

// IgnoreEntry is an [ignore.<id>] table.
type IgnoreEntry struct {
	Reason  string    `toml:"reason"`
	Expires time.Time `toml:"expires"`
}

// Config holds the values read from config.toml. Pointer fields distinguish
// "not set" from a zero value so that caching = 0 is honored.
type Config struct {
	Categories []string               `toml:"categories"`
	Caching    *int                   `toml:"caching"`
	Telemetry  *bool                  `toml:"telemetry"`
	Output     string                 `toml:"output"`
	Python     string                 `toml:"python"`
	OSVURL     string                 `toml:"osv_url"`
	AuditLog   string                 `toml:"audit_log"`
	PolicyFile string                 `toml:"policy_file"`
	Ignore     map[string]IgnoreEntry `toml:"ignore"`
}

var (
	// globalConfig is the loaded configuration
	globalConfig *Config
	// configInitialized tracks whether config has been loaded
	configInitialized bool
	// configPath is the file Init read, or tried to read
	configPath string
	// overridePath is set by SetPath (--config)
	overridePath string
	// initError holds the error from the last Init, if any
	initError error
)

// GetConfigDir returns the config directory path.
// Uses SAFETY_CHECK_CONFIG env var if set, otherwise ~/.config/safety-check
func GetConfigDir() (string, error) {
	if dir := os.Getenv(constants.EnvConfigDir); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.XDGConfigSubdir, constants.AppName), nil
}

// SetPath makes Init read path instead of the file in the config dir.
func SetPath(path string) {
	overridePath = path
}

// LoadConfig parses TOML data into a Config.
func LoadConfig(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if cfg.Caching != nil && *cfg.Caching < 0 {
		return nil, fmt.Errorf("caching must be zero or positive, got %d", *cfg.Caching)
	}
	return &cfg, nil
}

// Apply copies every value set in cfg onto opts.
func (cfg *Config) Apply(opts *options.Options) error {
	if cfg == nil {
		return nil
	}
	if len(cfg.Categories) > 0 {
		opts.Categories = options.AddCategories(nil, cfg.Categories...)
	}
	if cfg.Caching != nil {
		opts.Caching = *cfg.Caching
	}
	if cfg.Telemetry != nil {
		opts.Telemetry = *cfg.Telemetry
	}
	if cfg.Output != "" {
		opts.Output = cfg.Output
	}
	if cfg.Python != "" {
		opts.Python = cfg.Python
	}
	if cfg.OSVURL != "" {
		opts.OSVURL = cfg.OSVURL
	}
	if cfg.AuditLog != "" {
		path, err := expandPath(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("audit_log: %w", err)
		}
		opts.AuditLog = path
	}
	if cfg.PolicyFile != "" {
		path, err := expandPath(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("policy_file: %w", err)
		}
		opts.PolicyFile = path
	}
	if len(cfg.Ignore) > 0 {
		if opts.Ignore == nil {
			opts.Ignore = options.IgnoreList{}
		}
		for id, e := range cfg.Ignore {
			entry := options.IgnoreEntry{Reason: e.Reason}
			if !e.Expires.IsZero() {
				expires := e.Expires
				entry.Expires = &expires
			}
			opts.Ignore[id] = entry
		}
	}
	return nil
}

// expandPath expands shell variables and a leading ~ in path.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = home + path[1:]
	}
	return shell.Expand(path, nil)
}

// loadEmbeddedDefaults loads the embedded default config file.
func loadEmbeddedDefaults() *Config {
	cfg, _ := LoadConfig(defaultConfig)
	return cfg
}

// Init loads the config file. A missing file is not an error: the embedded
// defaults are used. A broken file also falls back to the defaults, but the
// error is returned and kept for InitError so validate can report it.
func Init() error {
	if configInitialized {
		return initError
	}
	configInitialized = true
	initError = nil

	configPath = overridePath
	if configPath == "" {
		configDir, err := GetConfigDir()
		if err != nil {
			logger.Debug("failed to get config dir, using embedded defaults", "error", err)
			globalConfig = loadEmbeddedDefaults()
			initError = err
			return err
		}
		configPath = filepath.Join(configDir, constants.ConfigFileName)
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		globalConfig = loadEmbeddedDefaults()
		if errors.Is(err, os.ErrNotExist) && overridePath == "" {
			logger.Debug("no config file, using embedded defaults", "path", configPath)
			return nil
		}
		logger.Debug("failed to read config file, using embedded defaults", "path", configPath, "error", err)
		initError = fmt.Errorf("failed to read %s: %w", configPath, err)
		return initError
	}

	cfg, err := LoadConfig(configData)
	if err != nil {
		logger.Debug("failed to parse config, using embedded defaults", "path", configPath, "error", err)
		globalConfig = loadEmbeddedDefaults()
		initError = fmt.Errorf("failed to load %s: %w", configPath, err)
		return initError
	}

	globalConfig = cfg
	logger.Debug("config loaded successfully",
		"path", configPath,
		"categories", cfg.Categories,
		"ignored", len(cfg.Ignore))
	return nil
}

// Get returns the current configuration.
// If Init has not been called, it initializes with defaults.
func Get() *Config {
	if !configInitialized {
		Init()
	}
	return globalConfig
}

// GetConfigPath returns the path Init read or tried to read.
func GetConfigPath() string {
	return configPath
}

// InitError returns the error from the last Init, or nil.
func InitError() error {
	return initError
}

// Reset resets the configuration state. Used for testing.
func Reset() {
	configInitialized = false
	globalConfig = nil
	configPath = ""
	overridePath = ""
	initError = nil
}

// GetDefaultConfig returns the embedded default configuration.
func GetDefaultConfig() []byte {
	return defaultConfig
}
