package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PULSE_API_KEY.
const EnvPrefix = "PULSE"

// MirrorConfig holds settings for the local snapshot mirror.
type MirrorConfig struct {
	// DBPath is the SQLite database the mirror writes to.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// IntervalSec is how often (in seconds) a watched board is re-synced.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// Config is the top-level CLI configuration.
type Config struct {
	// APIKey authenticates every request. Usually left empty in the file
	// and taken from the keyring instead.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// UserID is the acting user for calls that require one (creating
	// boards, posting updates).
	UserID int64 `mapstructure:"user_id" yaml:"user_id"`

	Mirror MirrorConfig `mapstructure:"mirror" yaml:"mirror"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/gopulse/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultDBPath returns the default location of the mirror database.
func DefaultDBPath() string {
	return filepath.Join(configDir(), "mirror.db")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gopulse")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL:    "https://api.dapulse.com",
		APIVersion: "v1",
		TimeoutSec: 30,
		LogLevel:   "warn",
		Mirror: MirrorConfig{
			DBPath:      DefaultDBPath(),
			IntervalSec: 120,
		},
	}
}

// Load reads configuration from the given YAML file path using Viper and
// applies PULSE_* environment overrides. A missing file yields the
// defaults (still subject to environment overrides).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("api_version", def.APIVersion)
	v.SetDefault("timeout_sec", def.TimeoutSec)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("user_id", 0)
	v.SetDefault("mirror.db_path", def.Mirror.DBPath)
	v.SetDefault("mirror.interval_sec", def.Mirror.IntervalSec)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = def.TimeoutSec
	}
	if cfg.Mirror.IntervalSec <= 0 {
		cfg.Mirror.IntervalSec = def.Mirror.IntervalSec
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the given configuration to a YAML file at path, creating
// parent directories if needed. The API key is never written; it belongs
// in the keyring.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("base_url", cfg.BaseURL)
	v.Set("api_version", cfg.APIVersion)
	v.Set("timeout_sec", cfg.TimeoutSec)
	v.Set("log_level", cfg.LogLevel)
	v.Set("user_id", cfg.UserID)
	v.Set("mirror.db_path", cfg.Mirror.DBPath)
	v.Set("mirror.interval_sec", cfg.Mirror.IntervalSec)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// MirrorInterval returns the re-sync interval of a watched board.
func (c *Config) MirrorInterval() time.Duration {
	return time.Duration(c.Mirror.IntervalSec) * time.Second
}

// ParseLevel maps a level name to its slog level. The empty string means
// warn.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
