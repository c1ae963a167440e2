// Package config resolves reposync settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. REPOSYNC_DB.
const EnvPrefix = "REPOSYNC"

// Setting keys shared by flags, environment and the config file.
const (
	KeyDB         = "db"
	KeyPrefs      = "prefs"
	KeyCacheDir   = "cache_dir"
	KeyLogLevel   = "log_level"
	KeyLogFormat  = "log_format"
	KeyBrewPrefix = "brew_prefix"
	KeyBrewBin    = "brew_bin"
)

// Config holds the resolved settings.
type Config struct {
	DB         string
	Prefs      string
	CacheDir   string
	LogLevel   string
	LogFormat  string
	BrewPrefix string
	BrewBin    string
}

// Dir returns the reposync config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/reposync if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "reposync"), nil
}

// NewViper returns a viper instance wired for reposync: environment
// overrides under EnvPrefix and defaults rooted at dir.
func NewViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDB, filepath.Join(dir, "reposync.db"))
	v.SetDefault(KeyPrefs, filepath.Join(dir, "preferences.yaml"))
	v.SetDefault(KeyCacheDir, filepath.Join(dir, "cache"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyBrewPrefix, "")
	v.SetDefault(KeyBrewBin, "brew")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return v
}

// Load reads the optional config file into v and returns the resolved
// settings. A missing config file is not an error. When path is non-empty it
// replaces the default config file location and must exist.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		DB:         v.GetString(KeyDB),
		Prefs:      v.GetString(KeyPrefs),
		CacheDir:   v.GetString(KeyCacheDir),
		LogLevel:   v.GetString(KeyLogLevel),
		LogFormat:  v.GetString(KeyLogFormat),
		BrewPrefix: v.GetString(KeyBrewPrefix),
		BrewBin:    v.GetString(KeyBrewBin),
	}
	if cfg.DB == "" {
		return Config{}, fmt.Errorf("%s must not be empty", KeyDB)
	}
	if cfg.CacheDir == "" {
		return Config{}, fmt.Errorf("%s must not be empty", KeyCacheDir)
	}
	return cfg, nil
}

// EnsureDirs creates the directories the resolved paths live in.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(c.DB), filepath.Dir(c.Prefs), c.CacheDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
