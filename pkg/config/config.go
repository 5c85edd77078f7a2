// Package config loads minigit's TOML settings file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/minigit/pkg/errkind"
)

// EnvPath names the environment variable consulted when no --config flag is
// given.
const EnvPath = "MINIGIT_CONFIG"

// Config is the decoded settings file.
type Config struct {
	HTTP  HTTPConfig  `toml:"http"`
	Store StoreConfig `toml:"store"`
	Log   LogConfig   `toml:"log"`
}

// HTTPConfig controls the smart-HTTP client.
type HTTPConfig struct {
	Timeout          Duration `toml:"timeout"`
	UserAgent        string   `toml:"user_agent"`
	MaxResponseBytes int64    `toml:"max_response_bytes"`
}

// StoreConfig controls the loose object store.
type StoreConfig struct {
	// CompressionLevel is a zlib level: -1 default, 0 none, 1..9.
	CompressionLevel int `toml:"compression_level"`
}

// LogConfig controls the CLI's log output.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "30s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:          Duration{60 * time.Second},
			UserAgent:        "minigit/0.1",
			MaxResponseBytes: 512 << 20,
		},
		Store: StoreConfig{CompressionLevel: -1},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults; a malformed or invalid file is a Usage error naming path.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, errkind.Errorf(errkind.Usage, "config %s: %s", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errkind.Errorf(errkind.Usage, "config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errkind.Errorf(errkind.Usage, "config %s: %s", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.HTTP.Timeout.Duration <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout.Duration)
	}
	if c.HTTP.MaxResponseBytes <= 0 {
		return fmt.Errorf("http.max_response_bytes must be positive, got %d", c.HTTP.MaxResponseBytes)
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent must not be empty")
	}
	if c.Store.CompressionLevel < -1 || c.Store.CompressionLevel > 9 {
		return fmt.Errorf("store.compression_level must be between -1 and 9, got %d", c.Store.CompressionLevel)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level %q: want debug, info, warn or error", l.Level)
	}
	return level, nil
}
