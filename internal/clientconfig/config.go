// Package clientconfig loads the closet CLI settings from a TOML file.
package clientconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the CLI configuration file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Feed    FeedConfig    `toml:"feed"`
	Display DisplayConfig `toml:"display"`
}

// ServerConfig points the CLI at an activity API.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// FeedConfig tunes grouping.
type FeedConfig struct {
	Timezone   string `toml:"timezone"` // IANA name, empty for the local zone
	Limit      int    `toml:"limit"`
	YearLabels bool   `toml:"year_labels"`
}

// DisplayConfig tunes terminal rendering.
type DisplayConfig struct {
	Color     bool `toml:"color"`
	ShowIcons bool `toml:"show_icons"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server:  ServerConfig{BaseURL: "http://localhost:8080/v1", Timeout: "10s"},
		Feed:    FeedConfig{Limit: 100},
		Display: DisplayConfig{Color: true, ShowIcons: true},
	}
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values Load and Save accept.
func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.Server.BaseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server.base_url: %q", c.Server.BaseURL)
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if c.Feed.Limit < 0 {
		return fmt.Errorf("invalid feed.limit: %d", c.Feed.Limit)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequestTimeout parses server.timeout, defaulting to ten seconds.
func (c Config) RequestTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Server.Timeout)
	if raw == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid server.timeout: %q", c.Server.Timeout)
	}
	return d, nil
}

// Location resolves feed.timezone. Empty means time.Local.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Feed.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid feed.timezone: %w", err)
	}
	return loc, nil
}

// Save writes c to path, creating the parent directory.
func Save(path string, c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(path); err != nil {
		return err
	}
	content, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureConfigDir creates the directory that holds path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return nil
}
