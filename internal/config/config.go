// Package config loads the user-editable settings for grove: which
// servers to know about, which rooms to autojoin, and a handful of UI
// tuning knobs. Everything here is read once at startup and treated as
// a read-only singleton for the remainder of the process (spec §9
// "Global state").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server describes one euphoria-protocol server the user has
// configured, along with the rooms to join automatically on startup.
type Server struct {
	Domain   string   `yaml:"domain"`
	TLS      bool     `yaml:"tls"`
	Autojoin []string `yaml:"autojoin"`
}

// UI carries the small set of tuning knobs spec §4.H/§4.D expose as
// overridable rather than hardcoded. Zero values fall back to the
// defaults applied by Load.
type UI struct {
	Scrolloff   int           `yaml:"scrolloff"`
	LogInterval time.Duration `yaml:"log_interval"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Config is the top-level shape of config.yaml.
type Config struct {
	DataDir string   `yaml:"data_dir"`
	Servers []Server `yaml:"servers"`
	UI      UI       `yaml:"ui"`
}

const (
	DefaultScrolloff    = 2
	DefaultLogInterval  = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// Load reads and parses the YAML file at path. A missing file is not an
// error: it yields a zero-value Config (no servers, no autojoin rooms)
// with defaults applied, so a first run with no config at all still
// starts up. Any other read or parse error is returned.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return withDefaults(Config{}), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return withDefaults(cfg), nil
}

func withDefaults(cfg Config) Config {
	if cfg.UI.Scrolloff == 0 {
		cfg.UI.Scrolloff = DefaultScrolloff
	}
	if cfg.UI.LogInterval == 0 {
		cfg.UI.LogInterval = DefaultLogInterval
	}
	if cfg.UI.PingInterval == 0 {
		cfg.UI.PingInterval = DefaultPingInterval
	}
	return cfg
}

// ServerByDomain returns the configured Server for domain, if any.
func (c Config) ServerByDomain(domain string) (Server, bool) {
	for _, s := range c.Servers {
		if s.Domain == domain {
			return s, true
		}
	}
	return Server{}, false
}
