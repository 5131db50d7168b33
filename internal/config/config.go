// Package config loads vouchgraph configuration.
//
// Settings come from three layers, later layers winning:
//  1. built-in defaults
//  2. a YAML or TOML config file
//  3. environment variables, optionally seeded from a .env file
//
// Config file locations (priority order):
//  1. $VOUCHGRAPH_CONFIG
//  2. ./vouchgraph.yaml or ./vouchgraph.toml
//  3. ~/.config/vouchgraph/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultAddr        = ":8080"
	DefaultSubgraphURL = "https://subgraph.satsuma-prod.com/e329e1b1c9e9/union--11085/voucher-miniapp/api"
	DefaultProfilesURL = "https://api.neynar.com/v2/farcaster/user/bulk-by-address"
	DefaultHubURL      = "https://hub-api.neynar.com"
	DefaultSiteURL     = "https://union-vouch.aipop.fun"
)

var validate = validator.New()

// envOverrides are the environment variables that override file settings
type envOverrides struct {
	Addr        string `env:"VOUCHGRAPH_ADDR"`
	SubgraphURL string `env:"VOUCHGRAPH_SUBGRAPH_URL"`
	APIKey      string `env:"NEYNAR_API_KEY"`
	TokenStore  string `env:"VOUCHGRAPH_TOKEN_STORE"`
	RedisAddr   string `env:"VOUCHGRAPH_REDIS_ADDR"`
	TokenKey    string `env:"VOUCHGRAPH_TOKEN_KEY"`
	LogLevel    string `env:"VOUCHGRAPH_LOG_LEVEL"`
}

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied either way.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, path, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}

	if env.Addr != "" {
		c.Server.Addr = env.Addr
	}
	if env.SubgraphURL != "" {
		c.Upstream.SubgraphURL = env.SubgraphURL
	}
	if env.APIKey != "" {
		c.Upstream.APIKey = env.APIKey
	}
	if env.TokenStore != "" {
		c.Notify.Store = env.TokenStore
	}
	if env.RedisAddr != "" {
		c.Notify.RedisAddr = env.RedisAddr
	}
	if env.TokenKey != "" {
		c.Notify.TokenKey = env.TokenKey
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	return nil
}

// Validate checks field constraints and that the display timezone exists
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes config to the specified path as YAML
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: DefaultAddr},
		Upstream: UpstreamConfig{
			SubgraphURL:      DefaultSubgraphURL,
			ProfilesURL:      DefaultProfilesURL,
			EventLimit:       200,
			Timeout:          Duration(15 * time.Second),
			StatsConcurrency: 4,
			StatsRPS:         10,
		},
		Layout: LayoutConfig{
			Width:               800,
			Height:              600,
			LargeGraphThreshold: 100,
			WarmupTicks:         300,
			TickInterval:        Duration(16 * time.Millisecond),
		},
		Notify: NotifyConfig{
			Store:            StoreMemory,
			SQLitePath:       "./vouchgraph.db",
			DefaultTargetURL: DefaultSiteURL,
			HubURL:           DefaultHubURL,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Site: SiteConfig{
			Name:             "Union Voucher Graph",
			Title:            "Union Voucher Graph - Interactive Network Visualization",
			Description:      "Interactive visualization of the Union protocol's vouching network",
			URL:              DefaultSiteURL,
			ImageURL:         DefaultSiteURL + "/opengraph-image.png",
			SplashImageURL:   DefaultSiteURL + "/logo.png",
			SplashBackground: "#3b82f6",
			ButtonTitle:      "Explore Network",
		},
	}
}

// applyDefaults fills in values a config file zeroed out
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Upstream.SubgraphURL == "" {
		c.Upstream.SubgraphURL = d.Upstream.SubgraphURL
	}
	if c.Upstream.EventLimit == 0 {
		c.Upstream.EventLimit = d.Upstream.EventLimit
	}
	if c.Upstream.StatsConcurrency == 0 {
		c.Upstream.StatsConcurrency = d.Upstream.StatsConcurrency
	}
	if c.Layout.Width == 0 {
		c.Layout.Width = d.Layout.Width
	}
	if c.Layout.Height == 0 {
		c.Layout.Height = d.Layout.Height
	}
	if c.Layout.TickInterval == 0 {
		c.Layout.TickInterval = d.Layout.TickInterval
	}
	if c.Notify.Store == "" {
		c.Notify.Store = d.Notify.Store
	}
	if c.Notify.HubURL == "" {
		c.Notify.HubURL = d.Notify.HubURL
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Location returns the display timezone, time.Local when unset
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Display.Timezone)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	refresh := "disabled"
	if c.Refresh.Schedule != "" {
		refresh = c.Refresh.Schedule
	}
	summary := fmt.Sprintf("Listen: %s, Subgraph: %s\n", c.Server.Addr, c.Upstream.SubgraphURL)
	summary += fmt.Sprintf("Events: %d, Stats concurrency: %d, Refresh: %s\n",
		c.Upstream.EventLimit, c.Upstream.StatsConcurrency, refresh)
	summary += fmt.Sprintf("Token store: %s", c.Notify.Store)
	return summary
}
