package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Layout   LayoutConfig   `yaml:"layout" toml:"layout"`
	Refresh  RefreshConfig  `yaml:"refresh" toml:"refresh"`
	Notify   NotifyConfig   `yaml:"notify" toml:"notify"`
	Display  DisplayConfig  `yaml:"display" toml:"display"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Site     SiteConfig     `yaml:"site" toml:"site"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr        string   `yaml:"addr" toml:"addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" toml:"cors_origins"`
}

// UpstreamConfig holds the remote data sources
type UpstreamConfig struct {
	SubgraphURL      string   `yaml:"subgraph_url" toml:"subgraph_url" validate:"required,url"`
	ProfilesURL      string   `yaml:"profiles_url" toml:"profiles_url" validate:"omitempty,url"`
	APIKey           string   `yaml:"api_key,omitempty" toml:"api_key"`
	EventLimit       int      `yaml:"event_limit" toml:"event_limit" validate:"gt=0"`
	Timeout          Duration `yaml:"timeout" toml:"timeout"`
	StatsConcurrency int      `yaml:"stats_concurrency" toml:"stats_concurrency" validate:"gt=0"`
	StatsRPS         float64  `yaml:"stats_rps" toml:"stats_rps" validate:"gte=0"`
}

// LayoutConfig holds force layout settings
type LayoutConfig struct {
	Width               float64  `yaml:"width" toml:"width" validate:"gt=0"`
	Height              float64  `yaml:"height" toml:"height" validate:"gt=0"`
	LargeGraphThreshold int      `yaml:"large_graph_threshold" toml:"large_graph_threshold" validate:"gte=0"`
	WarmupTicks         int      `yaml:"warmup_ticks" toml:"warmup_ticks" validate:"gte=0"`
	TickInterval        Duration `yaml:"tick_interval" toml:"tick_interval"`
}

// RefreshConfig schedules background refetches. An empty schedule disables them.
type RefreshConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// Token store kinds
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// NotifyConfig holds notification token storage and delivery settings
type NotifyConfig struct {
	Store            string `yaml:"store" toml:"store" validate:"oneof=memory sqlite redis"`
	SQLitePath       string `yaml:"sqlite_path" toml:"sqlite_path" validate:"required_if=Store sqlite"`
	RedisAddr        string `yaml:"redis_addr" toml:"redis_addr" validate:"required_if=Store redis"`
	DefaultTargetURL string `yaml:"default_target_url" toml:"default_target_url"`
	// HubURL is the hub API that confirms webhook signers are app keys of their fid
	HubURL string `yaml:"hub_url" toml:"hub_url" validate:"required,url"`
	// TokenKey is a hex XChaCha20-Poly1305 key. When set, tokens are sealed at rest.
	TokenKey string `yaml:"token_key,omitempty" toml:"token_key" validate:"omitempty,hexadecimal,len=64"`
}

// DisplayConfig holds presentation settings
type DisplayConfig struct {
	Timezone string `yaml:"timezone" toml:"timezone"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=json console"`
}

// SiteConfig is the embed and OpenGraph metadata
type SiteConfig struct {
	Name             string `yaml:"name" toml:"name"`
	Title            string `yaml:"title" toml:"title"`
	Description      string `yaml:"description" toml:"description"`
	URL              string `yaml:"url" toml:"url"`
	ImageURL         string `yaml:"image_url" toml:"image_url"`
	SplashImageURL   string `yaml:"splash_image_url" toml:"splash_image_url"`
	SplashBackground string `yaml:"splash_background" toml:"splash_background"`
	ButtonTitle      string `yaml:"button_title" toml:"button_title"`
}

// Duration wraps time.Duration for YAML and TOML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
