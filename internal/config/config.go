// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// BrowserConfig configures the shared browser pool.
type BrowserConfig struct {
	MaxUses           int      `mapstructure:"max_uses"`
	HealthIntervalSec int      `mapstructure:"health_interval_seconds"`
	NavTimeoutSec     int      `mapstructure:"nav_timeout_seconds"`
	UserAgents        []string `mapstructure:"user_agents"`
}

// FetchConfig configures the static probe fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MinHTMLBytes   int    `mapstructure:"min_html_bytes"`
}

// DispatcherConfig governs the tick loop and its passes.
type DispatcherConfig struct {
	TickSeconds   int `mapstructure:"tick_seconds"`
	ClaimLimit    int `mapstructure:"claim_limit"`
	StaleAfterMin int `mapstructure:"stale_after_minutes"`
}

// PolicyConfig lists the acceptance-rule screens applied after extraction.
type PolicyConfig struct {
	DeniedRatings []string `mapstructure:"denied_ratings"`
	DeniedTags    []string `mapstructure:"denied_tags"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WORKHERALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("browser.max_uses", 25)
	v.SetDefault("browser.health_interval_seconds", 600)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("fetch.user_agent", "workherald/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.min_html_bytes", 1024)
	v.SetDefault("dispatcher.tick_seconds", 10)
	v.SetDefault("dispatcher.claim_limit", 5)
	v.SetDefault("dispatcher.stale_after_minutes", 20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	if c.Browser.MaxUses <= 0 {
		return fmt.Errorf("browser.max_uses must be > 0")
	}
	if c.Dispatcher.TickSeconds <= 0 {
		return fmt.Errorf("dispatcher.tick_seconds must be > 0")
	}
	if c.Dispatcher.StaleAfterMin <= 0 {
		return fmt.Errorf("dispatcher.stale_after_minutes must be > 0")
	}
	return nil
}

// TickInterval returns the dispatcher cadence as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Dispatcher.TickSeconds) * time.Second
}

// StaleAfter returns the stuck-job staleness window as a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Dispatcher.StaleAfterMin) * time.Minute
}

// NavTimeout returns the browser navigation deadline as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
