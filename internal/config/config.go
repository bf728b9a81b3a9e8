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
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	LinkCheck LinkCheckConfig `mapstructure:"linkcheck"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// ShutdownSeconds bounds the graceful shutdown of the HTTP server.
	ShutdownSeconds int `mapstructure:"shutdown_seconds"`
}

// AuthConfig controls the bearer-token check on /api. An empty APIKey
// accepts any non-empty token.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SchedulerConfig controls the poll loop.
type SchedulerConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// HTTPConfig configures the page fetch and link probe clients.
type HTTPConfig struct {
	PageTimeoutSeconds  int    `mapstructure:"page_timeout_seconds"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
	MaxBodyBytes        int    `mapstructure:"max_body_bytes"`
}

// Fetcher modes.
const (
	FetchStatic   = "static"
	FetchHeadless = "headless"
)

// FetcherConfig selects how the analyzed page is retrieved. Headless mode
// renders the page in Chrome before analysis; link probes stay plain HTTP.
type FetcherConfig struct {
	Mode             string `mapstructure:"mode"`
	HeadlessParallel int    `mapstructure:"headless_parallel"`
	ChromePath       string `mapstructure:"chrome_path"`
}

// LinkCheckConfig bounds link probing per page.
type LinkCheckConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// Job store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DBConfig selects and configures the job store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// Archive backends.
const (
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// ArchiveConfig controls page snapshot archiving.
type ArchiveConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// EventsConfig controls completion events on Pub/Sub.
type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYZER")
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

// Every key needs a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("scheduler.poll_interval_seconds", 10)
	v.SetDefault("http.page_timeout_seconds", 30)
	v.SetDefault("http.probe_timeout_seconds", 10)
	v.SetDefault("http.user_agent", "page-analyzer/0.1")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("fetcher.mode", FetchStatic)
	v.SetDefault("fetcher.headless_parallel", 2)
	v.SetDefault("fetcher.chrome_path", "")
	v.SetDefault("linkcheck.concurrency", 1)
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", ArchiveLocal)
	v.SetDefault("archive.dir", "snapshots")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "page-analyses")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.PollIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.poll_interval_seconds must be > 0")
	}
	if c.HTTP.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("http.page_timeout_seconds must be > 0")
	}
	if c.HTTP.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("http.probe_timeout_seconds must be > 0")
	}
	if c.LinkCheck.Concurrency <= 0 {
		return fmt.Errorf("linkcheck.concurrency must be > 0")
	}
	switch c.Fetcher.Mode {
	case FetchStatic:
	case FetchHeadless:
		if c.Fetcher.HeadlessParallel < 0 {
			return fmt.Errorf("fetcher.headless_parallel must be >= 0")
		}
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q, got %q", FetchStatic, FetchHeadless, c.Fetcher.Mode)
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.DB.Driver)
	}
	if c.DB.MaxConns < 0 || c.DB.MaxConns > 1000 {
		return fmt.Errorf("db.max_conns must be between 0 and 1000")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case ArchiveMemory:
		case ArchiveLocal:
			if c.Archive.Dir == "" {
				return fmt.Errorf("archive.dir must be set for the local backend")
			}
		case ArchiveGCS:
			if c.Archive.GCSBucket == "" {
				return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
		}
	}
	if c.Events.Enabled && (c.Events.ProjectID == "" || c.Events.Topic == "") {
		return fmt.Errorf("events.project_id and events.topic must be set when events are enabled")
	}
	return nil
}

// PollInterval returns the scheduler interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}

// PageTimeout bounds the single fetch of the analyzed page.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.HTTP.PageTimeoutSeconds) * time.Second
}

// ProbeTimeout bounds each link probe.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.HTTP.ProbeTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds the HTTP server's graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
