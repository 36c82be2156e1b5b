package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/RickyRick89/shopper/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Logging   logging.Config          `mapstructure:"logging"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Scheduler SchedulerConfig         `mapstructure:"scheduler"`
	Fetch     FetchConfig             `mapstructure:"fetch"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Retention RetentionConfig         `mapstructure:"retention"`
	Alerting  AlertingConfig          `mapstructure:"alerting"`
	API       APIConfig               `mapstructure:"api"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Export    ExportConfig            `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN runs the
// pipeline on the in-memory store.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// SchedulerConfig governs the three trigger cadences.
type SchedulerConfig struct {
	ScrapeInterval   time.Duration `mapstructure:"scrape_interval"`
	EvaluateInterval time.Duration `mapstructure:"evaluate_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey  int64         `mapstructure:"advisory_lock_key"`
}

// FetchConfig bounds outbound fetch behaviour.
type FetchConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap"`
	WorkersPerSource int           `mapstructure:"workers_per_source"`
	UserAgent        string        `mapstructure:"user_agent"`
	RateCapacity     int           `mapstructure:"rate_capacity"`
	RateRefillPerSec float64       `mapstructure:"rate_refill_per_sec"`
}

// SourceConfig overrides per-source connectivity and rate budget.
type SourceConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	BaseURL          string  `mapstructure:"base_url"`
	RateCapacity     int     `mapstructure:"rate_capacity"`
	RateRefillPerSec float64 `mapstructure:"rate_refill_per_sec"`
}

// RetentionConfig bounds the stored price history.
type RetentionConfig struct {
	Horizon time.Duration `mapstructure:"horizon"`
}

// AlertingConfig defines alert event routing.
type AlertingConfig struct {
	StreamBuffer int           `mapstructure:"stream_buffer"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig describes the external delivery endpoint.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// APIConfig governs the embedded read API.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// CacheConfig sizes the latest-price cache.
type CacheConfig struct {
	LatestSize int `mapstructure:"latest_size"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shopper")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.min_idle_conns", 2)

	v.SetDefault("scheduler.scrape_interval", "1h")
	v.SetDefault("scheduler.evaluate_interval", "5m")
	v.SetDefault("scheduler.cleanup_interval", "24h")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73686f70))

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_base", "500ms")
	v.SetDefault("fetch.backoff_cap", "10s")
	v.SetDefault("fetch.workers_per_source", 4)
	v.SetDefault("fetch.user_agent", "shopper/1.0")
	v.SetDefault("fetch.rate_capacity", 5)
	v.SetDefault("fetch.rate_refill_per_sec", 2.0)

	v.SetDefault("sources.reverb.enabled", true)
	v.SetDefault("sources.guitar_center.enabled", true)
	v.SetDefault("sources.sweetwater.enabled", true)

	v.SetDefault("retention.horizon", "8760h")

	v.SetDefault("alerting.stream_buffer", 64)
	v.SetDefault("alerting.webhook.enabled", false)
	v.SetDefault("alerting.webhook.timeout", "10s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8090")

	v.SetDefault("cache.latest_size", 1024)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.ScrapeInterval <= 0 {
		return fmt.Errorf("scheduler.scrape_interval must be greater than zero")
	}
	if c.Scheduler.EvaluateInterval <= 0 {
		return fmt.Errorf("scheduler.evaluate_interval must be greater than zero")
	}
	if c.Scheduler.CleanupInterval <= 0 {
		return fmt.Errorf("scheduler.cleanup_interval must be greater than zero")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be greater than zero")
	}
	if c.Fetch.RateCapacity <= 0 {
		return fmt.Errorf("fetch.rate_capacity must be greater than zero")
	}
	if c.Fetch.RateRefillPerSec <= 0 {
		return fmt.Errorf("fetch.rate_refill_per_sec must be greater than zero")
	}
	if c.Retention.Horizon <= 0 {
		return fmt.Errorf("retention.horizon must be greater than zero")
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url is required when the webhook is enabled")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}
