// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. JOBSCOUT_CRAWLER_WORKERS.
const EnvPrefix = "JOBSCOUT"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Results    ResultsConfig    `mapstructure:"results"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	Events     EventsConfig     `mapstructure:"events"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// CrawlerConfig governs the worker pool, job bounds and retries.
type CrawlerConfig struct {
	Workers           int      `mapstructure:"workers"`
	RatePerSecond     float64  `mapstructure:"rate_per_second"`
	RateBurst         int      `mapstructure:"rate_burst"`
	HostRatePerSecond float64  `mapstructure:"host_rate_per_second"`
	HostBurst         int      `mapstructure:"host_burst"`
	MaxDepth          int      `mapstructure:"max_depth"`
	ChildLimit        int      `mapstructure:"child_limit"`
	MaxCrawls         int      `mapstructure:"max_crawls"`
	MaxAttempts       int      `mapstructure:"max_attempts"`
	BackoffSeconds    int      `mapstructure:"backoff_seconds"`
	MaxBackoffSeconds int      `mapstructure:"max_backoff_seconds"`
	JobTimeoutSeconds int      `mapstructure:"job_timeout_seconds"`
	SitesFile         string   `mapstructure:"sites_file"`
	EnqueueSites      bool     `mapstructure:"enqueue_sites"`
	UserAgent         string   `mapstructure:"user_agent"`
	ExtraBlocklist    []string `mapstructure:"extra_blocklist"`
}

// HTTPConfig configures the fast-path fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the rendering fallback.
type HeadlessConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MaxPages          int    `mapstructure:"max_pages"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ScrollSteps       int    `mapstructure:"scroll_steps"`
	ScrollDelayMs     int    `mapstructure:"scroll_delay_ms"`
	Headful           bool   `mapstructure:"headful"`
	ExecPath          string `mapstructure:"exec_path"`
	MinLinks          int    `mapstructure:"min_links"`
	BodyThreshold     int    `mapstructure:"body_threshold"`
}

// ClassifierConfig selects and tunes the page classifier.
type ClassifierConfig struct {
	Provider       string  `mapstructure:"provider" validate:"oneof=heuristic gemini"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	BatchSize      int     `mapstructure:"batch_size"`
	FallbackLimit  int     `mapstructure:"fallback_limit"`
}

// QueueConfig selects the frontier backend.
type QueueConfig struct {
	Backend  string      `mapstructure:"backend" validate:"oneof=memory redis"`
	Capacity int         `mapstructure:"capacity"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the Redis queue connection.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	Prefix        string `mapstructure:"prefix"`
	KeyTTLSeconds int    `mapstructure:"key_ttl_seconds"`
}

// ResultsConfig selects the result store.
type ResultsConfig struct {
	Backend  string         `mapstructure:"backend" validate:"oneof=file postgres memory"`
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the results table.
type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	Table          string `mapstructure:"table"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// SnapshotsConfig selects where accepted pages are archived.
type SnapshotsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none memory local gcs"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// EventsConfig selects where result events are published.
type EventsConfig struct {
	Backend   string   `mapstructure:"backend" validate:"oneof=none memory pubsub kafka"`
	Topic     string   `mapstructure:"topic"`
	ProjectID string   `mapstructure:"project_id"`
	Brokers   []string `mapstructure:"brokers"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawler.workers", 5)
	v.SetDefault("crawler.rate_per_second", 10)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("crawler.host_rate_per_second", 2)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("crawler.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("crawler.child_limit", crawler.DefaultChildLimit)
	v.SetDefault("crawler.max_crawls", 3)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.backoff_seconds", 5)
	v.SetDefault("crawler.max_backoff_seconds", 120)
	v.SetDefault("crawler.job_timeout_seconds", 180)
	v.SetDefault("crawler.sites_file", "data/sites.json")
	v.SetDefault("crawler.enqueue_sites", true)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_pages", 3)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.scroll_steps", 8)
	v.SetDefault("headless.scroll_delay_ms", 400)
	v.SetDefault("headless.min_links", 5)
	v.SetDefault("headless.body_threshold", 2048)
	v.SetDefault("classifier.provider", "heuristic")
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.temperature", 0.1)
	v.SetDefault("classifier.timeout_seconds", 60)
	v.SetDefault("classifier.batch_size", 50)
	v.SetDefault("classifier.fallback_limit", 10)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.prefix", "jobscout")
	v.SetDefault("queue.redis.key_ttl_seconds", 86400)
	v.SetDefault("results.backend", "file")
	v.SetDefault("results.path", "data/results.json")
	v.SetDefault("results.postgres.table", "results")
	v.SetDefault("snapshots.backend", "none")
	v.SetDefault("snapshots.base_dir", "data/snapshots")
	v.SetDefault("events.backend", "none")
	v.SetDefault("events.topic", "jobscout-results")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "jobscout-crawler")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: invalid value %q (%s %s)", fieldPath(fe.Namespace()), fmt.Sprint(fe.Value()), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	switch {
	case c.Server.Port <= 0:
		return errors.New("server.port must be > 0")
	case c.Crawler.Workers <= 0:
		return errors.New("crawler.workers must be > 0")
	case c.Crawler.RatePerSecond <= 0:
		return errors.New("crawler.rate_per_second must be > 0")
	case c.Crawler.MaxDepth < 0:
		return errors.New("crawler.max_depth must be >= 0")
	case c.Crawler.ChildLimit <= 0:
		return errors.New("crawler.child_limit must be > 0")
	case c.Crawler.MaxAttempts <= 0:
		return errors.New("crawler.max_attempts must be > 0")
	case c.HTTP.TimeoutSeconds <= 0:
		return errors.New("http.timeout_seconds must be > 0")
	case c.Headless.Enabled && c.Headless.MaxPages <= 0:
		return errors.New("headless.max_pages must be > 0 when headless is enabled")
	case c.Auth.Enabled && c.Auth.APIKey == "":
		return errors.New("auth.api_key must be set when auth is enabled")
	case c.Classifier.Provider == "gemini" && c.Classifier.APIKey == "":
		return errors.New("classifier.api_key must be set for the gemini provider")
	case c.Queue.Backend == "redis" && c.Queue.Redis.Addr == "":
		return errors.New("queue.redis.addr must be set for the redis backend")
	case c.Results.Backend == "file" && c.Results.Path == "":
		return errors.New("results.path must be set for the file backend")
	case c.Results.Backend == "postgres" && c.Results.Postgres.DSN == "":
		return errors.New("results.postgres.dsn must be set for the postgres backend")
	case c.Snapshots.Backend == "local" && c.Snapshots.BaseDir == "":
		return errors.New("snapshots.base_dir must be set for the local backend")
	case c.Snapshots.Backend == "gcs" && c.Snapshots.Bucket == "":
		return errors.New("snapshots.bucket must be set for the gcs backend")
	case c.Events.Backend == "pubsub" && (c.Events.ProjectID == "" || c.Events.Topic == ""):
		return errors.New("events.project_id and events.topic must be set for the pubsub backend")
	case c.Events.Backend == "kafka" && (len(c.Events.Brokers) == 0 || c.Events.Topic == ""):
		return errors.New("events.brokers and events.topic must be set for the kafka backend")
	}
	return nil
}

// fieldPath turns "Config.Queue.Backend" into "queue.backend".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

// JobTimeout bounds a single job's fetch, classify and persist cycle.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Crawler.JobTimeoutSeconds) * time.Second
}

// RequestTimeout bounds API handlers.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
