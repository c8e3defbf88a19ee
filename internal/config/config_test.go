package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Workers != 5 || cfg.Crawler.RatePerSecond != 10 {
		t.Fatalf("expected 5 workers at 10/s, got %d at %v", cfg.Crawler.Workers, cfg.Crawler.RatePerSecond)
	}
	if cfg.Crawler.MaxDepth != 2 || cfg.Crawler.ChildLimit != 20 || cfg.Crawler.MaxCrawls != 3 {
		t.Fatalf("unexpected job bounds: %+v", cfg.Crawler)
	}
	if cfg.Queue.Backend != "memory" || cfg.Results.Backend != "file" || cfg.Classifier.Provider != "heuristic" {
		t.Fatalf("unexpected backends: %+v %+v %+v", cfg.Queue, cfg.Results, cfg.Classifier)
	}
	if got := cfg.JobTimeout(); got != 180*time.Second {
		t.Fatalf("expected job timeout 180s, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  workers: 8
  rate_per_second: 4
  max_depth: 3
  sites_file: /srv/sites.json
  extra_blocklist: ["newsletter", "presse"]
queue:
  backend: redis
  redis:
    addr: redis:6379
results:
  backend: postgres
  postgres:
    dsn: postgres://jobscout@db/jobscout
classifier:
  provider: gemini
  api_key: key
events:
  backend: kafka
  topic: results
  brokers: ["kafka-1:9092", "kafka-2:9092"]
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected server and auth overrides: %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Crawler.Workers != 8 || cfg.Crawler.MaxDepth != 3 || cfg.Crawler.ChildLimit != 20 {
		t.Fatalf("expected crawler overrides merged with defaults: %+v", cfg.Crawler)
	}
	if len(cfg.Crawler.ExtraBlocklist) != 2 {
		t.Fatalf("expected extra blocklist, got %v", cfg.Crawler.ExtraBlocklist)
	}
	if cfg.Queue.Redis.Addr != "redis:6379" || cfg.Queue.Redis.Prefix != "jobscout" {
		t.Fatalf("unexpected redis config: %+v", cfg.Queue.Redis)
	}
	if len(cfg.Events.Brokers) != 2 {
		t.Fatalf("expected two brokers, got %v", cfg.Events.Brokers)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("JOBSCOUT_CRAWLER_WORKERS", "12")
	t.Setenv("JOBSCOUT_QUEUE_BACKEND", "redis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Workers != 12 || cfg.Queue.Backend != "redis" {
		t.Fatalf("expected env overrides, got workers=%d backend=%s", cfg.Crawler.Workers, cfg.Queue.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Port: 8080},
		Crawler:    CrawlerConfig{Workers: 1, RatePerSecond: 1, ChildLimit: 1, MaxAttempts: 1},
		HTTP:       HTTPConfig{TimeoutSeconds: 10},
		Classifier: ClassifierConfig{Provider: "heuristic"},
		Queue:      QueueConfig{Backend: "memory"},
		Results:    ResultsConfig{Backend: "memory"},
		Snapshots:  SnapshotsConfig{Backend: "none"},
		Events:     EventsConfig{Backend: "none"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid workers", func(c *Config) { c.Crawler.Workers = 0 }, "crawler.workers"},
		{"invalid rate", func(c *Config) { c.Crawler.RatePerSecond = 0 }, "crawler.rate_per_second"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"headless without pages", func(c *Config) { c.Headless.Enabled = true }, "headless.max_pages"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown queue", func(c *Config) { c.Queue.Backend = "sqs" }, "queue.backend"},
		{"unknown provider", func(c *Config) { c.Classifier.Provider = "oracle" }, "classifier.provider"},
		{"gemini without key", func(c *Config) { c.Classifier.Provider = "gemini" }, "classifier.api_key"},
		{"postgres without dsn", func(c *Config) { c.Results.Backend = "postgres" }, "results.postgres.dsn"},
		{"kafka without brokers", func(c *Config) {
			c.Events.Backend = "kafka"
			c.Events.Topic = "results"
		}, "events.brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
