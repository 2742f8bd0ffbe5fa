package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/feedsync/internal/model"
	"github.com/amishk599/feedsync/internal/scheduler"
	"github.com/amishk599/feedsync/internal/source"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "FEEDSYNC_CONFIG"

// DefaultPath is used when neither the flag nor EnvPath is set.
const DefaultPath = "config.yaml"

// Config is the root configuration for feedsync.
type Config struct {
	API          APIConfig
	Source       SourceConfig
	Scrape       ScrapeConfig
	Realtime     RealtimeConfig
	Refresh      RefreshConfig
	Feed         model.FetchParams // params of the initial pull and every refresh
	Notification NotificationConfig
	SnapshotPath string // SQLite file for the offline snapshot, empty disables it
	Feature      string // feature gate checked before start, empty skips the check
}

// APIConfig points at the feed API.
type APIConfig struct {
	BaseURL string
	Token   string // expanded from env var by Load
	Timeout time.Duration
}

// SourceConfig selects where the feed is read from.
type SourceConfig struct {
	Type        string // "api" or "postgres"
	DatabaseURL string // required if type is "postgres"
}

// ScrapeConfig tunes the scrape status poll loop.
type ScrapeConfig struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// RealtimeConfig selects the push transport.
type RealtimeConfig struct {
	Type     string // "none", "sse" or "redis"
	URL      string // event stream URL for sse
	RedisURL string
	Channel  string // redis pub/sub channel
}

// RefreshConfig controls background refresh and fetch resilience.
type RefreshConfig struct {
	Schedule       string        // cron spec, empty disables background refresh
	MinDelay       time.Duration // minimum gap between requests to the API
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	defaultAPITimeout     = 30 * time.Second
	defaultRetryBaseDelay = 2 * time.Second
	defaultMaxRetries     = 2
	defaultFeature        = "job-feed"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	API          rawAPIConfig       `yaml:"api"`
	Source       rawSourceConfig    `yaml:"source"`
	Scrape       rawScrapeConfig    `yaml:"scrape"`
	Realtime     rawRealtimeConfig  `yaml:"realtime"`
	Refresh      rawRefreshConfig   `yaml:"refresh"`
	Feed         rawFeedConfig      `yaml:"feed"`
	Notification NotificationConfig `yaml:"notification"`
	SnapshotPath string             `yaml:"snapshot_path"`
	Feature      *string            `yaml:"feature"`
}

type rawAPIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

type rawSourceConfig struct {
	Type        string `yaml:"type"`
	DatabaseURL string `yaml:"database_url"`
}

type rawScrapeConfig struct {
	PollInterval   string `yaml:"poll_interval"`
	RequestTimeout string `yaml:"request_timeout"`
}

type rawRealtimeConfig struct {
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	RedisURL string `yaml:"redis_url"`
	Channel  string `yaml:"channel"`
}

type rawRefreshConfig struct {
	Schedule       string `yaml:"schedule"`
	MinDelay       string `yaml:"min_delay"`
	MaxRetries     *int   `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

type rawFeedConfig struct {
	Search          string `yaml:"search"`
	Location        string `yaml:"location"`
	DateFilter      string `yaml:"date_filter"`
	ContactRequired bool   `yaml:"contact_required"`
	Limit           int    `yaml:"limit"`
}

// ResolvePath picks the config file: flag value, then EnvPath, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var p durationParser
	cfg := &Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(raw.API.BaseURL, "/"),
			Token:   raw.API.Token,
			Timeout: p.parse("api.timeout", raw.API.Timeout, defaultAPITimeout),
		},
		Source: SourceConfig{
			Type:        orDefault(raw.Source.Type, "api"),
			DatabaseURL: raw.Source.DatabaseURL,
		},
		Scrape: ScrapeConfig{
			PollInterval:   p.parse("scrape.poll_interval", raw.Scrape.PollInterval, 5*time.Second),
			RequestTimeout: p.parse("scrape.request_timeout", raw.Scrape.RequestTimeout, 10*time.Second),
		},
		Realtime: RealtimeConfig{
			Type:     orDefault(raw.Realtime.Type, "none"),
			URL:      raw.Realtime.URL,
			RedisURL: raw.Realtime.RedisURL,
			Channel:  raw.Realtime.Channel,
		},
		Refresh: RefreshConfig{
			Schedule:       raw.Refresh.Schedule,
			MinDelay:       p.parse("refresh.min_delay", raw.Refresh.MinDelay, 0),
			MaxRetries:     defaultMaxRetries,
			RetryBaseDelay: p.parse("refresh.retry_base_delay", raw.Refresh.RetryBaseDelay, defaultRetryBaseDelay),
		},
		Feed: model.FetchParams{
			Search:          raw.Feed.Search,
			Location:        raw.Feed.Location,
			DateFilter:      raw.Feed.DateFilter,
			ContactRequired: raw.Feed.ContactRequired,
			Limit:           raw.Feed.Limit,
		},
		Notification: raw.Notification,
		SnapshotPath: raw.SnapshotPath,
		Feature:      defaultFeature,
	}
	if p.err != nil {
		return nil, p.err
	}
	if raw.Refresh.MaxRetries != nil {
		cfg.Refresh.MaxRetries = *raw.Refresh.MaxRetries
	}
	if raw.Feature != nil {
		cfg.Feature = *raw.Feature
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationParser keeps the first parse error so Load can build the config
// in one literal.
type durationParser struct {
	err error
}

func (p *durationParser) parse(field, value string, def time.Duration) time.Duration {
	if value == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		return def
	}
	return d
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func validate(cfg *Config) error {
	switch cfg.Source.Type {
	case "api":
	case "postgres":
		if cfg.Source.DatabaseURL == "" {
			return fmt.Errorf("source.database_url is required when source.type is \"postgres\"")
		}
	default:
		return fmt.Errorf("source.type must be \"api\" or \"postgres\", got %q", cfg.Source.Type)
	}

	// Scrapes always go through the API.
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", cfg.API.Timeout)
	}
	if cfg.Scrape.PollInterval <= 0 {
		return fmt.Errorf("scrape.poll_interval must be positive, got %v", cfg.Scrape.PollInterval)
	}
	if cfg.Scrape.RequestTimeout <= 0 {
		return fmt.Errorf("scrape.request_timeout must be positive, got %v", cfg.Scrape.RequestTimeout)
	}

	switch cfg.Realtime.Type {
	case "none":
	case "sse":
		if cfg.Realtime.URL == "" {
			return fmt.Errorf("realtime.url is required when realtime.type is \"sse\"")
		}
	case "redis":
		if cfg.Realtime.RedisURL == "" {
			return fmt.Errorf("realtime.redis_url is required when realtime.type is \"redis\"")
		}
	default:
		return fmt.Errorf("realtime.type must be none, sse or redis, got %q", cfg.Realtime.Type)
	}

	if cfg.Refresh.Schedule != "" {
		if err := scheduler.ValidateSpec(cfg.Refresh.Schedule); err != nil {
			return fmt.Errorf("refresh.schedule: %w", err)
		}
	}
	if cfg.Refresh.MaxRetries < 0 {
		return fmt.Errorf("refresh.max_retries must not be negative, got %d", cfg.Refresh.MaxRetries)
	}
	if cfg.Refresh.MinDelay < 0 {
		return fmt.Errorf("refresh.min_delay must not be negative, got %v", cfg.Refresh.MinDelay)
	}

	if cfg.Feed.DateFilter != "" {
		if _, err := source.ParseDateFilter(cfg.Feed.DateFilter); err != nil {
			return fmt.Errorf("feed.date_filter: %w", err)
		}
	}
	if cfg.Feed.Limit < 0 {
		return fmt.Errorf("feed.limit must not be negative, got %d", cfg.Feed.Limit)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be log or slack, got %q", cfg.Notification.Type)
	}

	return nil
}
