// Package config loads and validates pwacrawler configuration via Viper.
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
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Batch      BatchConfig      `mapstructure:"batch"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Store      StoreConfig      `mapstructure:"store"`
	Discover   DiscoverConfig   `mapstructure:"discover"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Import     ImportConfig     `mapstructure:"import"`
	Describe   DescribeConfig   `mapstructure:"describe"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the page and manifest fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	Accept         string `mapstructure:"accept"`
	AcceptLanguage string `mapstructure:"accept_language"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the browser used by the rendered strategy.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	SWWaitMs        int  `mapstructure:"sw_wait_ms"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ClassifierConfig selects the check strategy and verdict gate.
type ClassifierConfig struct {
	Strategy       string `mapstructure:"strategy"`
	Extractor      string `mapstructure:"extractor"`
	RequireIcons   bool   `mapstructure:"require_icons"`
	RequireDisplay bool   `mapstructure:"require_display"`
}

// TrancoConfig locates the ranked domain list.
type TrancoConfig struct {
	ListPageURL  string `mapstructure:"list_page_url"`
	DownloadBase string `mapstructure:"download_base"`
}

// SourcesConfig lists where candidate domains come from.
type SourcesConfig struct {
	Tranco          TrancoConfig `mapstructure:"tranco"`
	MarkdownURLs    []string     `mapstructure:"markdown_urls"`
	FallbackDomains []string     `mapstructure:"fallback_domains"`
}

// BatchConfig holds runner defaults for operations without their own section.
type BatchConfig struct {
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
	DelayMs     int    `mapstructure:"delay_ms"`
	ItemDelayMs int    `mapstructure:"item_delay_ms"`
}

// RateLimitConfig paces fetches per host.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// NotionConfig configures the hosted page-database backend.
type NotionConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	Token   string  `mapstructure:"token"`
	Version string  `mapstructure:"version"`
	RPS     float64 `mapstructure:"rps"`
}

// FileConfig configures the JSON entry file backend.
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects the directory record store.
type StoreConfig struct {
	Backend  string       `mapstructure:"backend"`
	Database string       `mapstructure:"database"`
	DSN      string       `mapstructure:"dsn"`
	Table    string       `mapstructure:"table"`
	MaxConns int32        `mapstructure:"max_conns"`
	Notion   NotionConfig `mapstructure:"notion"`
	File     FileConfig   `mapstructure:"file"`
}

// DiscoverConfig holds discovery defaults.
type DiscoverConfig struct {
	Source          string   `mapstructure:"source"`
	Limit           int      `mapstructure:"limit"`
	Offset          int      `mapstructure:"offset"`
	Concurrency     int      `mapstructure:"concurrency"`
	DelayMs         int      `mapstructure:"delay_ms"`
	CheckpointEvery int      `mapstructure:"checkpoint_every"`
	HistoryPath     string   `mapstructure:"history_path"`
	Tags            []string `mapstructure:"tags"`
	SeenFilterPath  string   `mapstructure:"seen_filter_path"`
}

// CrawlConfig holds the file-based crawl workflow settings.
type CrawlConfig struct {
	Source               string `mapstructure:"source"`
	DataPath             string `mapstructure:"data_path"`
	CandidatesPath       string `mapstructure:"candidates_path"`
	Concurrency          int    `mapstructure:"concurrency"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	RequireServiceWorker bool   `mapstructure:"require_service_worker"`
}

// ImportConfig holds entry-file import settings.
type ImportConfig struct {
	Concurrency int      `mapstructure:"concurrency"`
	DelayMs     int      `mapstructure:"delay_ms"`
	Tags        []string `mapstructure:"tags"`
}

// DescribeConfig holds description backfill settings.
type DescribeConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	ItemDelayMs    int `mapstructure:"item_delay_ms"`
	BatchDelayMs   int `mapstructure:"batch_delay_ms"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LocalStorageConfig configures the filesystem blob backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// StorageConfig selects where run archives are written.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressBatchConfig bounds sink batches.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// ProgressConfig configures the progress hub and its sinks.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
}

// DatabaseConfig points run tracking at Postgres. Empty keeps runs in memory.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PWACRAWLER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.accept", "")
	v.SetDefault("http.accept_language", "")
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.sw_wait_ms", 3000)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("classifier.strategy", "static")
	v.SetDefault("classifier.extractor", "regex")
	v.SetDefault("classifier.require_icons", false)
	v.SetDefault("classifier.require_display", false)
	v.SetDefault("sources.tranco.list_page_url", "https://tranco-list.eu/")
	v.SetDefault("sources.tranco.download_base", "https://tranco-list.eu/download_daily")
	v.SetDefault("sources.markdown_urls", []string{})
	v.SetDefault("sources.fallback_domains", []string{})
	v.SetDefault("batch.mode", "chunked")
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.delay_ms", 0)
	v.SetDefault("batch.item_delay_ms", 0)
	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.database", "pwas")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "pwas")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.notion.base_url", "https://api.notion.com")
	v.SetDefault("store.notion.token", "")
	v.SetDefault("store.notion.version", "2022-06-28")
	v.SetDefault("store.notion.rps", 3)
	v.SetDefault("store.file.path", "data/pwa.json")
	v.SetDefault("discover.source", "tranco")
	v.SetDefault("discover.limit", 500)
	v.SetDefault("discover.offset", 0)
	v.SetDefault("discover.concurrency", 3)
	v.SetDefault("discover.delay_ms", 1500)
	v.SetDefault("discover.checkpoint_every", 10)
	v.SetDefault("discover.history_path", "data/discover-results.json")
	v.SetDefault("discover.tags", []string{"Auto-discovered"})
	v.SetDefault("discover.seen_filter_path", "")
	v.SetDefault("crawl.source", "github")
	v.SetDefault("crawl.data_path", "data/pwa.json")
	v.SetDefault("crawl.candidates_path", "")
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("crawl.timeout_seconds", 10)
	v.SetDefault("crawl.require_service_worker", false)
	v.SetDefault("import.concurrency", 3)
	v.SetDefault("import.delay_ms", 500)
	v.SetDefault("import.tags", []string{"Imported"})
	v.SetDefault("describe.concurrency", 3)
	v.SetDefault("describe.item_delay_ms", 1000)
	v.SetDefault("describe.batch_delay_ms", 2000)
	v.SetDefault("describe.timeout_seconds", 10)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("storage.local.base_dir", "data/archive")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch.max_events", 1000)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("database.dsn", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := oneOf("classifier.strategy", c.Classifier.Strategy, "static", "rendered", "auto"); err != nil {
		return err
	}
	if (c.Classifier.Strategy == "rendered" || c.Classifier.Strategy == "auto") && !c.Headless.Enabled {
		return fmt.Errorf("classifier.strategy %q requires headless.enabled", c.Classifier.Strategy)
	}
	if err := oneOf("classifier.extractor", c.Classifier.Extractor, "regex", "dom"); err != nil {
		return err
	}
	if err := oneOf("batch.mode", c.Batch.Mode, "pool", "chunked"); err != nil {
		return err
	}
	if err := oneOf("discover.source", c.Discover.Source, "tranco", "github", "all"); err != nil {
		return err
	}
	if err := oneOf("crawl.source", c.Crawl.Source, "tranco", "github", "all"); err != nil {
		return err
	}
	for name, n := range map[string]int{
		"batch.concurrency":    c.Batch.Concurrency,
		"discover.concurrency": c.Discover.Concurrency,
		"crawl.concurrency":    c.Crawl.Concurrency,
		"import.concurrency":   c.Import.Concurrency,
		"describe.concurrency": c.Describe.Concurrency,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.Discover.Limit < 0 || c.Discover.Offset < 0 {
		return fmt.Errorf("discover.limit and discover.offset must be >= 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	case "notion":
		if c.Store.Notion.Token == "" || c.Store.Database == "" {
			return fmt.Errorf("store.notion.token and store.database are required for the notion backend")
		}
	case "file":
		if c.Store.File.Path == "" {
			return fmt.Errorf("store.file.path is required for the file backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want memory, postgres, notion, or file)", c.Store.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want memory, local, or gcs)", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// HTTPTimeout converts http.timeout_seconds to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Millis converts a millisecond knob to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
