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
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
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

// CrawlerConfig governs traversal budgets for the scraping strategies.
type CrawlerConfig struct {
	UserAgent           string  `mapstructure:"user_agent"`
	HostQPS             float64 `mapstructure:"host_qps"`
	MaxPages            int     `mapstructure:"max_pages"`
	MaxDepth            int     `mapstructure:"max_depth"`
	BatchSize           int     `mapstructure:"batch_size"`
	AdvancedMaxPages    int     `mapstructure:"advanced_max_pages"`
	AdvancedMaxDepth    int     `mapstructure:"advanced_max_depth"`
	AdvancedTimeoutSecs int     `mapstructure:"advanced_timeout_seconds"`
}

// HTTPConfig configures outbound fetch behavior.
type HTTPConfig struct {
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	ProxyTimeoutSeconds int `mapstructure:"proxy_timeout_seconds"`
}

// ProvidersConfig points at the external scraping providers.
type ProvidersConfig struct {
	CrawlEndpoint       string `mapstructure:"crawl_endpoint"`
	CrawlPageLimit      int    `mapstructure:"crawl_page_limit"`
	CrawlPollIntervalMs int    `mapstructure:"crawl_poll_interval_ms"`
	CrawlMaxPolls       int    `mapstructure:"crawl_max_polls"`
	ProxyEndpoint       string `mapstructure:"proxy_endpoint"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOSPITALCRAWLER")
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
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.host_qps", 4.0)
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.max_depth", 1)
	v.SetDefault("crawler.batch_size", 5)
	v.SetDefault("crawler.advanced_max_pages", 5)
	v.SetDefault("crawler.advanced_max_depth", 1)
	v.SetDefault("crawler.advanced_timeout_seconds", 20)
	v.SetDefault("http.fetch_timeout_seconds", 15)
	v.SetDefault("http.proxy_timeout_seconds", 60)
	v.SetDefault("providers.crawl_endpoint", "https://api.firecrawl.dev/v1/crawl")
	v.SetDefault("providers.crawl_page_limit", 50)
	v.SetDefault("providers.crawl_poll_interval_ms", 5000)
	v.SetDefault("providers.crawl_max_polls", 60)
	v.SetDefault("providers.proxy_endpoint", "https://api.scraperapi.com/")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.HTTP.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("http.fetch_timeout_seconds must be > 0")
	}
	if c.Providers.CrawlMaxPolls <= 0 {
		return fmt.Errorf("providers.crawl_max_polls must be > 0")
	}
	switch c.Storage.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.provider is postgres")
		}
	default:
		return fmt.Errorf("storage.provider must be memory or postgres")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the per page fetch timeout for the native strategy.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.FetchTimeoutSeconds) * time.Second
}

// ProxyTimeout returns the per page timeout for proxied fetches.
func (c Config) ProxyTimeout() time.Duration {
	return time.Duration(c.HTTP.ProxyTimeoutSeconds) * time.Second
}

// AdvancedTimeout returns the global deadline for an advanced run.
func (c Config) AdvancedTimeout() time.Duration {
	return time.Duration(c.Crawler.AdvancedTimeoutSecs) * time.Second
}

// CrawlPollInterval returns the delay between crawl provider status polls.
func (c Config) CrawlPollInterval() time.Duration {
	return time.Duration(c.Providers.CrawlPollIntervalMs) * time.Millisecond
}
