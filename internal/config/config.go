package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	DSN             string        `mapstructure:"dsn"`    // Connection string
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SourcesConfig holds all chatter source configurations
type SourcesConfig struct {
	GoogleNews   GoogleNewsConfig   `mapstructure:"google_news"`
	Yahoo        YahooConfig        `mapstructure:"yahoo_finance"`
	RSS          RSSConfig          `mapstructure:"rss"`
	Reddit       RedditConfig       `mapstructure:"reddit"`
	Stocktwits   StocktwitsConfig   `mapstructure:"stocktwits"`
	AlphaVantage AlphaVantageConfig `mapstructure:"alpha_vantage"`
}

// GoogleNewsConfig holds Google News RSS settings (free, no API key)
type GoogleNewsConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxItems int  `mapstructure:"max_items"`
}

// YahooConfig holds Yahoo Finance RSS settings (free, no API key)
type YahooConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxItems int  `mapstructure:"max_items"`
}

// RSSConfig holds generic RSS feed settings
type RSSConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Feeds   []RSSFeed `mapstructure:"feeds"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// RedditConfig holds Reddit public JSON settings (free, no auth)
type RedditConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Subreddits []string `mapstructure:"subreddits"`
	UserAgent  string   `mapstructure:"user_agent"`
	MaxPosts   int      `mapstructure:"max_posts"`
}

// StocktwitsConfig holds Stocktwits public API settings
type StocktwitsConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxItems int  `mapstructure:"max_items"`
}

// AlphaVantageConfig holds Alpha Vantage News API settings.
// The adapter participates in a cycle only when an API key is present.
type AlphaVantageConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Available reports whether the paid adapter can run
func (c AlphaVantageConfig) Available() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// IngestionConfig holds scheduler and lookback settings
type IngestionConfig struct {
	IntervalSeconds int           `mapstructure:"interval_seconds"`
	LookbackDays    int           `mapstructure:"lookback_days"`
	Tickers         []string      `mapstructure:"tickers"` // explicit working set; empty falls back to the company registry
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	OnDemandTimeout time.Duration `mapstructure:"on_demand_timeout"`
}

// AnthropicConfig holds Claude API settings for the chatter digest
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// Available reports whether digest generation can run
func (c AnthropicConfig) Available() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// TrackerConfig holds Google Sheets run-log settings. When enabled,
// every scheduler cycle appends a row to the configured spreadsheet so
// operators can audit ingestion volume without database access.
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
	CredentialsFile    string `mapstructure:"credentials_file"`
}

// Available reports whether the tracker has usable credentials
func (c TrackerConfig) Available() bool {
	return c.Enabled && c.SpreadsheetID != "" &&
		(c.ServiceAccountJSON != "" || c.CredentialsFile != "")
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".chatter-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("CHATTER")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.driver", "CHATTER_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "CHATTER_DATABASE_DSN")
	v.BindEnv("sources.alpha_vantage.api_key", "CHATTER_ALPHA_VANTAGE_API_KEY")
	v.BindEnv("anthropic.api_key", "CHATTER_ANTHROPIC_API_KEY")
	v.BindEnv("ingestion.interval_seconds", "CHATTER_INGESTION_INTERVAL_SECONDS")
	v.BindEnv("ingestion.lookback_days", "CHATTER_INGESTION_LOOKBACK_DAYS")
	v.BindEnv("ingestion.tickers", "CHATTER_ACTIVE_TICKERS")
	v.BindEnv("tracker.enabled", "CHATTER_TRACKER_ENABLED")
	v.BindEnv("tracker.spreadsheet_id", "CHATTER_TRACKER_SPREADSHEET_ID")
	v.BindEnv("tracker.service_account_json", "CHATTER_TRACKER_SERVICE_ACCOUNT_JSON")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// ACTIVE_TICKERS may arrive as a single comma-separated value
	config.Ingestion.Tickers = splitTickers(config.Ingestion.Tickers)

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/chatter.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	// Sources defaults - free sources on, paid off until a key appears
	v.SetDefault("sources.google_news.enabled", true)
	v.SetDefault("sources.google_news.max_items", 50)
	v.SetDefault("sources.yahoo_finance.enabled", true)
	v.SetDefault("sources.yahoo_finance.max_items", 50)
	v.SetDefault("sources.rss.enabled", true)
	v.SetDefault("sources.rss.feeds", []map[string]string{
		{"name": "MarketWatch", "url": "https://feeds.marketwatch.com/marketwatch/marketpulse/"},
		{"name": "Investing.com", "url": "https://www.investing.com/rss/news.rss"},
	})
	v.SetDefault("sources.reddit.enabled", true)
	v.SetDefault("sources.reddit.subreddits", []string{"wallstreetbets", "stocks", "investing", "StockMarket"})
	v.SetDefault("sources.reddit.user_agent", "chatter-agent/1.0")
	v.SetDefault("sources.reddit.max_posts", 25)
	v.SetDefault("sources.stocktwits.enabled", true)
	v.SetDefault("sources.stocktwits.max_items", 30)

	// Ingestion defaults
	v.SetDefault("ingestion.interval_seconds", 300)
	v.SetDefault("ingestion.lookback_days", 7)
	v.SetDefault("ingestion.http_timeout", "10s")
	v.SetDefault("ingestion.on_demand_timeout", "60s")

	// Tracker defaults
	v.SetDefault("tracker.enabled", false)

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2048)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration. Failures here are fatal at
// bootstrap: the process must not continue serving on a broken config.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Ingestion.IntervalSeconds <= 0 {
		return fmt.Errorf("ingestion.interval_seconds must be positive")
	}
	if c.Ingestion.LookbackDays <= 0 {
		return fmt.Errorf("ingestion.lookback_days must be positive")
	}
	return nil
}

// splitTickers normalizes the ticker list: comma-separated entries are
// expanded, whitespace trimmed, everything uppercased.
func splitTickers(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, t := range strings.Split(entry, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
