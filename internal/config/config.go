package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Cache   CacheConfig   `mapstructure:"cache"`
	AniDB   AniDBConfig   `mapstructure:"anidb"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CacheConfig holds the on-disk metadata cache configuration.
type CacheConfig struct {
	// Root is the directory under which provider caches are kept.
	Root string `mapstructure:"root"`
	// StalenessDays is how long a cached series document stays fresh.
	StalenessDays int `mapstructure:"staleness_days"`
}

// AniDBConfig holds AniDB HTTP API client configuration.
type AniDBConfig struct {
	// Client and ClientVersion identify this application to AniDB.
	// Requests without a registered client name are rejected.
	Client        string `mapstructure:"client"`
	ClientVersion int    `mapstructure:"client_version"`
	BaseURL       string `mapstructure:"base_url"`
	ImageBaseURL  string `mapstructure:"image_base_url"`
	Timeout       int    `mapstructure:"timeout"` // seconds

	// PreferredLanguage is the language tag used for title selection.
	PreferredLanguage string `mapstructure:"preferred_language"`
	// TitlePreference is one of "localized", "japanese", "romaji".
	TitlePreference string `mapstructure:"title_preference"`

	// EnableAutomaticUpdates lets the host re-resolve series whose
	// cached documents are newer than its own records.
	EnableAutomaticUpdates bool `mapstructure:"enable_automatic_updates"`

	// Request spacing, in milliseconds. AniDB bans clients that hammer
	// the API, so these defaults are deliberately conservative.
	RateMinMs   int `mapstructure:"rate_min_ms"`
	RateAvgMs   int `mapstructure:"rate_avg_ms"`
	RateBurstMs int `mapstructure:"rate_burst_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Root:          "./data/cache",
			StalenessDays: 7,
		},
		AniDB: AniDBConfig{
			Client:                 "animeta",
			ClientVersion:          1,
			BaseURL:                "http://api.anidb.net:9001/httpapi",
			ImageBaseURL:           "http://img7.anidb.net/pics/anime/",
			Timeout:                30,
			PreferredLanguage:      "en",
			TitlePreference:        "localized",
			EnableAutomaticUpdates: true,
			RateMinMs:              2000,
			RateAvgMs:              4000,
			RateBurstMs:            30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.animeta")
	}

	v.SetEnvPrefix("ANIMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("cache.root", d.Cache.Root)
	v.SetDefault("cache.staleness_days", d.Cache.StalenessDays)

	v.SetDefault("anidb.client", d.AniDB.Client)
	v.SetDefault("anidb.client_version", d.AniDB.ClientVersion)
	v.SetDefault("anidb.base_url", d.AniDB.BaseURL)
	v.SetDefault("anidb.image_base_url", d.AniDB.ImageBaseURL)
	v.SetDefault("anidb.timeout", d.AniDB.Timeout)
	v.SetDefault("anidb.preferred_language", d.AniDB.PreferredLanguage)
	v.SetDefault("anidb.title_preference", d.AniDB.TitlePreference)
	v.SetDefault("anidb.enable_automatic_updates", d.AniDB.EnableAutomaticUpdates)
	v.SetDefault("anidb.rate_min_ms", d.AniDB.RateMinMs)
	v.SetDefault("anidb.rate_avg_ms", d.AniDB.RateAvgMs)
	v.SetDefault("anidb.rate_burst_ms", d.AniDB.RateBurstMs)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
}

// StalenessWindow returns the staleness window as a duration.
func (c *CacheConfig) StalenessWindow() time.Duration {
	days := c.StalenessDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}
