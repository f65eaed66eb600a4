package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	Poll    PollConfig    `yaml:"poll" mapstructure:"poll"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// SessionConfig configures guest-session handling for upstream sources.
type SessionConfig struct {
	// RefreshMarginSecs is subtracted from the token's expires_in: once the
	// remaining lifetime drops below this margin the session re-bootstraps.
	RefreshMarginSecs int     `yaml:"refresh_margin_secs" mapstructure:"refresh_margin_secs"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec    float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig configures the fan-out search.
type SearchConfig struct {
	Workers  int `yaml:"workers" mapstructure:"workers"`
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// HistoryConfig holds the price-history defaults.
type HistoryConfig struct {
	MinDays         int `yaml:"min_days" mapstructure:"min_days"`
	PerProductLimit int `yaml:"per_product_limit" mapstructure:"per_product_limit"`
}

// PollConfig configures the tracked-query scheduler.
type PollConfig struct {
	IntervalMins int `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// SourcesConfig points at the upstream source definitions file.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricewatch.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("session.refresh_margin_secs", 600)
	v.SetDefault("session.timeout_secs", 15)
	v.SetDefault("session.requests_per_sec", 2)
	v.SetDefault("session.user_agent", "pricewatch/1.0")
	v.SetDefault("search.workers", 4)
	v.SetDefault("search.page_size", 50)
	v.SetDefault("history.min_days", 2)
	v.SetDefault("history.per_product_limit", 10)
	v.SetDefault("poll.interval_mins", 1440)
	v.SetDefault("sources.file", "sources.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: invalid server port %d", c.Server.Port)
		}
		return c.Validate("store")
	case "store":
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required")
		}
		return nil
	case "scrape":
		if c.Search.Workers <= 0 {
			return eris.Errorf("config: search.workers must be positive, got %d", c.Search.Workers)
		}
		return nil
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
