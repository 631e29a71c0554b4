package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/climate-studio/atlas/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Backstop BackstopConfig `yaml:"backstop" mapstructure:"backstop"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the saved-view database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// FetchConfig configures remote dataset fetching.
type FetchConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// Timeout returns the fetch timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures backend replay after style swaps.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	DelayMillis int `yaml:"delay_millis" mapstructure:"delay_millis"`
}

// Delay returns the retry delay as a duration.
func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

// BackstopConfig configures the stalled-refresh watchdog stages.
type BackstopConfig struct {
	FirstSecs  int `yaml:"first_secs" mapstructure:"first_secs"`
	SecondSecs int `yaml:"second_secs" mapstructure:"second_secs"`
}

// First returns the first watchdog stage as a duration.
func (c BackstopConfig) First() time.Duration {
	return time.Duration(c.FirstSecs) * time.Second
}

// Second returns the second watchdog stage as a duration.
func (c BackstopConfig) Second() time.Duration {
	return time.Duration(c.SecondSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// IngestConfig configures hydrography shapefile imports.
type IngestConfig struct {
	Schema  string `yaml:"schema" mapstructure:"schema"`
	IDField string `yaml:"id_field" mapstructure:"id_field"`
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
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "atlas.db")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.burst", 5)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.delay_millis", 300)
	v.SetDefault("backstop.first_secs", 5)
	v.SetDefault("backstop.second_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("ingest.schema", "hydro")
	v.SetDefault("ingest.id_field", "SITE_ID")
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

// Validate checks the fields a command mode requires. Collected problems
// are joined so an operator sees every missing setting at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "serve":
		check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be > 0 and < 65536")
		check(c.Store.Driver == "sqlite" || c.Store.Driver == "postgres",
			"store.driver must be sqlite or postgres")
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Retry.MaxAttempts >= 1 && c.Retry.MaxAttempts <= 20,
			"retry.max_attempts must be between 1 and 20")
		check(c.Backstop.FirstSecs > 0 && c.Backstop.SecondSecs > c.Backstop.FirstSecs,
			"backstop.second_secs must be greater than backstop.first_secs")
	case "import":
		check(c.Store.Driver == "postgres", "import requires store.driver postgres")
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Ingest.Schema != "", "ingest.schema is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
