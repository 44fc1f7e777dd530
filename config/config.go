// Package config loads the dispatchd configuration from file and
// environment, with defaults suitable for local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/backoff"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

type Config struct {
	Server   ServerConfig              `mapstructure:"server"`
	Store    StoreConfig               `mapstructure:"store"`
	Redis    RedisConfig               `mapstructure:"redis"`
	Logging  LoggingConfig             `mapstructure:"logging"`
	Dispatch DispatchConfig            `mapstructure:"dispatch"`
	Backoff  map[string]BackoffConfig  `mapstructure:"backoff"`
	Throttle map[string]ThrottleConfig `mapstructure:"throttle"`
	Alerts   AlertsConfig              `mapstructure:"alerts"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver selects the backend: "memory" or "postgres".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	// Enabled turns on the Redis alert channel.
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// AlertChannel is the pub/sub channel for DLQ alerts.
	AlertChannel string `mapstructure:"alert_channel"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DispatchConfig struct {
	UnhealthyThreshold time.Duration `mapstructure:"unhealthy_threshold"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	AlertSweepInterval time.Duration `mapstructure:"alert_sweep_interval"`
	DefaultMaxAttempts int           `mapstructure:"default_max_attempts"`
}

type BackoffConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

type ThrottleConfig struct {
	MaxConcurrent int     `mapstructure:"max_concurrent"`
	RateLimit     float64 `mapstructure:"rate_limit"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

type AlertsConfig struct {
	// WebhookURL enables the webhook alert channel when set.
	WebhookURL string `mapstructure:"webhook_url"`
}

// Load reads configuration from configs/dispatchd.yaml (when present)
// and DISPATCHD_* environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("dispatchd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("dispatchd")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Warn("config file not found, using defaults")
		} else {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.host", "localhost")
	viper.SetDefault("store.port", 5432)
	viper.SetDefault("store.user", "dispatch")
	viper.SetDefault("store.password", "dispatch")
	viper.SetDefault("store.dbname", "dispatch")
	viper.SetDefault("store.sslmode", "disable")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.alert_channel", "dispatch:alerts")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("dispatch.unhealthy_threshold", "60s")
	viper.SetDefault("dispatch.sweep_interval", "30s")
	viper.SetDefault("dispatch.alert_sweep_interval", "1m")
	viper.SetDefault("dispatch.default_max_attempts", 3)
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	switch cfg.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DBName == "" {
		return errors.New("store dbname is required for postgres")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return errors.New("redis addr is required when redis is enabled")
	}
	for jobType, b := range cfg.Backoff {
		if err := b.Policy().Validate(); err != nil {
			return fmt.Errorf("backoff policy for %q: %w", jobType, err)
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (s *StoreConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.DBName, s.SSLMode)
}

// RedisOptions returns client options for the Redis alert channel.
func (r *RedisConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

// CoreConfig converts the dispatch section to the engine's Config.
func (c *Config) CoreConfig() dispatch.Config {
	cfg := dispatch.DefaultConfig()
	if c.Dispatch.UnhealthyThreshold > 0 {
		cfg.UnhealthyThreshold = c.Dispatch.UnhealthyThreshold
	}
	if c.Dispatch.SweepInterval > 0 {
		cfg.SweepInterval = c.Dispatch.SweepInterval
	}
	if c.Dispatch.AlertSweepInterval > 0 {
		cfg.AlertSweepInterval = c.Dispatch.AlertSweepInterval
	}
	if c.Dispatch.DefaultMaxAttempts > 0 {
		cfg.DefaultMaxAttempts = c.Dispatch.DefaultMaxAttempts
	}
	if c.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.Server.ShutdownTimeout
	}
	return cfg
}

// Policy converts a backoff section to a backoff.Policy.
func (b BackoffConfig) Policy() backoff.Policy {
	return backoff.Policy{
		MaxAttempts:  b.MaxAttempts,
		InitialDelay: b.InitialDelay,
		MaxDelay:     b.MaxDelay,
		Multiplier:   b.Multiplier,
	}
}

// ThrottleConfigs converts the throttle section to limiter configs.
func (c *Config) ThrottleConfigs() []throttle.Config {
	configs := make([]throttle.Config, 0, len(c.Throttle))
	for jobType, t := range c.Throttle {
		configs = append(configs, throttle.Config{
			Type:          jobType,
			MaxConcurrent: t.MaxConcurrent,
			RateLimit:     t.RateLimit,
			RateBurst:     t.RateBurst,
		})
	}
	return configs
}

// Logger builds a slog.Logger from the logging section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
