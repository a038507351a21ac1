package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"creatorreminder/internal/delivery"
	pkgconfig "creatorreminder/pkg/config"
	"creatorreminder/pkg/otel"
)

type LogConfig struct {
	Level string `yaml:"level"`
}

type ReminderConfig struct {
	// Interval between sweeps when Schedule is empty.
	Interval time.Duration `yaml:"interval"`
	// Schedule is an optional 5-field cron expression that replaces Interval.
	Schedule string `yaml:"schedule"`
	Workers  int    `yaml:"workers"`
	// Timezone in which deadlines and calendar days are evaluated.
	Timezone string `yaml:"timezone"`
	// ClaimTTL is how long a Redis claim on a reminder key lives.
	ClaimTTL time.Duration `yaml:"claim_ttl"`
	// FailureTTL is how long consecutive delivery failures are remembered.
	FailureTTL time.Duration `yaml:"failure_ttl"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	Server   pkgconfig.ServerConfig `yaml:"server"`
	Log      LogConfig              `yaml:"log"`
	Otel     otel.Config            `yaml:"otel"`
	Reminder ReminderConfig         `yaml:"reminder"`
	Delivery delivery.Config        `yaml:"delivery"`
	Outbox   OutboxConfig           `yaml:"outbox"`
}

// Load reads the layered configuration selected by CONFIG_ENV from CONFIG_DIR
// (default "config"), applies environment overrides and validates the result.
func Load() (*Config, error) {
	return LoadFrom(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	var cfg Config
	if err := pkgconfig.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}

	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	overrideFromEnv(&cfg)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if v := os.Getenv("REMINDER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reminder.Interval = d
		}
	}
	if v := os.Getenv("REMINDER_SCHEDULE"); v != "" {
		cfg.Reminder.Schedule = v
	}
	if v := os.Getenv("REMINDER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reminder.Workers = n
		}
	}
	if v := os.Getenv("REMINDER_TIMEZONE"); v != "" {
		cfg.Reminder.Timezone = v
	}

	if v := os.Getenv("DELIVERY_PROVIDER"); v != "" {
		cfg.Delivery.Provider = v
	}
	if v := os.Getenv("DELIVERY_FROM"); v != "" {
		cfg.Delivery.From = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Delivery.Resend.APIKey = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Delivery.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Delivery.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Delivery.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Delivery.SMTP.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Reminder.Interval == 0 && c.Reminder.Schedule == "" {
		c.Reminder.Interval = 24 * time.Hour
	}
	if c.Reminder.Workers == 0 {
		c.Reminder.Workers = 4
	}
	if c.Reminder.Timezone == "" {
		c.Reminder.Timezone = "UTC"
	}
	if c.Reminder.ClaimTTL == 0 {
		c.Reminder.ClaimTTL = 25 * time.Hour
	}
	if c.Reminder.FailureTTL == 0 {
		c.Reminder.FailureTTL = 48 * time.Hour
	}
	if c.Delivery.Provider == "" {
		c.Delivery.Provider = delivery.ProviderLog
	}
	if c.Outbox.Interval == 0 {
		c.Outbox.Interval = 5 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries == 0 {
		c.Outbox.MaxRetries = 10
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.DB.Host == "" {
		result = multierror.Append(result, fmt.Errorf("db.host is required"))
	}
	if c.DB.Name == "" {
		result = multierror.Append(result, fmt.Errorf("db.name is required"))
	}
	if c.Reminder.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("reminder.workers must be at least 1, got %d", c.Reminder.Workers))
	}
	if c.Reminder.Schedule == "" && c.Reminder.Interval <= 0 {
		result = multierror.Append(result, fmt.Errorf("reminder.interval must be positive"))
	}
	if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
		result = multierror.Append(result, fmt.Errorf("reminder.timezone: %w", err))
	}
	if c.Delivery.RatePerSecond < 0 {
		result = multierror.Append(result, fmt.Errorf("delivery.rate_per_second must not be negative"))
	}

	switch strings.ToLower(c.Delivery.Provider) {
	case delivery.ProviderResend:
		if c.Delivery.Resend.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("delivery.resend.api_key is required for the resend provider"))
		}
		if c.Delivery.From == "" {
			result = multierror.Append(result, fmt.Errorf("delivery.from is required for the resend provider"))
		}
	case delivery.ProviderSMTP:
		if c.Delivery.SMTP.Host == "" {
			result = multierror.Append(result, fmt.Errorf("delivery.smtp.host is required for the smtp provider"))
		}
		if c.Delivery.From == "" {
			result = multierror.Append(result, fmt.Errorf("delivery.from is required for the smtp provider"))
		}
	case delivery.ProviderMQ:
		if c.MQ.URL == "" {
			result = multierror.Append(result, fmt.Errorf("mq.url is required for the mq provider"))
		}
	case delivery.ProviderLog:
	default:
		result = multierror.Append(result, fmt.Errorf("delivery.provider %q is not supported", c.Delivery.Provider))
	}

	return result.ErrorOrNil()
}

// Location returns the configured reminder timezone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
