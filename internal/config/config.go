package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/segyhp/fee-ledger/pkg/money"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

// DSN returns the connection string for lib/pq.
func (d DatabaseConfig) DSN() string {
	return d.URL
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type SchedulerConfig struct {
	OutboxCron         string        `mapstructure:"OUTBOX_CRON"`
	ReminderCron       string        `mapstructure:"REMINDER_CRON"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryBackoff time.Duration `mapstructure:"OUTBOX_RETRY_BACKOFF"`
	Timezone           string        `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	DefaultCurrency        string        `mapstructure:"DEFAULT_CURRENCY"`
	MonthlyGraceDays       int           `mapstructure:"MONTHLY_GRACE_DAYS"`
	InstallmentSpacingDays int           `mapstructure:"INSTALLMENT_SPACING_DAYS"`
	InstallmentRounding    string        `mapstructure:"INSTALLMENT_ROUNDING"`
	StatementCacheTTL      time.Duration `mapstructure:"STATEMENT_CACHE_TTL"`
	ReminderLeadDays       int           `mapstructure:"REMINDER_LEAD_DAYS"`
	SnowflakeNode          int64         `mapstructure:"SNOWFLAKE_NODE"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                "8080",
	"SERVER_HOST":                "0.0.0.0",
	"ENV":                        "development",
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"DATABASE_URL":               "",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "1h",
	"REDIS_HOST":                 "localhost",
	"REDIS_PORT":                 "6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"OUTBOX_CRON":                "*/30 * * * * *",
	"REMINDER_CRON":              "0 0 8 * * *",
	"OUTBOX_BATCH_SIZE":          50,
	"OUTBOX_MAX_ATTEMPTS":        10,
	"OUTBOX_RETRY_BACKOFF":       "30s",
	"SCHEDULER_TIMEZONE":         "UTC",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "json",
	"DEFAULT_CURRENCY":           "PKR",
	"MONTHLY_GRACE_DAYS":         10,
	"INSTALLMENT_SPACING_DAYS":   30,
	"INSTALLMENT_ROUNDING":       "1",
	"STATEMENT_CACHE_TTL":        "5m",
	"REMINDER_LEAD_DAYS":         3,
	"SNOWFLAKE_NODE":             1,
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load(".env")
	_ = godotenv.Load("deployments/.env")

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if _, err := money.ParseCurrency(c.Business.DefaultCurrency); err != nil {
		return fmt.Errorf("DEFAULT_CURRENCY: %w", err)
	}

	if c.Business.MonthlyGraceDays < 0 {
		return fmt.Errorf("MONTHLY_GRACE_DAYS must not be negative")
	}

	if c.Business.InstallmentSpacingDays <= 0 {
		return fmt.Errorf("INSTALLMENT_SPACING_DAYS must be greater than 0")
	}

	rounding, err := decimal.NewFromString(c.Business.InstallmentRounding)
	if err != nil {
		return fmt.Errorf("INSTALLMENT_ROUNDING must be a valid decimal: %w", err)
	}
	if !rounding.IsPositive() {
		return fmt.Errorf("INSTALLMENT_ROUNDING must be greater than 0")
	}

	if c.Business.SnowflakeNode < 0 || c.Business.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023")
	}

	if c.Scheduler.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be greater than 0")
	}

	if c.Scheduler.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be greater than 0")
	}

	if c.Scheduler.OutboxRetryBackoff <= 0 {
		return fmt.Errorf("OUTBOX_RETRY_BACKOFF must be greater than 0")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// GetDefaultCurrency returns the configured default currency
func (c *Config) GetDefaultCurrency() money.Currency {
	cur, _ := money.ParseCurrency(c.Business.DefaultCurrency)
	return cur
}

// GetInstallmentRoundingMinor returns the installment rounding unit in minor
// units of cur. A unit finer than the minor unit collapses to one minor unit.
func (c *Config) GetInstallmentRoundingMinor(cur money.Currency) int64 {
	rounding, err := decimal.NewFromString(c.Business.InstallmentRounding)
	if err != nil {
		return 1
	}
	minor := rounding.Shift(cur.Exponent()).IntPart()
	if minor < 1 {
		return 1
	}
	return minor
}

// GetSchedulerLocation returns the scheduler time zone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
