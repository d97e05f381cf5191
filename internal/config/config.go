package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the CLI, API server and bot.
type Config struct {
	DatabaseURL        string
	Timezone           string
	DailyBudgetMinutes int
	HTTPAddr           string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PlanCacheTTL       time.Duration
	TelegramToken      string
	ReportTime         string
	ReportInterval     time.Duration
	LogMode            string
	LogFile            string
}

// Load reads configuration from an optional .env file in dir and from environment
// variables, with sane defaults.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "pacepilot.db")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("DAILY_BUDGET_MINUTES", 0)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PLAN_CACHE_TTL", "5m")
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("REPORT_TIME", "07:30")
	v.SetDefault("REPORT_INTERVAL_HOURS", "")
	v.SetDefault("LOG_MODE", "dev")
	v.SetDefault("LOG_FILE", "")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, the environment is enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		DatabaseURL:        strings.TrimSpace(v.GetString("DATABASE_URL")),
		Timezone:           strings.TrimSpace(v.GetString("TIMEZONE")),
		DailyBudgetMinutes: v.GetInt("DAILY_BUDGET_MINUTES"),
		HTTPAddr:           strings.TrimSpace(v.GetString("HTTP_ADDR")),
		RedisAddr:          strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		PlanCacheTTL:       v.GetDuration("PLAN_CACHE_TTL"),
		TelegramToken:      strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		ReportTime:         strings.TrimSpace(v.GetString("REPORT_TIME")),
		ReportInterval:     parseInterval(strings.TrimSpace(v.GetString("REPORT_INTERVAL_HOURS"))),
		LogMode:            strings.TrimSpace(v.GetString("LOG_MODE")),
		LogFile:            strings.TrimSpace(v.GetString("LOG_FILE")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "pacepilot.db"
	}
	if cfg.PlanCacheTTL <= 0 {
		cfg.PlanCacheTTL = 5 * time.Minute
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DailyBudgetMinutes < 0 {
		return fmt.Errorf("DAILY_BUDGET_MINUTES must not be negative")
	}
	if c.ReportTime != "" {
		if _, err := time.Parse("15:04", c.ReportTime); err != nil {
			return fmt.Errorf("invalid REPORT_TIME %q, expected HH:MM", c.ReportTime)
		}
	}
	return nil
}

// RequireTelegram is checked by the bot command only.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location resolves Timezone; empty and "Local" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
