// Package config содержит логику чтения конфигурации расчётного сервиса.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config содержит параметры конфигурации расчётного сервиса.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS" validate:"required"`
	DatabaseURI      string `env:"DATABASE_URI"`
	ProcessorAddress string `env:"PROCESSOR_ADDRESS"`
	StripeAPIKey     string `env:"STRIPE_API_KEY"`
	AdminToken       string `env:"ADMIN_TOKEN"`
	LogLevel         string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`

	Currency           string        `env:"CURRENCY" validate:"len=3"`
	PayoutConcurrency  int           `env:"PAYOUT_CONCURRENCY" validate:"gte=1,lte=64"`
	SchedulerInterval  time.Duration `env:"SCHEDULER_INTERVAL" validate:"gte=1s"`
	MinPayoutCents     int64         `env:"MIN_PAYOUT_CENTS" validate:"gt=0"`
	DebtThresholdCents int64         `env:"DEBT_THRESHOLD_CENTS" validate:"gt=0"`
	HoldDays           int           `env:"HOLD_DAYS" validate:"gt=0"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ProcessorAddress, "p", "", "payment processor address")
	flag.StringVar(&cfg.StripeAPIKey, "s", "", "stripe secret key")
	flag.StringVar(&cfg.AdminToken, "t", "", "admin API token")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.StringVar(&cfg.Currency, "c", "usd", "settlement currency")
	flag.IntVar(&cfg.PayoutConcurrency, "w", 4, "concurrent partner payouts")
	flag.DurationVar(&cfg.SchedulerInterval, "i", time.Hour, "payout scheduler interval")
	flag.Int64Var(&cfg.MinPayoutCents, "min-payout", 3000, "minimum payout in cents")
	flag.Int64Var(&cfg.DebtThresholdCents, "debt-threshold", 10000, "debt threshold in cents")
	flag.IntVar(&cfg.HoldDays, "hold-days", 7, "hold window after delivery in days")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
