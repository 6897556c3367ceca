// Package scheduler はステージの実行・リトライと日次トリガーを提供します。
package scheduler

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

// Config holds the daily schedule and per-stage retry settings.
type Config struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	Symbols       []string      `env:"SYMBOLS" envSeparator:"," envDefault:"NVDA"`
	At            string        `env:"AT" envDefault:"00:00"` // Daily fire time, HH:MM in Timezone
	Timezone      string        `env:"TIMEZONE" envDefault:"UTC"`
	FetchRetries  int           `env:"FETCH_RETRIES" envDefault:"2"`
	RetryDelay    time.Duration `env:"RETRY_DELAY" envDefault:"30s"`
	MaxRetryDelay time.Duration `env:"MAX_RETRY_DELAY" envDefault:"5m"`
	StageTimeout  time.Duration `env:"STAGE_TIMEOUT" envDefault:"0s"` // Per-attempt limit for fetch; 0 disables
}

// LoadConfig loads schedule configuration from SCHEDULE_* environment variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "SCHEDULE_"})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the fire time, time zone and symbol list.
func (c Config) Validate() error {
	if _, _, err := ParseClock(c.At); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}
	for _, s := range c.Symbols {
		if _, err := domain.NormalizeSymbol(s); err != nil {
			return fmt.Errorf("schedule symbols: %w", err)
		}
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("schedule fetch retries must not be negative: %d", c.FetchRetries)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Policies returns the retry policy of each stage. The sensor has its own polling
// loop and the remaining stages fail on the first error.
func (c Config) Policies() map[entity.StageName]usecase.RetryPolicy {
	return map[entity.StageName]usecase.RetryPolicy{
		entity.StageFetch: {
			Retries:            c.FetchRetries,
			Delay:              c.RetryDelay,
			ExponentialBackoff: true,
			MaxDelay:           c.MaxRetryDelay,
			Timeout:            c.StageTimeout,
		},
	}
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
