// Package config はアプリケーション全体の設定を環境変数から読み込みます。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"stock_pipeline/internal/platform/db"
	"stock_pipeline/internal/platform/dockerjob"
	"stock_pipeline/internal/platform/externalapi/yahoofinance"
	jwtmw "stock_pipeline/internal/platform/jwt"
	"stock_pipeline/internal/platform/notify/slack"
	"stock_pipeline/internal/platform/objectstore"
	"stock_pipeline/internal/platform/redis"
	"stock_pipeline/internal/platform/scheduler"
	"stock_pipeline/internal/platform/warehouse"
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig           `envPrefix:"APP_"`
	Sensor    SensorConfig        `envPrefix:"SENSOR_"`
	MarketAPI yahoofinance.Config `envPrefix:"MARKET_API_"`
	MinIO     objectstore.Config  `envPrefix:"MINIO_"`
	Formatter dockerjob.Config    `envPrefix:"FORMATTER_"`
	Warehouse warehouse.Config    `envPrefix:"WAREHOUSE_"`
	DB        db.Config           `envPrefix:"DB_"`
	Redis     redis.Config        `envPrefix:"REDIS_"`
	Slack     slack.Config        `envPrefix:"SLACK_"`
	JWT       jwtmw.Config        `envPrefix:"JWT_"`
	Schedule  scheduler.Config    `envPrefix:"SCHEDULE_"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name            string        `env:"NAME" envDefault:"stock-pipeline"`
	Port            int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HandoffPrefix   string        `env:"HANDOFF_PREFIX" envDefault:"pipeline:handoff"`
	HandoffTTL      time.Duration `env:"HANDOFF_TTL" envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// SensorConfig はAPI可用性センサーのポーリング設定です。
type SensorConfig struct {
	Interval time.Duration `env:"INTERVAL" envDefault:"60s"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"300s"`
}

// Level parses LogLevel, falling back to info.
func (a AppConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(a.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Addr returns the HTTP listen address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf(":%d", a.Port)
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// .env があれば読み込む（既存の環境変数は上書きしない）
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints of every section.
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app port out of range: %d", c.App.Port))
	}
	if c.Sensor.Interval <= 0 || c.Sensor.Timeout <= 0 {
		errs = append(errs, errors.New("sensor interval and timeout must be positive"))
	}
	if c.Sensor.Interval > c.Sensor.Timeout {
		errs = append(errs, fmt.Errorf("sensor interval %s exceeds timeout %s", c.Sensor.Interval, c.Sensor.Timeout))
	}
	if c.MinIO.Bucket == "" {
		errs = append(errs, errors.New("minio bucket is empty"))
	}
	if c.Formatter.Image == "" {
		errs = append(errs, errors.New("formatter image is empty"))
	}
	if err := c.Warehouse.Validate(); err != nil {
		errs = append(errs, err)
	}
	// テーブルに銘柄列がないため、replace では各銘柄のロードが他銘柄の行を消してしまう
	if c.Warehouse.Mode == warehouse.ModeReplace && len(c.Schedule.Symbols) > 1 {
		errs = append(errs, fmt.Errorf("warehouse load mode %q truncates %s on every load and cannot serve %d scheduled symbols; use %q",
			warehouse.ModeReplace, "public.stock_prices", len(c.Schedule.Symbols), warehouse.ModeAppend))
	}
	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
