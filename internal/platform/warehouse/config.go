// Package warehouse は整形済みCSVを PostgreSQL の分析用テーブルへ一括ロードします。
package warehouse

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mode selects what happens to existing rows of the target table.
type Mode string

const (
	// ModeReplace empties the table before copying, so a re-run of a day does not duplicate rows.
	ModeReplace Mode = "replace"
	// ModeAppend keeps existing rows.
	ModeAppend Mode = "append"
)

// Config holds warehouse connection settings.
type Config struct {
	Host     string `env:"HOST" envDefault:"postgres"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Database string `env:"NAME" envDefault:"postgres"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MinConns int    `env:"MIN_CONNS" envDefault:"0"`
	MaxConns int    `env:"MAX_CONNS" envDefault:"4"`
	Mode     Mode   `env:"LOAD_MODE" envDefault:"replace"`
}

// LoadConfig loads warehouse configuration from WAREHOUSE_* environment variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "WAREHOUSE_"})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if c.Mode != ModeReplace && c.Mode != ModeAppend {
		return fmt.Errorf("warehouse load mode %q: must be %q or %q", c.Mode, ModeReplace, ModeAppend)
	}
	return nil
}

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return pool, nil
}
