package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"stock_pipeline/internal/config"
	"stock_pipeline/internal/platform/db"
	"stock_pipeline/internal/platform/http/handler"
	infraredis "stock_pipeline/internal/platform/redis"
	"stock_pipeline/internal/platform/warehouse"
)

// Infra holds the connections a binary opens at startup.
type Infra struct {
	DB        *gorm.DB
	Warehouse *pgxpool.Pool
	Redis     *redis.Client // nil when Redis is disabled or unreachable
}

// OpenInfra はメタデータDB・ウェアハウス・Redisへ接続します。
// Redis は任意で、接続できない場合はメモリ上のハンドオフで動作します。
func OpenInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	gdb, err := db.OpenDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	pool, err := warehouse.Connect(ctx, cfg.Warehouse)
	if err != nil {
		closeGorm(gdb)
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}

	infra := &Infra{DB: gdb, Warehouse: pool}
	if cfg.Redis.Enabled() {
		rdb, err := infraredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, running with in-memory handoff", "error", err)
		} else {
			infra.Redis = rdb
		}
	}
	return infra, nil
}

// Close releases every connection.
func (i *Infra) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
	if i.Warehouse != nil {
		i.Warehouse.Close()
	}
	closeGorm(i.DB)
}

// Checks returns readiness checks for every open connection.
func (i *Infra) Checks() map[string]handler.Check {
	checks := map[string]handler.Check{
		"metadata_db": func(ctx context.Context) error {
			sqlDB, err := i.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"warehouse": func(ctx context.Context) error {
			return i.Warehouse.Ping(ctx)
		},
	}
	if i.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return i.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func closeGorm(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("failed to close metadata db", "error", err)
	}
}
