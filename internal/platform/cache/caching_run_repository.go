// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

// CachingRunRepository decorates a RunRepository with Redis caching.
// Only runs in a terminal state are cached, since they never change again.
type CachingRunRepository struct {
	inner     usecase.RunRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.RunRepository = (*CachingRunRepository)(nil)

// NewCachingRunRepository decorates a RunRepository with Redis caching.
// If ttl is 0, it defaults to 1 hour. If namespace is empty, it uses "runs".
// A nil client disables caching.
func NewCachingRunRepository(rdb *redis.Client, ttl time.Duration, inner usecase.RunRepository, namespace string) *CachingRunRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if namespace == "" {
		namespace = "runs"
	}
	return &CachingRunRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

func (c *CachingRunRepository) Create(ctx context.Context, run *entity.Run) error {
	return c.inner.Create(ctx, run)
}

// UpdateState updates the state and drops any cached copy.
func (c *CachingRunRepository) UpdateState(ctx context.Context, id string, state entity.State) error {
	if err := c.inner.UpdateState(ctx, id, state); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Finish writes the terminal record and drops any cached copy.
func (c *CachingRunRepository) Finish(ctx context.Context, run *entity.Run) error {
	if err := c.inner.Finish(ctx, run); err != nil {
		return err
	}
	c.invalidate(ctx, run.ID)
	return nil
}

// FindByID retrieves a run, checking cache first then falling back to the database.
func (c *CachingRunRepository) FindByID(ctx context.Context, id string) (*entity.Run, error) {
	// Redis未設定ならキャッシュをバイパス
	if c.rdb == nil {
		return c.inner.FindByID(ctx, id)
	}

	key := c.cacheKey(id)

	// 1) キャッシュを確認
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out entity.Run
		if err := json.Unmarshal(b, &out); err == nil {
			return &out, nil
		}
		// 壊れたエントリは削除
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) DBへフォールバック
	run, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// 3) 終了済みの実行のみ保存（ベストエフォート）
	if run.State.Terminal() {
		if b, err := json.Marshal(run); err == nil {
			_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
		}
	}
	return run, nil
}

// ListBySymbol is not cached: lists change with every new run.
func (c *CachingRunRepository) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Run, error) {
	return c.inner.ListBySymbol(ctx, symbol, limit)
}

func (c *CachingRunRepository) invalidate(ctx context.Context, id string) {
	if c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, c.cacheKey(id)).Err()
}

// cacheKey generates the cache key of a run.
func (c *CachingRunRepository) cacheKey(id string) string {
	return fmt.Sprintf("%s:%s", c.namespace, safe(id))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
