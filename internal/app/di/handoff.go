package di

import (
	"time"

	"github.com/redis/go-redis/v9"

	"stock_pipeline/internal/feature/pipeline/usecase"
	"stock_pipeline/internal/platform/handoff"
)

// NewHandoff creates the stage handoff channel.
// If Redis is available, it returns a Redis-backed implementation.
// Otherwise, it falls back to process memory.
func NewHandoff(rdb *redis.Client, prefix string, ttl time.Duration) usecase.Handoff {
	if rdb != nil {
		return handoff.NewRedis(rdb, prefix, ttl)
	}
	return handoff.NewMemory()
}
