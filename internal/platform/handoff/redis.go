package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

// DefaultTTL bounds how long an unconsumed value survives a crashed run.
const DefaultTTL = 24 * time.Hour

// Redis implements usecase.Handoff on Redis so that stages of one run may
// execute in different processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ usecase.Handoff = (*Redis)(nil)

// NewRedis creates a Redis handoff channel. ttl <= 0 uses DefaultTTL.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// key returns the Redis key for a stage value.
func (r *Redis) key(runID string, stage entity.StageName) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, runID, stage)
}

// Push stores the stage's output, replacing any earlier value.
func (r *Redis) Push(ctx context.Context, runID string, stage entity.StageName, value string) error {
	if err := r.client.Set(ctx, r.key(runID, stage), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("push %s: %w", stage, err)
	}
	return nil
}

// Pull atomically reads and deletes the stage's output.
func (r *Redis) Pull(ctx context.Context, runID string, stage entity.StageName) (string, error) {
	v, err := r.client.GetDel(ctx, r.key(runID, stage)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: run %s stage %s", ErrValueMissing, runID, stage)
		}
		return "", fmt.Errorf("pull %s: %w", stage, err)
	}
	return v, nil
}

// Clear deletes every value of the run.
func (r *Redis) Clear(ctx context.Context, runID string) error {
	keys := make([]string, len(entity.Stages))
	for i, s := range entity.Stages {
		keys[i] = r.key(runID, s)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear run %s: %w", runID, err)
	}
	return nil
}
