package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"
)

// Local runs stages in the calling goroutine and applies retry policies.
type Local struct {
	sleep func(ctx context.Context, d time.Duration) error
}

var _ usecase.Scheduler = (*Local)(nil)

// NewLocal creates a Local scheduler.
func NewLocal() *Local {
	return &Local{sleep: sleepCtx}
}

// Run executes fn, retrying while the error is retryable and attempts remain.
// An attempt that hit its own timeout is retried; a cancelled run is not.
func (l *Local) Run(ctx context.Context, stage entity.StageName, fn usecase.StageFunc, policy usecase.RetryPolicy) (string, error) {
	delay := policy.Delay
	for attempt := 0; ; attempt++ {
		out, timedOut, err := l.attempt(ctx, fn, policy.Timeout)
		if err == nil {
			return out, nil
		}

		retryable := domain.IsRetryable(err) || (timedOut && ctx.Err() == nil)
		if attempt >= policy.Retries || !retryable || ctx.Err() != nil {
			return "", err
		}

		slog.Warn("stage attempt failed, retrying", "stage", stage,
			"attempt", attempt+1, "retries", policy.Retries, "delay", delay, "error", err)
		if serr := l.sleep(ctx, delay); serr != nil {
			return "", err
		}

		if policy.ExponentialBackoff {
			delay *= 2
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}
	}
}

// attempt runs fn once and reports whether the attempt's own deadline expired.
func (l *Local) attempt(ctx context.Context, fn usecase.StageFunc, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		out, err := fn(ctx)
		return out, false, err
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(actx)
	return out, err != nil && errors.Is(actx.Err(), context.DeadlineExceeded), err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
