package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLocal records requested sleeps instead of waiting.
func newTestLocal() (*Local, *[]time.Duration) {
	var slept []time.Duration
	l := &Local{sleep: func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}}
	return l, &slept
}

// failing returns errs in order, then succeeds with "ok".
func failing(errs ...error) (usecase.StageFunc, *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		calls++
		if calls <= len(errs) {
			return "", errs[calls-1]
		}
		return "ok", nil
	}, &calls
}

func requestErr(n int) error {
	return fmt.Errorf("%w: attempt %d", domain.ErrRequest, n)
}

func TestLocal_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errs      []error
		policy    usecase.RetryPolicy
		wantOut   string
		wantErr   error
		wantCalls int
		wantSleep []time.Duration
	}{
		{
			name:      "success on first attempt",
			policy:    usecase.RetryPolicy{Retries: 2, Delay: time.Second},
			wantOut:   "ok",
			wantCalls: 1,
		},
		{
			name:      "retryable error then success",
			errs:      []error{requestErr(1)},
			policy:    usecase.RetryPolicy{Retries: 2, Delay: time.Second},
			wantOut:   "ok",
			wantCalls: 2,
			wantSleep: []time.Duration{time.Second},
		},
		{
			name:      "retries exhausted",
			errs:      []error{requestErr(1), requestErr(2), requestErr(3)},
			policy:    usecase.RetryPolicy{Retries: 2, Delay: time.Second},
			wantErr:   domain.ErrRequest,
			wantCalls: 3,
			wantSleep: []time.Duration{time.Second, time.Second},
		},
		{
			name:      "non-retryable error fails immediately",
			errs:      []error{fmt.Errorf("%w: missing meta", domain.ErrSchema)},
			policy:    usecase.RetryPolicy{Retries: 3, Delay: time.Second},
			wantErr:   domain.ErrSchema,
			wantCalls: 1,
		},
		{
			name:      "no retries configured",
			errs:      []error{requestErr(1)},
			policy:    usecase.RetryPolicy{},
			wantErr:   domain.ErrRequest,
			wantCalls: 1,
		},
		{
			name:      "exponential backoff capped",
			errs:      []error{requestErr(1), requestErr(2), requestErr(3), requestErr(4)},
			policy:    usecase.RetryPolicy{Retries: 4, Delay: time.Second, ExponentialBackoff: true, MaxDelay: 3 * time.Second},
			wantOut:   "ok",
			wantCalls: 5,
			wantSleep: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, slept := newTestLocal()
			fn, calls := failing(tt.errs...)

			out, err := l.Run(context.Background(), entity.StageFetch, fn, tt.policy)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, out)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOut, out)
			}
			assert.Equal(t, tt.wantCalls, *calls)
			assert.Equal(t, tt.wantSleep, *slept)
		})
	}
}

func TestLocal_Run_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{sleep: func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}}
	fn, calls := failing(requestErr(1), requestErr(2))

	_, err := l.Run(ctx, entity.StageFetch, fn, usecase.RetryPolicy{Retries: 5, Delay: time.Minute})

	require.ErrorIs(t, err, domain.ErrRequest)
	assert.Equal(t, 1, *calls)
}

func TestLocal_Run_CancelledRunIsNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, slept := newTestLocal()
	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("%w: %w", domain.ErrRequest, ctx.Err())
	}

	_, err := l.Run(ctx, entity.StageFetch, fn, usecase.RetryPolicy{Retries: 3})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestLocal_Run_AttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocal()
	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}

	out, err := l.Run(context.Background(), entity.StageFetch, fn,
		usecase.RetryPolicy{Retries: 1, Timeout: 10 * time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, calls)
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(sleepCtx(ctx, time.Hour), context.Canceled))
}
