package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner holds every Execute until release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	n       int
	release chan struct{}
	started chan string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan string, 8)}
}

func (r *blockingRunner) NewRun(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.n++
	id := fmt.Sprintf("%s-%d", sym, r.n)
	r.mu.Unlock()
	return &entity.Run{ID: id, Symbol: sym, RunDate: truncateDay(runDate), State: entity.StatePending}, nil
}

func (r *blockingRunner) Execute(ctx context.Context, run *entity.Run) error {
	r.started <- run.ID
	select {
	case <-r.release:
		run.State = entity.StateSucceeded
		return nil
	case <-ctx.Done():
		run.State = entity.StateFailed
		return &domain.StageError{Stage: entity.StageSensor, Err: domain.ErrSensorTimeout}
	}
}

func TestRunsUsecase_Trigger_ReturnsPendingSnapshot(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	u := NewRunsUsecase(context.Background(), runner, newFakeRunRepository())

	run, err := u.Trigger(context.Background(), "nvda", runDate)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", run.Symbol)
	assert.Equal(t, entity.StatePending, run.State)

	<-runner.started
	close(runner.release)
	u.Wait()

	assert.Equal(t, entity.StatePending, run.State, "the returned record is not mutated by the background run")
}

func TestRunsUsecase_Trigger_RejectsDuplicateInProgress(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner()
	u := NewRunsUsecase(context.Background(), runner, newFakeRunRepository())
	ctx := context.Background()

	_, err := u.Trigger(ctx, "NVDA", runDate)
	require.NoError(t, err)
	<-runner.started

	// same symbol, same day
	_, err = u.Trigger(ctx, "nvda", runDate.Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	// a different symbol or a different day runs concurrently
	_, err = u.Trigger(ctx, "AAPL", runDate)
	assert.NoError(t, err)
	_, err = u.Trigger(ctx, "NVDA", runDate.AddDate(0, 0, 1))
	assert.NoError(t, err)

	close(runner.release)
	u.Wait()

	// finished runs release their slot
	_, err = u.Trigger(ctx, "NVDA", runDate)
	require.NoError(t, err)
	u.Wait()
}

func TestRunsUsecase_Trigger_InvalidSymbol(t *testing.T) {
	t.Parallel()

	u := NewRunsUsecase(context.Background(), newBlockingRunner(), newFakeRunRepository())
	_, err := u.Trigger(context.Background(), "../etc", runDate)
	assert.ErrorIs(t, err, domain.ErrInvalidSymbol)
}

func TestRunsUsecase_Trigger_BaseCancellationStopsRuns(t *testing.T) {
	t.Parallel()

	base, cancel := context.WithCancel(context.Background())
	runner := newBlockingRunner()
	u := NewRunsUsecase(base, runner, newFakeRunRepository())

	_, err := u.Trigger(context.Background(), "NVDA", runDate)
	require.NoError(t, err)
	<-runner.started

	cancel()
	done := make(chan struct{})
	go func() {
		u.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background run did not stop after base cancellation")
	}
}

func TestRunsUsecase_RunSync(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)
	u := NewRunsUsecase(context.Background(), f.coord, f.runs)

	run, err := u.RunSync(context.Background(), "NVDA", runDate)
	require.NoError(t, err)
	assert.Equal(t, entity.StateSucceeded, run.State)

	got, err := u.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateSucceeded, got.State)
	assert.Equal(t, int64(251), got.RowsLoaded)
}

func TestRunsUsecase_List(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)
	f.fetcher.FetchQuotesFunc = func(ctx context.Context, baseURL, symbol string) (string, error) {
		return fmt.Sprintf(`{"meta":{"symbol":%q}}`, symbol), nil
	}
	u := NewRunsUsecase(context.Background(), f.coord, f.runs)
	ctx := context.Background()

	for range 3 {
		_, err := u.RunSync(ctx, "NVDA", runDate)
		require.NoError(t, err)
	}
	_, err := u.RunSync(ctx, "AAPL", runDate)
	require.NoError(t, err)

	tests := []struct {
		name    string
		symbol  string
		limit   int
		want    int
		wantErr error
	}{
		{name: "filter by symbol", symbol: "nvda", limit: 10, want: 3},
		{name: "limit applied", symbol: "NVDA", limit: 2, want: 2},
		{name: "non-positive limit uses default", symbol: "NVDA", limit: 0, want: 3},
		{name: "all symbols", symbol: "", limit: 10, want: 4},
		{name: "invalid symbol", symbol: "NV DA", limit: 10, wantErr: domain.ErrInvalidSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := u.List(ctx, tt.symbol, tt.limit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}
}
