// Package usecase はクオート取り込みパイプラインのビジネスロジックを実装します。
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

// StageFunc is one attempt at a stage. It returns the stage's handoff value.
type StageFunc func(ctx context.Context) (string, error)

// RetryPolicy controls how a scheduler re-runs a failed stage.
type RetryPolicy struct {
	Retries            int           // Additional attempts after the first
	Delay              time.Duration // Wait before the first retry
	ExponentialBackoff bool          // Double Delay after each retry
	MaxDelay           time.Duration // Upper bound for backoff; 0 means unbounded
	Timeout            time.Duration // Per-attempt execution timeout; 0 means none
}

// Scheduler は各ステージを実行し、リトライポリシーを適用するポートです。
// コーディネーターは具体的なスケジューラに依存しません。
type Scheduler interface {
	Run(ctx context.Context, stage entity.StageName, fn StageFunc, policy RetryPolicy) (string, error)
}

// Handoff はステージ間の値受け渡しチャネルです。値はステージ名をキーに格納され、
// 次のステージが Pull した時点で削除されます。
type Handoff interface {
	Push(ctx context.Context, runID string, stage entity.StageName, value string) error
	Pull(ctx context.Context, runID string, stage entity.StageName) (string, error)
	Clear(ctx context.Context, runID string) error
}

// RunRepository は実行記録の永続化を抽象化します。
type RunRepository interface {
	Create(ctx context.Context, run *entity.Run) error
	UpdateState(ctx context.Context, id string, state entity.State) error
	Finish(ctx context.Context, run *entity.Run) error
	FindByID(ctx context.Context, id string) (*entity.Run, error)
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Run, error)
}

// Gate blocks until the market data API is ready and returns the base URL to fetch from.
type Gate interface {
	Wait(ctx context.Context) (string, error)
}

// QuoteFetcher は外部APIから1銘柄分の生データを取得します。
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, baseURL, symbol string) (string, error)
}

// QuoteSaver persists a raw payload and returns the "{bucket}/{symbol}" locator.
type QuoteSaver interface {
	Store(ctx context.Context, raw string) (string, error)
}

// Reformatter runs the external job that turns raw JSON into CSV.
type Reformatter interface {
	Reformat(ctx context.Context, locator string) error
}

// ArtifactLocator finds the formatted artifact for a locator.
type ArtifactLocator interface {
	Locate(ctx context.Context, locator string) (string, error)
}

// Loader bulk-loads a CSV object into the warehouse and returns the row count.
type Loader interface {
	Load(ctx context.Context, req domain.LoadRequest) (int64, error)
}

// Notifier sends the single terminal message of a run.
type Notifier interface {
	Notify(ctx context.Context, n entity.Notification) error
}

// CoordinatorDeps groups the collaborators of a Coordinator.
type CoordinatorDeps struct {
	Sensor      Gate
	Fetcher     QuoteFetcher
	Store       QuoteSaver
	Reformatter Reformatter
	Locator     ArtifactLocator
	Loader      Loader
	Handoff     Handoff
	Runs        RunRepository
	Notifier    Notifier
	Scheduler   Scheduler
}

// Coordinator は Sensor → Fetch → Store → Format → Locate → Load を順に実行する状態機械です。
type Coordinator struct {
	deps     CoordinatorDeps
	bucket   string
	policies map[entity.StageName]RetryPolicy
	newID    func() string
	now      func() time.Time
}

// NewCoordinator は新しい Coordinator を作成します。
// policies に含まれないステージはリトライなしで実行されます。
func NewCoordinator(deps CoordinatorDeps, bucket string, policies map[entity.StageName]RetryPolicy, newID func() string) *Coordinator {
	if policies == nil {
		policies = map[entity.StageName]RetryPolicy{}
	}
	return &Coordinator{
		deps:     deps,
		bucket:   bucket,
		policies: policies,
		newID:    newID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// stageStep binds a stage to the predecessor it consumes from.
type stageStep struct {
	stage entity.StageName
	input entity.StageName // empty for the first stage
	exec  func(ctx context.Context, run *entity.Run, in string) (string, error)
}

func (c *Coordinator) steps() []stageStep {
	return []stageStep{
		{
			stage: entity.StageSensor,
			exec: func(ctx context.Context, _ *entity.Run, _ string) (string, error) {
				return c.deps.Sensor.Wait(ctx)
			},
		},
		{
			stage: entity.StageFetch,
			input: entity.StageSensor,
			exec: func(ctx context.Context, run *entity.Run, baseURL string) (string, error) {
				return c.deps.Fetcher.FetchQuotes(ctx, baseURL, run.Symbol)
			},
		},
		{
			stage: entity.StageStore,
			input: entity.StageFetch,
			exec: func(ctx context.Context, _ *entity.Run, raw string) (string, error) {
				return c.deps.Store.Store(ctx, raw)
			},
		},
		{
			stage: entity.StageFormat,
			input: entity.StageStore,
			exec: func(ctx context.Context, _ *entity.Run, locator string) (string, error) {
				if err := c.deps.Reformatter.Reformat(ctx, locator); err != nil {
					return "", err
				}
				// the job's output lives in the bucket; the locator is passed on unchanged
				return locator, nil
			},
		},
		{
			stage: entity.StageLocate,
			input: entity.StageFormat,
			exec: func(ctx context.Context, _ *entity.Run, locator string) (string, error) {
				return c.deps.Locator.Locate(ctx, locator)
			},
		},
		{
			stage: entity.StageLoad,
			input: entity.StageLocate,
			exec: func(ctx context.Context, run *entity.Run, key string) (string, error) {
				n, err := c.deps.Loader.Load(ctx, domain.StockPricesLoad(c.bucket, key))
				if err != nil {
					return "", err
				}
				run.RowsLoaded = n
				return strconv.FormatInt(n, 10), nil
			},
		},
	}
}

// NewRun は PENDING 状態の実行記録を作成します。
func (c *Coordinator) NewRun(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	run := &entity.Run{
		ID:        c.newID(),
		Symbol:    sym,
		RunDate:   truncateDay(runDate),
		State:     entity.StatePending,
		StartedAt: c.now(),
	}
	if err := c.deps.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Run は実行記録を作成し、チェーン全体を同期的に実行します。
func (c *Coordinator) Run(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	run, err := c.NewRun(ctx, symbol, runDate)
	if err != nil {
		return nil, err
	}
	return run, c.Execute(ctx, run)
}

// Execute は PENDING の実行を各ステージに順に進めます。
// いずれかのステージが失敗すると FAILED に遷移し、後続のステージは実行されません。
func (c *Coordinator) Execute(ctx context.Context, run *entity.Run) error {
	if run.State != entity.StatePending {
		return fmt.Errorf("run %s is %s, expected %s", run.ID, run.State, entity.StatePending)
	}

	// bookkeeping must survive cancellation of the run itself
	bookCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := c.deps.Handoff.Clear(bookCtx, run.ID); err != nil {
			slog.Warn("failed to clear handoff values", "run_id", run.ID, "error", err)
		}
	}()

	slog.Info("pipeline run started", "run_id", run.ID, "symbol", run.Symbol, "run_date", run.RunDate.Format(time.DateOnly))

	for _, step := range c.steps() {
		if err := c.transition(bookCtx, run, step.stage.State()); err != nil {
			return c.fail(bookCtx, run, step.stage, err)
		}

		var in string
		if step.input != "" {
			v, err := c.deps.Handoff.Pull(ctx, run.ID, step.input)
			if err != nil {
				return c.fail(bookCtx, run, step.stage, fmt.Errorf("pull %s output: %w", step.input, err))
			}
			in = v
		}

		out, err := c.deps.Scheduler.Run(ctx, step.stage, func(ctx context.Context) (string, error) {
			return step.exec(ctx, run, in)
		}, c.policies[step.stage])
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return c.fail(bookCtx, run, step.stage, err)
		}

		if step.stage != entity.StageLoad {
			if err := c.deps.Handoff.Push(ctx, run.ID, step.stage, out); err != nil {
				return c.fail(bookCtx, run, step.stage, fmt.Errorf("push output: %w", err))
			}
		}
	}

	if err := c.transition(bookCtx, run, entity.StateSucceeded); err != nil {
		return c.fail(bookCtx, run, entity.StageLoad, err)
	}
	c.finish(bookCtx, run)
	slog.Info("pipeline run succeeded", "run_id", run.ID, "symbol", run.Symbol, "rows", run.RowsLoaded)
	return nil
}

func (c *Coordinator) transition(ctx context.Context, run *entity.Run, next entity.State) error {
	if !run.State.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s", run.State, next)
	}
	prev := run.State
	run.State = next
	if next != entity.StateSucceeded {
		if err := c.deps.Runs.UpdateState(ctx, run.ID, next); err != nil {
			slog.Warn("failed to record run state", "run_id", run.ID, "state", next, "error", err)
		}
	}
	slog.Info("run state changed", "run_id", run.ID, "symbol", run.Symbol, "from", prev, "to", next)
	return nil
}

func (c *Coordinator) fail(ctx context.Context, run *entity.Run, stage entity.StageName, err error) error {
	stageErr := &domain.StageError{Stage: stage, Err: err}
	run.State = entity.StateFailed
	run.FailedStage = stage
	run.ErrorKind = string(stageErr.Kind())
	run.Error = err.Error()

	slog.Error("pipeline run failed", "run_id", run.ID, "symbol", run.Symbol,
		"stage", stage, "kind", run.ErrorKind, "error", err)
	c.finish(ctx, run)
	return stageErr
}

func (c *Coordinator) finish(ctx context.Context, run *entity.Run) {
	now := c.now()
	run.FinishedAt = &now
	if err := c.deps.Runs.Finish(ctx, run); err != nil {
		slog.Warn("failed to record run result", "run_id", run.ID, "error", err)
	}

	n := entity.Notification{
		RunID:     run.ID,
		Symbol:    run.Symbol,
		RunDate:   run.RunDate,
		Succeeded: run.State == entity.StateSucceeded,
	}
	if !n.Succeeded {
		n.Stage = run.FailedStage
		n.Kind = run.ErrorKind
		n.Message = run.Error
	}
	if err := c.deps.Notifier.Notify(ctx, n); err != nil {
		slog.Warn("failed to send run notification", "run_id", run.ID, "error", err)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
