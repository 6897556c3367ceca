package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

const (
	// DefaultListLimit は実行履歴のデフォルト返却件数です。
	DefaultListLimit = 20
	// MaxListLimit は実行履歴の最大返却件数です。
	MaxListLimit = 200
)

// PipelineRunner creates and executes runs. *Coordinator implements it.
type PipelineRunner interface {
	NewRun(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error)
	Execute(ctx context.Context, run *entity.Run) error
}

var _ PipelineRunner = (*Coordinator)(nil)

// RunsUsecase は実行のトリガーと履歴参照を提供します。
// 同じ銘柄・同じ日付の実行は同時に1つまでに制限します。銘柄が異なる実行は並行して動作します。
type RunsUsecase struct {
	runner PipelineRunner
	runs   RunRepository

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
	base   context.Context
}

// NewRunsUsecase は新しい RunsUsecase を作成します。
// base は非同期実行のコンテキストで、キャンセルされると実行中のランは FAILED になります。
func NewRunsUsecase(base context.Context, runner PipelineRunner, runs RunRepository) *RunsUsecase {
	return &RunsUsecase{
		runner: runner,
		runs:   runs,
		active: map[string]struct{}{},
		base:   base,
	}
}

func activeKey(symbol string, runDate time.Time) string {
	return symbol + "|" + truncateDay(runDate).Format(time.DateOnly)
}

func (u *RunsUsecase) acquire(symbol string, runDate time.Time) (string, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return "", err
	}
	key := activeKey(sym, runDate)

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.active[key]; ok {
		return "", fmt.Errorf("%w: %s", domain.ErrRunInProgress, key)
	}
	u.active[key] = struct{}{}
	return key, nil
}

func (u *RunsUsecase) release(key string) {
	u.mu.Lock()
	delete(u.active, key)
	u.mu.Unlock()
}

// Trigger は実行を作成してバックグラウンドで開始し、PENDING の実行記録を返します。
func (u *RunsUsecase) Trigger(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	key, err := u.acquire(symbol, runDate)
	if err != nil {
		return nil, err
	}
	run, err := u.runner.NewRun(ctx, symbol, runDate)
	if err != nil {
		u.release(key)
		return nil, err
	}
	snapshot := *run

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer u.release(key)
		if err := u.runner.Execute(u.base, run); err != nil {
			logRunFailure(run, err)
		}
	}()
	return &snapshot, nil
}

// RunSync は実行を作成し、完了するまでブロックします。
func (u *RunsUsecase) RunSync(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	key, err := u.acquire(symbol, runDate)
	if err != nil {
		return nil, err
	}
	defer u.release(key)

	run, err := u.runner.NewRun(ctx, symbol, runDate)
	if err != nil {
		return nil, err
	}
	return run, u.runner.Execute(ctx, run)
}

// Get は実行記録を取得します。
func (u *RunsUsecase) Get(ctx context.Context, id string) (*entity.Run, error) {
	return u.runs.FindByID(ctx, id)
}

// List は銘柄の最新の実行記録を返します。
func (u *RunsUsecase) List(ctx context.Context, symbol string, limit int) ([]entity.Run, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	if symbol != "" {
		sym, err := domain.NormalizeSymbol(symbol)
		if err != nil {
			return nil, err
		}
		symbol = sym
	}
	return u.runs.ListBySymbol(ctx, symbol, limit)
}

// Wait は全てのバックグラウンド実行が終わるまで待機します。
func (u *RunsUsecase) Wait() {
	u.wg.Wait()
}

func logRunFailure(run *entity.Run, err error) {
	var se *domain.StageError
	if errors.As(err, &se) {
		slog.Warn("background run ended in failure", "run_id", run.ID, "symbol", run.Symbol,
			"stage", se.Stage, "kind", se.Kind())
		return
	}
	slog.Error("background run aborted", "run_id", run.ID, "symbol", run.Symbol, "error", err)
}
