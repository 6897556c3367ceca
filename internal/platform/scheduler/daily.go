package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

// Trigger starts a run in the background.
type Trigger interface {
	Trigger(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error)
}

// Daily は毎日決まった時刻に全銘柄の実行をトリガーします。
// 停止中に過ぎた日は遡って実行しません（catchup なし）。
type Daily struct {
	trigger      Trigger
	symbols      []string
	hour, minute int
	loc          *time.Location
	now          func() time.Time
	after        func(d time.Duration) <-chan time.Time
}

// NewDaily creates a Daily trigger from config.
func NewDaily(trigger Trigger, cfg Config) (*Daily, error) {
	h, m, err := ParseClock(cfg.At)
	if err != nil {
		return nil, err
	}
	return &Daily{
		trigger: trigger,
		symbols: cfg.Symbols,
		hour:    h,
		minute:  m,
		loc:     cfg.Location(),
		now:     time.Now,
		after:   time.After,
	}, nil
}

// NextRun は now より後の次の実行時刻を返します。
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	now = now.In(loc)

	// 今日の実行時刻を計算
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)

	// 今日の実行時刻が既に過ぎている場合は翌日を使用
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunDateFor returns the logical date of the run fired at fire: the day whose
// interval just closed, as with an @daily schedule.
func RunDateFor(fire time.Time) time.Time {
	y, m, d := fire.AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start blocks until ctx is cancelled, firing once per day.
func (d *Daily) Start(ctx context.Context) {
	slog.Info("daily schedule started", "symbols", d.symbols, "hour", d.hour, "minute", d.minute, "tz", d.loc.String())
	for {
		next := NextRun(d.now(), d.hour, d.minute, d.loc)
		select {
		case <-ctx.Done():
			slog.Info("daily schedule stopped")
			return
		case <-d.after(next.Sub(d.now())):
			d.Fire(ctx, next)
		}
	}
}

// Fire triggers every symbol for the interval that closed at fire.
func (d *Daily) Fire(ctx context.Context, fire time.Time) {
	runDate := RunDateFor(fire)
	for _, sym := range d.symbols {
		run, err := d.trigger.Trigger(ctx, sym, runDate)
		switch {
		case errors.Is(err, domain.ErrRunInProgress):
			slog.Warn("scheduled run skipped, previous run still in progress", "symbol", sym, "run_date", runDate.Format(time.DateOnly))
		case err != nil:
			slog.Error("failed to trigger scheduled run", "symbol", sym, "error", err)
		default:
			slog.Info("scheduled run triggered", "run_id", run.ID, "symbol", run.Symbol, "run_date", runDate.Format(time.DateOnly))
		}
	}
}
