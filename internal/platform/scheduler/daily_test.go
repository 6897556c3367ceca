package scheduler

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

type triggered struct {
	symbol  string
	runDate time.Time
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []triggered
	errs  map[string]error
}

func (f *fakeTrigger) Trigger(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, triggered{symbol: symbol, runDate: runDate})
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return &entity.Run{ID: "run-" + symbol, Symbol: symbol, RunDate: runDate}, nil
}

func (f *fakeTrigger) snapshot() []triggered {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]triggered(nil), f.calls...)
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	jst, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	tests := []struct {
		name         string
		now          time.Time
		hour, minute int
		loc          *time.Location
		want         time.Time
	}{
		{
			name: "before fire time: today",
			now:  time.Date(2025, 8, 5, 6, 0, 0, 0, jst),
			hour: 8, loc: jst,
			want: time.Date(2025, 8, 5, 8, 0, 0, 0, jst),
		},
		{
			name: "after fire time: tomorrow",
			now:  time.Date(2025, 8, 5, 9, 0, 0, 0, jst),
			hour: 8, loc: jst,
			want: time.Date(2025, 8, 6, 8, 0, 0, 0, jst),
		},
		{
			name: "exactly at fire time: tomorrow",
			now:  time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "now in other zone is converted",
			now:  time.Date(2025, 8, 5, 23, 30, 0, 0, jst),
			hour: 0, minute: 15, loc: time.UTC,
			want: time.Date(2025, 8, 6, 0, 15, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			now:  time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC),
			hour: 6, loc: time.UTC,
			want: time.Date(2025, 9, 1, 6, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextRun(tt.now, tt.hour, tt.minute, tt.loc)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
			assert.True(t, got.After(tt.now))
		})
	}
}

func TestRunDateFor(t *testing.T) {
	t.Parallel()

	got := RunDateFor(time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC), got)

	got = RunDateFor(time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), got)
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	h, m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "8am", "25:00", "08:61"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestDaily_Fire(t *testing.T) {
	t.Parallel()

	trig := &fakeTrigger{errs: map[string]error{
		"AAPL": fmt.Errorf("%w: AAPL 2025-08-05", domain.ErrRunInProgress),
		"BAD":  domain.ErrInvalidSymbol,
	}}
	d, err := NewDaily(trig, Config{Symbols: []string{"NVDA", "AAPL", "BAD", "MSFT"}, At: "00:00", Timezone: "UTC"})
	require.NoError(t, err)

	d.Fire(context.Background(), time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC))

	calls := trig.snapshot()
	require.Len(t, calls, 4, "one failing symbol does not stop the others")
	runDate := time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)
	for i, sym := range []string{"NVDA", "AAPL", "BAD", "MSFT"} {
		assert.Equal(t, sym, calls[i].symbol)
		assert.Equal(t, runDate, calls[i].runDate)
	}
}

func TestDaily_Start_FiresOncePerTickWithoutCatchup(t *testing.T) {
	t.Parallel()

	trig := &fakeTrigger{}
	d, err := NewDaily(trig, Config{Symbols: []string{"NVDA"}, At: "00:00", Timezone: "UTC"})
	require.NoError(t, err)

	// 起動時点より前の実行時刻は遡らず、次の実行時刻だけを待つ。
	var mu sync.Mutex
	now := time.Date(2025, 8, 5, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	ticks := 0
	d.after = func(wait time.Duration) <-chan time.Time {
		mu.Lock()
		waits = append(waits, wait)
		ticks++
		if ticks == 1 {
			now = now.Add(wait)
		} else {
			cancel()
		}
		mu.Unlock()
		ch := make(chan time.Time, 1)
		if ticks == 1 {
			ch <- now
		}
		return ch
	}

	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}

	calls := trig.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "NVDA", calls[0].symbol)
	assert.Equal(t, time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC), calls[0].runDate)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 12*time.Hour, waits[0])
	assert.Equal(t, 24*time.Hour, waits[1])
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA"}, cfg.Symbols)
	assert.Equal(t, "00:00", cfg.At)
	assert.True(t, cfg.Enabled)

	p := cfg.Policies()[entity.StageFetch]
	assert.Equal(t, 2, p.Retries)
	assert.True(t, p.ExponentialBackoff)

	t.Setenv("SCHEDULE_SYMBOLS", "NVDA,AAPL")
	t.Setenv("SCHEDULE_AT", "21:30")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AAPL"}, cfg.Symbols)

	t.Setenv("SCHEDULE_AT", "9pm")
	_, err = LoadConfig()
	assert.Error(t, err)
}
