// Command runonce は1銘柄のパイプラインを同期実行し、失敗時は非ゼロで終了します。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock_pipeline/internal/app/di"
	"stock_pipeline/internal/config"
)

func main() {
	symbol := flag.String("symbol", "NVDA", "ticker symbol to run")
	date := flag.String("date", "", "logical run date YYYY-MM-DD (default: today UTC)")
	flag.Parse()

	os.Exit(run(*symbol, *date))
}

func run(symbol, date string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.Level()})))

	runDate := time.Now().UTC()
	if date != "" {
		runDate, err = time.Parse(time.DateOnly, date)
		if err != nil {
			slog.Error("invalid -date, want YYYY-MM-DD", "date", date)
			return 2
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := di.OpenInfra(ctx, cfg)
	if err != nil {
		slog.Error("failed to open infrastructure", "error", err)
		return 1
	}
	defer infra.Close()

	p, err := di.NewPipeline(ctx, cfg, infra)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		return 1
	}

	r, err := p.Runs.RunSync(ctx, symbol, runDate)
	if err != nil {
		slog.Error("run failed", "error", err)
		if r != nil {
			fmt.Printf("%s %s %s %s\n", r.ID, r.Symbol, r.State, r.FailedStage)
		}
		return 1
	}
	fmt.Printf("%s %s %s rows=%d\n", r.ID, r.Symbol, r.State, r.RowsLoaded)
	return 0
}
