package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stock_pipeline/internal/app/di"
	"stock_pipeline/internal/app/router"
	"stock_pipeline/internal/config"
	runshandler "stock_pipeline/internal/feature/pipeline/transport/handler"
	"stock_pipeline/internal/platform/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.Level()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db / warehouse / redis
	infra, err := di.OpenInfra(ctx, cfg)
	if err != nil {
		slog.Error("failed to open infrastructure", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	// Usecase
	p, err := di.NewPipeline(ctx, cfg, infra)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// 日次スケジュール
	if cfg.Schedule.Enabled {
		daily, err := scheduler.NewDaily(p.Runs, cfg.Schedule)
		if err != nil {
			slog.Error("failed to create daily schedule", "error", err)
			os.Exit(1)
		}
		go daily.Start(ctx)
	}

	// Handler / ルータ生成
	runsH := runshandler.NewRunsHandler(p.Runs)
	r := router.NewRouter(runsH, cfg.JWT.Secret, infra.Checks())

	// JWT_SECRETチェック（未設定だと /runs は全て500になる）
	if cfg.JWT.Secret == "" {
		slog.Warn("JWT_SECRET is not set. The runs API rejects every request until it is configured.")
	}

	srv := &http.Server{Addr: cfg.App.Addr(), Handler: r}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	// 実行中のランはキャンセル済みのコンテキストで FAILED となり終了する
	p.Runs.Wait()
}
