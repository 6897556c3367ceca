package di

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"stock_pipeline/internal/config"
	"stock_pipeline/internal/feature/pipeline/adapters"
	"stock_pipeline/internal/feature/pipeline/usecase"
	"stock_pipeline/internal/platform/cache"
	"stock_pipeline/internal/platform/dockerjob"
	infrahttp "stock_pipeline/internal/platform/http"
	"stock_pipeline/internal/platform/notify/slack"
	"stock_pipeline/internal/platform/objectstore"
	"stock_pipeline/internal/platform/scheduler"
	"stock_pipeline/internal/platform/warehouse"
)

// Pipeline groups the assembled usecases.
type Pipeline struct {
	Coordinator *usecase.Coordinator
	Runs        *usecase.RunsUsecase
}

// NewPipeline はステージのアダプターを組み立て、コーディネーターと実行ユースケースを返します。
// base がキャンセルされるとバックグラウンドの実行も中断されます。
func NewPipeline(base context.Context, cfg *config.Config, infra *Infra) (*Pipeline, error) {
	objects, err := objectstore.New(cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	reformatter, err := dockerjob.NewRunner(cfg.Formatter)
	if err != nil {
		return nil, err
	}

	market := NewMarket(cfg.MarketAPI)
	// 終了済みの実行記録は Redis にキャッシュ（Redis 無効時はそのまま DB）
	runs := cache.NewCachingRunRepository(infra.Redis, 0, adapters.NewRunRepository(infra.DB), "pipeline:runs")

	deps := usecase.CoordinatorDeps{
		Sensor:      usecase.NewSensor(market, cfg.Sensor.Interval, cfg.Sensor.Timeout),
		Fetcher:     market,
		Store:       usecase.NewQuoteStore(objects, cfg.MinIO.Bucket),
		Reformatter: reformatter,
		Locator:     usecase.NewFormattedLocator(objects, cfg.MinIO.Bucket),
		Loader:      warehouse.NewLoader(infra.Warehouse, objects, cfg.Warehouse.Mode),
		Handoff:     NewHandoff(infra.Redis, cfg.App.HandoffPrefix, cfg.App.HandoffTTL),
		Runs:        runs,
		Notifier:    slack.NewNotifier(cfg.Slack, infrahttp.NewHTTPClient(cfg.Slack.Timeout, nil)),
		Scheduler:   scheduler.NewLocal(),
	}

	coord := usecase.NewCoordinator(deps, cfg.MinIO.Bucket, cfg.Schedule.Policies(), uuid.NewString)
	return &Pipeline{
		Coordinator: coord,
		Runs:        usecase.NewRunsUsecase(base, coord, runs),
	}, nil
}
