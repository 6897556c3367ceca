package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
)

const (
	// DefaultPokeInterval はヘルスチェックのポーリング間隔です。
	DefaultPokeInterval = 60 * time.Second
	// DefaultSensorTimeout はAPIが利用可能になるまで待機する最大時間です。
	DefaultSensorTimeout = 5 * time.Minute
)

// ProbeResult is the outcome of one readiness probe.
type ProbeResult struct {
	URL      string // Resolved URL that was probed
	Degraded bool   // True while finance.result carries a non-null value
}

// HealthProbe はマーケットデータAPIのヘルスチェックを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type HealthProbe interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

// Sensor はマーケットデータAPIが利用可能になるまでパイプラインの開始を待機させます。
type Sensor struct {
	probe    HealthProbe
	interval time.Duration
	timeout  time.Duration
}

// NewSensor は新しい Sensor を作成します。0以下の値にはデフォルトを使用します。
func NewSensor(probe HealthProbe, interval, timeout time.Duration) *Sensor {
	if interval <= 0 {
		interval = DefaultPokeInterval
	}
	if timeout <= 0 {
		timeout = DefaultSensorTimeout
	}
	return &Sensor{probe: probe, interval: interval, timeout: timeout}
}

// Poke は1回だけプローブを実行し、準備完了かどうかを返します。
func (s *Sensor) Poke(ctx context.Context) (bool, string, error) {
	res, err := s.probe.Probe(ctx)
	if err != nil {
		return false, "", err
	}
	return !res.Degraded, res.URL, nil
}

// Wait はAPIが準備完了になるまでポーリングし、プローブしたURLを返します。
// プローブのエラーはリトライ可能として扱い、待機予算を超えた場合は ErrSensorTimeout を返します。
func (s *Sensor) Wait(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		ready, url, err := s.Poke(ctx)
		switch {
		case err != nil:
			lastErr = err
			slog.Warn("readiness probe failed", "attempt", attempt, "error", err)
		case ready:
			slog.Info("market data api is available", "url", url, "attempt", attempt)
			return url, nil
		default:
			lastErr = nil
			slog.Info("market data api degraded, waiting", "url", url, "attempt", attempt, "interval", s.interval)
		}

		select {
		case <-ctx.Done():
			elapsed := time.Since(start).Round(time.Millisecond)
			if lastErr != nil {
				return "", fmt.Errorf("%w after %s (%d probes): last probe error: %v", domain.ErrSensorTimeout, elapsed, attempt, lastErr)
			}
			return "", fmt.Errorf("%w after %s (%d probes): %v", domain.ErrSensorTimeout, elapsed, attempt, context.Cause(ctx))
		case <-ticker.C:
		}
	}
}
