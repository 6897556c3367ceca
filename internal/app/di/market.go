// Package di provides dependency injection factories for creating application components.
package di

import (
	"stock_pipeline/internal/platform/externalapi/yahoofinance"
	infrahttp "stock_pipeline/internal/platform/http"
	"stock_pipeline/internal/shared/ratelimiter"
)

// NewMarket creates a fully configured market data client with HTTP client and
// a rate limiter shared by the sensor and the fetcher of every run.
func NewMarket(cfg yahoofinance.Config) *yahoofinance.Client {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout, cfg.Headers)
	limiter := ratelimiter.NewRateLimiter(cfg.RateLimit, cfg.RateInterval)
	return yahoofinance.NewClient(cfg, httpClient, limiter)
}
