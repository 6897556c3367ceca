// Package yahoofinance provides a client for the Yahoo Finance chart API.
package yahoofinance

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the Yahoo Finance API client.
type Config struct {
	BaseURL      string            `env:"BASE_URL" envDefault:"https://query1.finance.yahoo.com"` // Host part of the API (e.g., "https://query1.finance.yahoo.com")
	Endpoint     string            `env:"ENDPOINT" envDefault:"/v8/finance/chart/"`               // Path appended to BaseURL; also the health probe target
	Headers      map[string]string `env:"HEADERS" envDefault:"User-Agent:Mozilla/5.0,Content-Type:application/json"`
	Timeout      time.Duration     `env:"TIMEOUT" envDefault:"10s"`       // HTTP request timeout
	RateLimit    int               `env:"RATE_LIMIT" envDefault:"60"`     // Max calls per RateInterval across all runs; 0 disables
	RateInterval time.Duration     `env:"RATE_INTERVAL" envDefault:"1m"`
}

// LoadConfig loads Yahoo Finance configuration from MARKET_API_* environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "MARKET_API_"})
}

// HealthURL is the URL polled by the sensor. Its value is handed to the fetcher as the base URL.
func (c Config) HealthURL() string {
	return c.BaseURL + c.Endpoint
}
