// Package dto defines data transfer objects for the Yahoo Finance API responses.
package dto

import "encoding/json"

// APIError is the error object Yahoo embeds in failed responses.
type APIError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ChartResponse represents the JSON response from the /v8/finance/chart/{symbol} endpoint.
// Each result element is kept raw; its contents are opaque to the pipeline.
type ChartResponse struct {
	Chart *struct {
		Result []json.RawMessage `json:"result"`
		Error  *APIError         `json:"error"`
	} `json:"chart"`
}

// HealthResponse is the body returned when the chart endpoint is called without a symbol.
// The API is considered healthy while finance.result is null or absent.
type HealthResponse struct {
	Finance *struct {
		Result json.RawMessage `json:"result"`
		Error  *APIError       `json:"error"`
	} `json:"finance"`
}
