// Package dto はpipelineフィーチャーのHTTP APIで使うDTOを定義します。
package dto

import (
	"time"

	"stock_pipeline/internal/feature/pipeline/domain/entity"
)

// TriggerRunRequest は POST /runs のリクエストボディです。
type TriggerRunRequest struct {
	Symbol  string `json:"symbol" binding:"required"`
	RunDate string `json:"run_date"` // YYYY-MM-DD; 省略時は当日(UTC)
}

// RunResponse は実行記録のレスポンスDTOです。
type RunResponse struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	RunDate     string  `json:"run_date"`
	State       string  `json:"state"`
	FailedStage string  `json:"failed_stage,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	Error       string  `json:"error,omitempty"`
	RowsLoaded  int64   `json:"rows_loaded"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  *string `json:"finished_at,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRunResponse converts a run record to its wire form.
func NewRunResponse(r entity.Run) RunResponse {
	out := RunResponse{
		ID:          r.ID,
		Symbol:      r.Symbol,
		RunDate:     r.RunDate.UTC().Format(time.DateOnly),
		State:       string(r.State),
		FailedStage: string(r.FailedStage),
		ErrorKind:   r.ErrorKind,
		Error:       r.Error,
		RowsLoaded:  r.RowsLoaded,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		s := r.FinishedAt.UTC().Format(time.RFC3339)
		out.FinishedAt = &s
	}
	return out
}
