// Package handler はpipelineフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/transport/http/dto"
	jwtmw "stock_pipeline/internal/platform/jwt"
)

// RunsUsecase は実行のトリガーと参照のユースケースインターフェースです。
// インターフェースは利用者（handler）側で定義します。
type RunsUsecase interface {
	Trigger(ctx context.Context, symbol string, runDate time.Time) (*entity.Run, error)
	Get(ctx context.Context, id string) (*entity.Run, error)
	List(ctx context.Context, symbol string, limit int) ([]entity.Run, error)
}

// RunsHandler はパイプライン実行のHTTPリクエストを処理します。
type RunsHandler struct {
	uc  RunsUsecase
	now func() time.Time
}

// NewRunsHandler は指定されたusecaseでRunsHandlerを生成します。
func NewRunsHandler(uc RunsUsecase) *RunsHandler {
	return &RunsHandler{uc: uc, now: time.Now}
}

// TriggerRun は銘柄の実行を非同期で開始し、202と実行記録を返します。
//
// エンドポイント例:
// POST /runs {"symbol":"NVDA","run_date":"2025-08-05"}
func (h *RunsHandler) TriggerRun(c *gin.Context) {
	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
		return
	}

	runDate := h.now().UTC()
	if req.RunDate != "" {
		d, err := time.Parse(time.DateOnly, req.RunDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "run_date must be YYYY-MM-DD"})
			return
		}
		runDate = d
	}

	run, err := h.uc.Trigger(c.Request.Context(), req.Symbol, runDate)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("run triggered via api", "run_id", run.ID, "symbol", run.Symbol,
		"run_date", run.RunDate.Format(time.DateOnly), "operator", c.GetString(jwtmw.ContextOperator))
	c.JSON(http.StatusAccepted, dto.NewRunResponse(*run))
}

// GetRun は実行記録を1件返します。
//
// エンドポイント例:
// GET /runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	run, err := h.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewRunResponse(*run))
}

// ListRuns は最新の実行記録を新しい順に返します。
//
// エンドポイント例:
// GET /runs?symbol=NVDA&limit=20
func (h *RunsHandler) ListRuns(c *gin.Context) {
	symbol := c.Query("symbol")
	// 不正な limit は0として渡し、usecase側でデフォルト値に置き換える
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	runs, err := h.uc.List(c.Request.Context(), symbol, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, dto.NewRunResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRunNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	default:
		slog.Error("runs api request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}
