package router

import (
	"github.com/gin-gonic/gin"

	runshandler "stock_pipeline/internal/feature/pipeline/transport/handler"
	"stock_pipeline/internal/platform/http/handler"
	jwtmw "stock_pipeline/internal/platform/jwt"
)

func NewRouter(runs *runshandler.RunsHandler, jwtSecret string, checks map[string]handler.Check) *gin.Engine {
	r := gin.Default()

	// 認証不要
	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	// 依存先の疎通確認
	r.GET("/readyz", handler.Ready(checks))

	// 認証必須のルート
	// → リクエストヘッダーにオペレーターの JWT が必要になる
	auth := r.Group("/")
	auth.Use(jwtmw.AuthRequired(jwtSecret))
	{
		// 実行のトリガー（非同期）
		auth.POST("/runs", runs.TriggerRun)
		auth.GET("/runs", runs.ListRuns)
		auth.GET("/runs/:id", runs.GetRun)
	}

	return r
}
