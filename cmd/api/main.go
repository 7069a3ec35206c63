// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/findoc-analyzer/internal/analysis"
	"github.com/yourusername/findoc-analyzer/internal/config"
	"github.com/yourusername/findoc-analyzer/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ドキュメント保管とジョブキューの初期化
	files, err := storage.NewLocal(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	store, scheduler, err := setupJobs(cfg)
	if err != nil {
		log.Fatalf("Failed to init job queue: %v", err)
	}

	service := analysis.NewService(store, files, scheduler, log.Default())

	// ルーティングの設定
	setupRoutes(router, cfg, service)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "findoc-analyzer-api",
		"version": "0.1.0",
	})
}

// setupRoutes はAPIエンドポイントの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, service *analysis.Service) {
	router.GET("/health", handleHealth)

	opts := analysis.HandlerOptions{
		MaxUploadBytes: cfg.MaxFileSize,
	}
	router.POST("/analyze", analysis.AnalyzeHandler(service, opts))
	router.GET("/status/:task_id", analysis.StatusHandler(service))
	router.GET("/analyses", analysis.ListHandler(service))
}
