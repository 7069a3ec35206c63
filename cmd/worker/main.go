// Package main は分析ワーカーのエントリーポイントです。
// キューからジョブを取り出し、テキスト抽出とLLM分析を実行して
// レコードを終端状態へ更新します。
package main

import (
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/findoc-analyzer/internal/analysis"
	"github.com/yourusername/findoc-analyzer/internal/config"
	"github.com/yourusername/findoc-analyzer/internal/extract"
	"github.com/yourusername/findoc-analyzer/internal/jobs"
	"github.com/yourusername/findoc-analyzer/internal/llm"
	"github.com/yourusername/findoc-analyzer/internal/records"
	"github.com/yourusername/findoc-analyzer/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// レコードストアの初期化
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis url: %v", err)
	}
	store := records.NewRedisStore(redis.NewClient(opt))

	// ドキュメント保管とテキスト抽出の初期化
	files, err := storage.NewLocal(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	extractor := extract.NewService(files, cfg.ExtractMaxChars)

	// LLM分析コラボレータの初期化
	client, err := llm.NewClient(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: 0.0,
		Timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to init llm client: %v", err)
	}
	analyzer := analysis.NewAnalyzer(client, log.Default())

	worker, err := jobs.NewWorker(cfg.QueueRedisURL, cfg.WorkerConcurrency, store, extractor, analyzer, files, log.Default())
	if err != nil {
		log.Fatalf("Failed to init worker: %v", err)
	}

	log.Printf("Starting analysis worker (concurrency: %d)", cfg.WorkerConcurrency)
	if err := worker.Run(); err != nil {
		log.Fatalf("Worker stopped with error: %v", err)
	}
}
