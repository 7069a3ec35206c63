package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/findoc-analyzer/internal/records"
)

// TextExtractor はドキュメント参照からプレーンテキストを取り出します。
type TextExtractor interface {
	ExtractText(ctx context.Context, ref string) (string, error)
}

// Analyzer はテキストとクエリから分析レポートを生成します。
type Analyzer interface {
	Analyze(ctx context.Context, text, query string) (string, error)
}

// BlobRemover は一時保存されたドキュメントを削除します。
type BlobRemover interface {
	Delete(ctx context.Context, name string) error
}

// Worker はキューからジョブを取り出して分析を実行するコンシューマーです。
// 1回のハンドラー呼び出しで1件のジョブを最後まで処理し、
// 必ず終端状態（completed/failed）をレコードストアに書き込みます。
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	store     records.Store
	extractor TextExtractor
	analyzer  Analyzer
	blobs     BlobRemover
	logger    *log.Logger
}

// NewWorker は Worker を初期化します。
func NewWorker(redisURL string, concurrency int, store records.Store, extractor TextExtractor, analyzer Analyzer, blobs BlobRemover, logger *log.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor is nil")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is nil")
	}
	if blobs == nil {
		return nil, errors.New("blobs is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.Default()
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	worker := &Worker{
		server:    server,
		mux:       mux,
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		blobs:     blobs,
		logger:    logger,
	}
	mux.HandleFunc(TaskTypeAnalysis, worker.handleAnalysisTask)
	return worker, nil
}

// Run はキューの消費を開始し、外部からの停止シグナルまでブロックします。
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

// Shutdown はワーカーを停止します。
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleAnalysisTask は1件のジョブを処理します。
// ジョブの失敗はレコードの failed 書き込みに集約し、エラーを返すのは
// 終端状態の書き込み自体に失敗した場合のみです（その場合はブローカーの
// 再配送に委ねる）。一時ドキュメントは結果に関わらず削除を試みます。
func (w *Worker) handleAnalysisTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to parse task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.AnalysisID == "" {
		return fmt.Errorf("missing analysisId in payload: %w", asynq.SkipRetry)
	}

	defer w.cleanupSource(payload.SourceRef)

	report, err := w.runAnalysis(ctx, &payload)
	if err != nil {
		w.logger.Printf("analysis job failed job=%s: %v", payload.AnalysisID, err)
		return w.markTerminal(ctx, payload.AnalysisID, records.StatusFailed, "Error: "+err.Error())
	}
	return w.markTerminal(ctx, payload.AnalysisID, records.StatusCompleted, report)
}

func (w *Worker) runAnalysis(ctx context.Context, payload *TaskPayload) (string, error) {
	text, err := w.extractor.ExtractText(ctx, payload.SourceRef)
	if err != nil {
		return "", err
	}
	return w.analyzer.Analyze(ctx, text, payload.Query)
}

func (w *Worker) markTerminal(ctx context.Context, id string, status records.Status, result string) error {
	err := w.store.MarkTerminal(ctx, id, status, result)
	if err == nil {
		w.logger.Printf("analysis job finished job=%s status=%s", id, status)
		return nil
	}
	if errors.Is(err, records.ErrNotFound) {
		return fmt.Errorf("no record for job %s: %v: %w", id, err, asynq.SkipRetry)
	}
	return fmt.Errorf("failed to persist terminal state for job %s: %w", id, err)
}

// cleanupSource は一時ドキュメントをベストエフォートで削除します。
// 失敗してもログに残すだけで、ジョブの結果には影響させません。
func (w *Worker) cleanupSource(ref string) {
	if ref == "" {
		return
	}
	if err := w.blobs.Delete(context.Background(), ref); err != nil {
		w.logger.Printf("failed to clean up source document ref=%s: %v", ref, err)
	}
}
