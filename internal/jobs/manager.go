package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// Manager はジョブのキュー投入（プロデューサー側）を担います。
type Manager struct {
	client *asynq.Client
	logger *log.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, logger *log.Logger) (*Manager, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		client: asynq.NewClient(opt),
		logger: logger,
	}, nil
}

// Enqueue はジョブディスクリプタをキューに投入します。
// ブローカーに受理された時点で返り、ワーカーの実行は待ちません。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) error {
	if payload == nil {
		return fmt.Errorf("payload is nil")
	}
	if payload.AnalysisID == "" {
		return fmt.Errorf("payload.AnalysisID is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeAnalysis, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(maxDeliveryRetry))
	if err != nil {
		return err
	}
	m.logger.Printf("enqueued analysis task id=%s job=%s", info.ID, payload.AnalysisID)
	return nil
}

// Close はブローカーへの接続を閉じます。
func (m *Manager) Close() error {
	return m.client.Close()
}
