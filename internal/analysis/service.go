// Package analysis はドキュメント分析ジョブの受付と状態照会を提供します。
package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/findoc-analyzer/internal/records"
	"github.com/yourusername/findoc-analyzer/internal/storage"
)

// Scheduler はジョブディスクリプタを非同期キューに投入します。
// 投入が受理された時点で返り、ワーカーの実行を待ちません。
type Scheduler interface {
	Schedule(ctx context.Context, analysisID, sourceRef, query string) error
}

// Service は受付（Submit）と照会（Status/ListAll）を担います。
// レコードストアを唯一の正とし、リクエストをまたいで状態を保持しません。
type Service struct {
	store     records.Store
	files     storage.Storage
	scheduler Scheduler
	logger    *log.Logger
}

// NewService は Service を作成します。
func NewService(store records.Store, files storage.Storage, scheduler Scheduler, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     store,
		files:     files,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Submit はドキュメントを保存し、pendingレコードを作成してジョブを
// キューに投入します。ワーカーの実行を待たずに返ります。
// レコード作成またはキュー投入に失敗した場合、保存したドキュメントは
// 削除されます（孤児化させない）。
func (s *Service) Submit(ctx context.Context, data []byte, filename, query string) (*records.Record, error) {
	if len(data) == 0 {
		return nil, newError("INVALID_INPUT", "ドキュメントの内容が空です。", nil)
	}

	analysisID := uuid.NewString()
	sourceRef := fmt.Sprintf("financial_document_%s.pdf", analysisID)

	if err := s.files.Save(ctx, sourceRef, data); err != nil {
		return nil, newError("STORAGE_ERROR", "ドキュメントの保存に失敗しました。", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultQuery
	}

	record := &records.Record{
		ID:        analysisID,
		Filename:  filename,
		Query:     query,
		Status:    records.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		s.discardDocument(sourceRef)
		return nil, newError("STORAGE_ERROR", "分析レコードの作成に失敗しました。", err)
	}

	if err := s.scheduler.Schedule(ctx, analysisID, sourceRef, query); err != nil {
		s.discardDocument(sourceRef)
		return nil, newError("QUEUE_UNAVAILABLE", "分析ジョブの投入に失敗しました。", err)
	}

	s.logger.Printf("analysis queued id=%s file=%q", analysisID, filename)
	return record, nil
}

// Status はジョブIDに対応するレコードを返します。
func (s *Service) Status(ctx context.Context, id string) (*records.Record, error) {
	return s.store.Get(ctx, id)
}

// ListAll は全レコードを新しい順で返します。
func (s *Service) ListAll(ctx context.Context) ([]*records.Record, error) {
	return s.store.List(ctx)
}

// discardDocument は保存済みドキュメントをベストエフォートで削除します。
func (s *Service) discardDocument(sourceRef string) {
	if err := s.files.Delete(context.Background(), sourceRef); err != nil {
		s.logger.Printf("failed to discard stored document ref=%s: %v", sourceRef, err)
	}
}
