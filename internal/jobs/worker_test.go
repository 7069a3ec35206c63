package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/yourusername/findoc-analyzer/internal/records"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*records.Record
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*records.Record)}
}

func (s *memStore) Create(ctx context.Context, record *records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return records.ErrDuplicateID
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, records.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *memStore) MarkTerminal(ctx context.Context, id string, status records.Status, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("store unavailable")
	}
	record, ok := s.records[id]
	if !ok {
		return records.ErrNotFound
	}
	if record.Status != records.StatusPending {
		return nil
	}
	record.Status = status
	record.Result = &result
	return nil
}

func (s *memStore) List(ctx context.Context) ([]*records.Record, error) {
	return nil, nil
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(ctx context.Context, ref string) (string, error) {
	return s.text, s.err
}

type stubAnalyzer struct {
	reports map[string]string
	report  string
	err     error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, text, query string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.reports != nil {
		if r, ok := s.reports[query]; ok {
			return r, nil
		}
	}
	return s.report, nil
}

type stubRemover struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (s *stubRemover) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, name)
	return s.err
}

func newTestWorker(store records.Store, extractor TextExtractor, analyzer Analyzer, blobs BlobRemover) *Worker {
	return &Worker{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		blobs:     blobs,
		logger:    log.New(io.Discard, "", 0),
	}
}

func newAnalysisTask(t *testing.T, payload TaskPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(TaskTypeAnalysis, body)
}

func pendingRecord(t *testing.T, store records.Store, id string) {
	t.Helper()
	err := store.Create(context.Background(), &records.Record{
		ID:     id,
		Status: records.StatusPending,
	})
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
}

func TestHandleAnalysisTaskSuccess(t *testing.T) {
	store := newMemStore()
	remover := &stubRemover{}
	worker := newTestWorker(store, &stubExtractor{text: "revenue up"}, &stubAnalyzer{report: "the report"}, remover)
	pendingRecord(t, store, "job-1")

	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-1", SourceRef: "doc-1.pdf", Query: "summarize"})
	if err := worker.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	record, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if record.Status != records.StatusCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
	if record.Result == nil || *record.Result != "the report" {
		t.Fatalf("unexpected result: %v", record.Result)
	}
	if len(remover.deleted) != 1 || remover.deleted[0] != "doc-1.pdf" {
		t.Fatalf("source document not cleaned up: %v", remover.deleted)
	}
}

func TestHandleAnalysisTaskExtractionFailure(t *testing.T) {
	store := newMemStore()
	worker := newTestWorker(store, &stubExtractor{err: errors.New("file not found")}, &stubAnalyzer{}, &stubRemover{})
	pendingRecord(t, store, "job-2")

	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-2", SourceRef: "missing.pdf"})
	if err := worker.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), "job-2")
	if record.Status != records.StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if record.Result == nil || !strings.HasPrefix(*record.Result, "Error: ") {
		t.Fatalf("result should carry an Error: prefix, got %v", record.Result)
	}
}

func TestHandleAnalysisTaskAnalysisFailure(t *testing.T) {
	store := newMemStore()
	worker := newTestWorker(store, &stubExtractor{text: "some text"}, &stubAnalyzer{err: errors.New("llm unavailable")}, &stubRemover{})
	pendingRecord(t, store, "job-3")

	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-3", SourceRef: "doc.pdf"})
	if err := worker.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), "job-3")
	if record.Status != records.StatusFailed {
		t.Fatalf("status = %s, want failed", record.Status)
	}
	if record.Result == nil || !strings.Contains(*record.Result, "llm unavailable") {
		t.Fatalf("result should carry the failure message, got %v", record.Result)
	}
}

// クリーンアップの失敗はログに残すだけで、ジョブの結果に影響しない。
func TestHandleAnalysisTaskCleanupFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	remover := &stubRemover{err: errors.New("already removed")}
	worker := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "ok"}, remover)
	pendingRecord(t, store, "job-4")

	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-4", SourceRef: "doc.pdf"})
	if err := worker.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("handler returned error despite cleanup failure: %v", err)
	}

	record, _ := store.Get(context.Background(), "job-4")
	if record.Status != records.StatusCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
}

// あるジョブの失敗が、後続ジョブの完了を妨げてはならない。
func TestHandleAnalysisTaskFaultIsolation(t *testing.T) {
	store := newMemStore()
	pendingRecord(t, store, "job-a")
	pendingRecord(t, store, "job-b")

	failing := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{err: errors.New("boom")}, &stubRemover{})
	taskA := newAnalysisTask(t, TaskPayload{AnalysisID: "job-a", SourceRef: "a.pdf"})
	if err := failing.handleAnalysisTask(context.Background(), taskA); err != nil {
		t.Fatalf("handler returned error for job-a: %v", err)
	}

	succeeding := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "report-b"}, &stubRemover{})
	taskB := newAnalysisTask(t, TaskPayload{AnalysisID: "job-b", SourceRef: "b.pdf"})
	if err := succeeding.handleAnalysisTask(context.Background(), taskB); err != nil {
		t.Fatalf("handler returned error for job-b: %v", err)
	}

	recordA, _ := store.Get(context.Background(), "job-a")
	recordB, _ := store.Get(context.Background(), "job-b")
	if recordA.Status != records.StatusFailed {
		t.Fatalf("job-a status = %s, want failed", recordA.Status)
	}
	if recordB.Status != records.StatusCompleted || *recordB.Result != "report-b" {
		t.Fatalf("job-b should complete independently, got %s %v", recordB.Status, recordB.Result)
	}
}

// 再配送されたジョブは確定済みの結果を上書きしない。
func TestHandleAnalysisTaskRedeliveryKeepsFirstResult(t *testing.T) {
	store := newMemStore()
	pendingRecord(t, store, "job-5")
	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-5", SourceRef: "doc.pdf"})

	first := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "first run"}, &stubRemover{})
	if err := first.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}

	second := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "second run"}, &stubRemover{})
	if err := second.handleAnalysisTask(context.Background(), task); err != nil {
		t.Fatalf("second delivery returned error: %v", err)
	}

	record, _ := store.Get(context.Background(), "job-5")
	if record.Status != records.StatusCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
	if record.Result == nil || *record.Result != "first run" {
		t.Fatalf("redelivery overwrote the result: %v", record.Result)
	}
}

func TestHandleAnalysisTaskMissingRecordSkipsRetry(t *testing.T) {
	store := newMemStore()
	worker := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "ok"}, &stubRemover{})

	task := newAnalysisTask(t, TaskPayload{AnalysisID: "unknown", SourceRef: "doc.pdf"})
	err := worker.handleAnalysisTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected error for missing record")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("missing record should not be retried, got %v", err)
	}
}

func TestHandleAnalysisTaskStoreFailureIsRetriable(t *testing.T) {
	store := newMemStore()
	pendingRecord(t, store, "job-6")
	store.failSet = true

	worker := newTestWorker(store, &stubExtractor{text: "text"}, &stubAnalyzer{report: "ok"}, &stubRemover{})
	task := newAnalysisTask(t, TaskPayload{AnalysisID: "job-6", SourceRef: "doc.pdf"})

	err := worker.handleAnalysisTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected error when terminal write fails")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("terminal write failure must stay retriable, got %v", err)
	}
}

func TestHandleAnalysisTaskInvalidPayload(t *testing.T) {
	worker := newTestWorker(newMemStore(), &stubExtractor{}, &stubAnalyzer{}, &stubRemover{})

	err := worker.handleAnalysisTask(context.Background(), asynq.NewTask(TaskTypeAnalysis, []byte("not json")))
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("invalid payload should not be retried, got %v", err)
	}

	err = worker.handleAnalysisTask(context.Background(), newAnalysisTask(t, TaskPayload{SourceRef: "doc.pdf"}))
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("missing analysisId should not be retried, got %v", err)
	}
}

// 状態遷移が pending → terminal の一方向であることの回帰テスト。
func TestMemStoreContractMatchesRedisStore(t *testing.T) {
	store := newMemStore()
	pendingRecord(t, store, "job-7")

	if err := store.MarkTerminal(context.Background(), "job-7", records.StatusFailed, "Error: x"); err != nil {
		t.Fatalf("first terminal write failed: %v", err)
	}
	if err := store.MarkTerminal(context.Background(), "job-7", records.StatusCompleted, "late"); err != nil {
		t.Fatalf("second terminal write should be a no-op, got %v", err)
	}

	record, _ := store.Get(context.Background(), "job-7")
	if record.Status != records.StatusFailed {
		t.Fatalf("terminal status must not change, got %s", record.Status)
	}
}
