package main

import (
	"context"
	"log"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/findoc-analyzer/internal/config"
	"github.com/yourusername/findoc-analyzer/internal/jobs"
	"github.com/yourusername/findoc-analyzer/internal/records"
)

// analysisJobScheduler は jobs.Manager を analysis.Scheduler に適合させます。
type analysisJobScheduler struct {
	manager *jobs.Manager
}

func (s *analysisJobScheduler) Schedule(ctx context.Context, analysisID, sourceRef, query string) error {
	return s.manager.Enqueue(ctx, &jobs.TaskPayload{
		AnalysisID: analysisID,
		SourceRef:  sourceRef,
		Query:      query,
	})
}

func setupJobs(cfg *config.Config) (records.Store, *analysisJobScheduler, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, err
	}
	store := records.NewRedisStore(redis.NewClient(opt))

	manager, err := jobs.NewManager(cfg.QueueRedisURL, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return store, &analysisJobScheduler{manager: manager}, nil
}
