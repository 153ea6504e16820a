// Package service is the control surface over the scraping engine: it
// owns the run lifecycle (audit record, orchestration, persistence) and
// exposes the read operations downstream adapters mount.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/scraper"
	"github.com/powderline/powderline/internal/storage"
	"github.com/powderline/powderline/internal/types"
)

// Service wires the registry, orchestrator, and store together.
type Service struct {
	registry *mountains.Registry
	orch     *scraper.Orchestrator
	store    storage.StatusStore
	logger   *slog.Logger
}

// New creates a Service.
func New(registry *mountains.Registry, orch *scraper.Orchestrator, store storage.StatusStore, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		orch:     orch,
		store:    store,
		logger:   logger.With("component", "service"),
	}
}

// RunAll scrapes every enabled mountain and persists the outcome.
func (s *Service) RunAll(ctx context.Context, trigger string) (*types.RunSummary, error) {
	return s.run(ctx, trigger, len(s.registry.Enabled()), func(ctx context.Context) map[string]scraper.Result {
		return s.orch.RunAll(ctx)
	})
}

// RunBatch scrapes one batch of enabled mountains.
func (s *Service) RunBatch(ctx context.Context, batch int, trigger string) (*types.RunSummary, error) {
	return s.run(ctx, trigger, len(s.registry.ByBatch(batch)), func(ctx context.Context) map[string]scraper.Result {
		return s.orch.RunBatch(ctx, batch)
	})
}

// RunOne scrapes a single mountain.
func (s *Service) RunOne(ctx context.Context, id, trigger string) (*types.RunSummary, error) {
	return s.run(ctx, trigger, 1, func(ctx context.Context) map[string]scraper.Result {
		r := s.orch.RunOne(ctx, id)
		return map[string]scraper.Result{r.MountainID: r}
	})
}

// run owns the run lifecycle: the audit record is created before any
// scrape, per-mountain outcomes are persisted with failure logging, and
// the record completes even when every scrape failed. FailRun is reserved
// for orchestration-wide faults.
func (s *Service) run(ctx context.Context, trigger string, total int, pass func(ctx context.Context) map[string]scraper.Result) (summary *types.RunSummary, err error) {
	runID, err := s.store.StartRun(ctx, total, trigger)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("orchestration panic: %v", p)
			if failErr := s.store.FailRun(ctx, runID, msg); failErr != nil {
				s.logger.Error("fail_run after panic failed", "run_id", runID, "error", failErr)
			}
			summary, err = nil, fmt.Errorf("run %s: %s", runID, msg)
		}
	}()

	results := pass(ctx)
	duration := time.Since(start)

	summary = s.persist(ctx, runID, trigger, results, duration)
	return summary, nil
}

func (s *Service) persist(ctx context.Context, runID, trigger string, results map[string]scraper.Result, duration time.Duration) *types.RunSummary {
	var statuses []*types.ScrapedStatus
	successful, failed := 0, 0
	outcomes := make([]types.MountainOutcome, 0, len(results))

	for _, r := range results {
		outcome := types.MountainOutcome{
			MountainID: r.MountainID,
			OK:         r.OK(),
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.OK() {
			successful++
			statuses = append(statuses, r.Status)
		} else {
			failed++
			outcome.Error = types.KindOf(r.Err)
			url := ""
			if cfg := s.registry.Get(r.MountainID); cfg != nil {
				url = cfg.DataURL
			}
			if err := s.store.SaveFailure(ctx, runID, r.MountainID, r.Err.Error(), url); err != nil {
				s.logger.Warn("failure log write failed", "run_id", runID, "mountain", r.MountainID, "error", err)
			}
		}
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].MountainID < outcomes[j].MountainID })

	saved, saveFailed := s.store.SaveMany(ctx, statuses)
	if saveFailed > 0 {
		s.logger.Warn("some statuses were not persisted", "run_id", runID, "saved", saved, "failed", saveFailed)
	}

	if err := s.store.CompleteRun(ctx, runID, successful, failed, duration); err != nil {
		s.logger.Error("complete_run failed", "run_id", runID, "error", err)
	}

	s.logger.Info("run complete",
		"run_id", runID,
		"trigger", trigger,
		"total", len(results),
		"successful", successful,
		"failed", failed,
		"duration", duration,
	)

	return &types.RunSummary{
		RunID:       runID,
		TriggeredBy: trigger,
		Total:       len(results),
		Successful:  successful,
		Failed:      failed,
		DurationMS:  duration.Milliseconds(),
		PerMountain: outcomes,
	}
}

// GetLatest returns the newest persisted status for a mountain.
func (s *Service) GetLatest(ctx context.Context, id string) (*types.ScrapedStatus, error) {
	if s.registry.Get(id) == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrConfigMissing, id)
	}
	return s.store.GetLatest(ctx, id)
}

// GetAllLatest returns the newest status per mountain.
func (s *Service) GetAllLatest(ctx context.Context) ([]types.ScrapedStatus, error) {
	return s.store.GetAllLatest(ctx)
}

// GetHistory returns a mountain's statuses over the past days, newest first.
func (s *Service) GetHistory(ctx context.Context, id string, days int) ([]types.ScrapedStatus, error) {
	if s.registry.Get(id) == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrConfigMissing, id)
	}
	return s.store.GetHistory(ctx, id, days)
}

// Stats returns store totals and the 7-day run aggregates.
func (s *Service) Stats(ctx context.Context) (*storage.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Cleanup deletes statuses past retention, returning the deleted count.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.store.Cleanup(ctx)
}
