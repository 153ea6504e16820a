// Package storage persists scraped statuses and run audit records.
// Two interchangeable backends implement StatusStore: a relational one
// (Postgres via pgx) and a document one (MongoDB) whose read path keys by
// mountain id and scans descending by scrape time.
package storage

import (
	"context"
	"time"

	"github.com/powderline/powderline/internal/types"
)

// RetentionDays is how long historical statuses are kept.
const RetentionDays = 90

// StatsWindowDays is the lookback window for run aggregates in Stats.
const StatsWindowDays = 7

// RunAggregates summarizes recent runs.
type RunAggregates struct {
	Count         int     `json:"count"`
	AvgSuccess    float64 `json:"avg_success"`
	AvgFail       float64 `json:"avg_fail"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// StoreStats is the shape returned by Stats.
type StoreStats struct {
	TotalMountains int           `json:"total_mountains"`
	TotalEntries   int           `json:"total_entries"`
	RecentRuns     RunAggregates `json:"recent_runs"`
}

// StatusStore is the backend-agnostic persistence contract.
//
// Save is idempotent on (mountain_id, scraped_at): a duplicate-key
// conflict is swallowed and logged, never surfaced. SaveFailure is
// best-effort and silently degrades when the failure table is missing.
type StatusStore interface {
	StartRun(ctx context.Context, total int, trigger string) (string, error)
	CompleteRun(ctx context.Context, runID string, successful, failed int, duration time.Duration) error
	FailRun(ctx context.Context, runID, message string) error

	Save(ctx context.Context, status *types.ScrapedStatus) error
	SaveMany(ctx context.Context, statuses []*types.ScrapedStatus) (saved, failed int)
	SaveFailure(ctx context.Context, runID, mountainID, message, url string) error

	GetLatest(ctx context.Context, mountainID string) (*types.ScrapedStatus, error)
	GetAllLatest(ctx context.Context) ([]types.ScrapedStatus, error)
	GetHistory(ctx context.Context, mountainID string, days int) ([]types.ScrapedStatus, error)

	Stats(ctx context.Context) (*StoreStats, error)
	Cleanup(ctx context.Context) (int, error)

	Close(ctx context.Context) error
}
