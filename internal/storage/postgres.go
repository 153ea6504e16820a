package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powderline/powderline/internal/types"
)

// Postgres error codes the store handles specially.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

const schema = `
CREATE TABLE IF NOT EXISTS mountain_status (
	id           BIGSERIAL PRIMARY KEY,
	mountain_id  TEXT NOT NULL,
	is_open      BOOLEAN NOT NULL DEFAULT FALSE,
	percent_open INTEGER,
	lifts_open   INTEGER NOT NULL DEFAULT 0,
	lifts_total  INTEGER NOT NULL DEFAULT 0,
	runs_open    INTEGER NOT NULL DEFAULT 0,
	runs_total   INTEGER NOT NULL DEFAULT 0,
	acres_open   DOUBLE PRECISION,
	acres_total  DOUBLE PRECISION,
	message      TEXT,
	source_url   TEXT NOT NULL DEFAULT '',
	data_url     TEXT NOT NULL DEFAULT '',
	scraped_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (mountain_id, scraped_at)
);
CREATE INDEX IF NOT EXISTS idx_mountain_status_latest
	ON mountain_status (mountain_id, scraped_at DESC);

CREATE TABLE IF NOT EXISTS scraper_runs (
	run_id           TEXT PRIMARY KEY,
	triggered_by     TEXT NOT NULL DEFAULT '',
	total_mountains  INTEGER NOT NULL DEFAULT 0,
	successful_count INTEGER NOT NULL DEFAULT 0,
	failed_count     INTEGER NOT NULL DEFAULT 0,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	error_message    TEXT
);

CREATE TABLE IF NOT EXISTS scraper_failures (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL,
	mountain_id   TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	failed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const statusColumns = `mountain_id, is_open, percent_open, lifts_open, lifts_total,
	runs_open, runs_total, acres_open, acres_total, message, source_url, data_url, scraped_at`

// PostgresStore is the relational StatusStore backend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects a pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "postgres_store"),
	}, nil
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) StartRun(ctx context.Context, total int, trigger string) (string, error) {
	runID := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scraper_runs (run_id, triggered_by, total_mountains, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, trigger, total, types.RunStatusRunning, time.Now().UTC())
	if err != nil {
		return "", &types.StorageError{Backend: "postgres", Op: "start_run", Err: err}
	}
	return runID, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, successful, failed int, duration time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scraper_runs
		 SET status = $2, successful_count = $3, failed_count = $4, duration_ms = $5, completed_at = $6
		 WHERE run_id = $1`,
		runID, types.RunStatusCompleted, successful, failed, duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return &types.StorageError{Backend: "postgres", Op: "complete_run", Err: err}
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scraper_runs
		 SET status = $2, error_message = $3, completed_at = $4
		 WHERE run_id = $1`,
		runID, types.RunStatusFailed, message, time.Now().UTC())
	if err != nil {
		return &types.StorageError{Backend: "postgres", Op: "fail_run", Err: err}
	}
	return nil
}

// Save inserts one status. A (mountain_id, scraped_at) duplicate is logged
// and treated as success.
func (s *PostgresStore) Save(ctx context.Context, status *types.ScrapedStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mountain_status (`+statusColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		status.MountainID, status.IsOpen, status.PercentOpen,
		status.LiftsOpen, status.LiftsTotal, status.RunsOpen, status.RunsTotal,
		status.AcresOpen, status.AcresTotal, nullable(status.Message),
		status.SourceURL, status.DataURL, status.ScrapedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			s.logger.Debug("duplicate status skipped",
				"mountain", status.MountainID, "scraped_at", status.ScrapedAt)
			return nil
		}
		return &types.StorageError{Backend: "postgres", Op: "save", Err: err}
	}
	return nil
}

// SaveMany inserts records in parallel; individual failures are counted,
// never propagated.
func (s *PostgresStore) SaveMany(ctx context.Context, statuses []*types.ScrapedStatus) (saved, failed int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, status := range statuses {
		wg.Add(1)
		go func(status *types.ScrapedStatus) {
			defer wg.Done()
			err := s.Save(ctx, status)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				s.logger.Error("save failed", "mountain", status.MountainID, "error", err)
				return
			}
			saved++
		}(status)
	}
	wg.Wait()
	return saved, failed
}

// SaveFailure logs one scrape failure. Missing table degrades to a no-op.
func (s *PostgresStore) SaveFailure(ctx context.Context, runID, mountainID, message, url string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scraper_failures (run_id, mountain_id, error_message, source_url, failed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, mountainID, message, url, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
			return nil
		}
		return &types.StorageError{Backend: "postgres", Op: "save_failure", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, mountainID string) (*types.ScrapedStatus, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statusColumns+` FROM mountain_status
		 WHERE mountain_id = $1
		 ORDER BY scraped_at DESC LIMIT 1`, mountainID)
	status, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &types.StorageError{Backend: "postgres", Op: "get_latest", Err: err}
	}
	return status, nil
}

// GetAllLatest returns the newest record per mountain via DISTINCT ON.
func (s *PostgresStore) GetAllLatest(ctx context.Context) ([]types.ScrapedStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (mountain_id) `+statusColumns+`
		 FROM mountain_status
		 ORDER BY mountain_id, scraped_at DESC`)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Op: "get_all_latest", Err: err}
	}
	defer rows.Close()
	return collectStatuses(rows)
}

func (s *PostgresStore) GetHistory(ctx context.Context, mountainID string, days int) ([]types.ScrapedStatus, error) {
	if days <= 0 {
		days = StatsWindowDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.pool.Query(ctx,
		`SELECT `+statusColumns+` FROM mountain_status
		 WHERE mountain_id = $1 AND scraped_at >= $2
		 ORDER BY scraped_at DESC`, mountainID, cutoff)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Op: "get_history", Err: err}
	}
	defer rows.Close()
	return collectStatuses(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT mountain_id), COUNT(*) FROM mountain_status`).
		Scan(&stats.TotalMountains, &stats.TotalEntries)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Op: "stats", Err: err}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -StatsWindowDays)
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(successful_count), 0),
		        COALESCE(AVG(failed_count), 0),
		        COALESCE(AVG(duration_ms), 0)
		 FROM scraper_runs
		 WHERE started_at >= $1`, cutoff).
		Scan(&stats.RecentRuns.Count, &stats.RecentRuns.AvgSuccess,
			&stats.RecentRuns.AvgFail, &stats.RecentRuns.AvgDurationMS)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Op: "stats", Err: err}
	}
	return stats, nil
}

// Cleanup deletes statuses past retention and returns the deleted count.
func (s *PostgresStore) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -RetentionDays)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mountain_status WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return 0, &types.StorageError{Backend: "postgres", Op: "cleanup", Err: err}
	}
	deleted := int(tag.RowsAffected())
	s.logger.Info("retention cleanup", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func scanStatus(row pgx.Row) (*types.ScrapedStatus, error) {
	var (
		status  types.ScrapedStatus
		message *string
	)
	err := row.Scan(&status.MountainID, &status.IsOpen, &status.PercentOpen,
		&status.LiftsOpen, &status.LiftsTotal, &status.RunsOpen, &status.RunsTotal,
		&status.AcresOpen, &status.AcresTotal, &message,
		&status.SourceURL, &status.DataURL, &status.ScrapedAt)
	if err != nil {
		return nil, err
	}
	if message != nil {
		status.Message = *message
	}
	return &status, nil
}

func collectStatuses(rows pgx.Rows) ([]types.ScrapedStatus, error) {
	result := []types.ScrapedStatus{}
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		result = append(result, *status)
	}
	return result, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
