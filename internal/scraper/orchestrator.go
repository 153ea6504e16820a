package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

// Result is one mountain's scrape outcome. Exactly one of Status or Err
// is meaningful.
type Result struct {
	MountainID string
	Status     *types.ScrapedStatus
	Err        error
	Duration   time.Duration
	FinishedAt time.Time
}

// OK reports whether the scrape succeeded.
func (r Result) OK() bool { return r.Err == nil }

// ErrorKind returns the classified kind of a failed result.
func (r Result) ErrorKind() string { return types.KindOf(r.Err) }

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithTaskTimeout overrides the per-mountain scrape timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.taskTimeout = d }
}

// Orchestrator fans scrapes out over the catalog. Every task is isolated:
// a panic, timeout, or error in one mountain never aborts the others.
type Orchestrator struct {
	registry    *mountains.Registry
	fetch       *fetcher.Fetcher
	logger      *slog.Logger
	taskTimeout time.Duration
}

// NewOrchestrator wires the orchestrator to a catalog and shared fetcher.
func NewOrchestrator(registry *mountains.Registry, f *fetcher.Fetcher, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		fetch:       f,
		logger:      logger.With("component", "orchestrator"),
		taskTimeout: fetcher.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOne scrapes a single mountain by id.
func (o *Orchestrator) RunOne(ctx context.Context, id string) Result {
	cfg := o.registry.Get(id)
	if cfg == nil {
		return Result{
			MountainID: id,
			Err:        fmt.Errorf("%w: %q", types.ErrConfigMissing, id),
			FinishedAt: time.Now().UTC(),
		}
	}
	return o.scrapeOne(ctx, cfg)
}

// RunBatch scrapes every enabled mountain in batch n concurrently.
func (o *Orchestrator) RunBatch(ctx context.Context, n int) map[string]Result {
	return o.fanOut(ctx, o.registry.ByBatch(n))
}

// RunAll scrapes every enabled mountain concurrently.
func (o *Orchestrator) RunAll(ctx context.Context) map[string]Result {
	return o.fanOut(ctx, o.registry.Enabled())
}

func (o *Orchestrator) fanOut(ctx context.Context, cfgs []*mountains.MountainConfig) map[string]Result {
	results := make(map[string]Result, len(cfgs))
	if len(cfgs) == 0 {
		return results
	}

	start := time.Now()
	ch := make(chan Result, len(cfgs))
	var wg sync.WaitGroup
	for _, cfg := range cfgs {
		wg.Add(1)
		go func(cfg *mountains.MountainConfig) {
			defer wg.Done()
			ch <- o.scrapeOne(ctx, cfg)
		}(cfg)
	}
	wg.Wait()
	close(ch)

	for r := range ch {
		results[r.MountainID] = r
	}

	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}
	o.logger.Info("scrape pass complete",
		"total", len(cfgs),
		"successful", succeeded,
		"failed", len(cfgs)-succeeded,
		"duration", time.Since(start),
	)
	return results
}

// scrapeOne runs one task under its own timeout, converting panics and
// context errors into failed results.
func (o *Orchestrator) scrapeOne(ctx context.Context, cfg *mountains.MountainConfig) (res Result) {
	start := time.Now()
	res = Result{MountainID: cfg.ID}
	defer func() {
		if p := recover(); p != nil {
			res.Err = &types.ScrapeError{
				MountainID: cfg.ID,
				URL:        cfg.DataURL,
				Kind:       types.KindParse,
				Err:        fmt.Errorf("panic: %v", p),
			}
		}
		res.Duration = time.Since(start)
		res.FinishedAt = time.Now().UTC()
		if res.Err != nil {
			o.logger.Warn("scrape failed",
				"mountain", cfg.ID,
				"kind", types.KindOf(res.Err),
				"error", res.Err,
				"duration", res.Duration,
			)
		}
	}()

	s, err := New(cfg.Strategy, o.fetch, o.logger)
	if err != nil {
		res.Err = err
		return res
	}

	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	status, err := s.Scrape(taskCtx, cfg)
	if err != nil {
		res.Err = err
		return res
	}
	res.Status = status
	return res
}
