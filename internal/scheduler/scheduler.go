// Package scheduler drives recurring scrape runs from cron specs.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/powderline/powderline/internal/config"
	"github.com/powderline/powderline/internal/service"
)

// Scheduler owns the cron runner. Each configured job triggers one batch,
// or the whole fleet when the batch is negative.
type Scheduler struct {
	cron   *cron.Cron
	svc    *service.Service
	logger *slog.Logger
}

// New registers every configured job. Invalid specs fail registration
// rather than being skipped silently.
func New(cfg config.SchedulerConfig, svc *service.Service, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		logger: logger.With("component", "scheduler"),
	}

	for _, job := range cfg.Jobs {
		job := job
		_, err := s.cron.AddFunc(job.Spec, func() {
			s.fire(job)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("scheduled scrape", "spec", job.Spec, "batch", job.Batch)
	}
	return s, nil
}

func (s *Scheduler) fire(job config.ScheduledRun) {
	ctx := context.Background()

	var err error
	if job.Batch < 0 {
		_, err = s.svc.RunAll(ctx, "schedule")
	} else {
		_, err = s.svc.RunBatch(ctx, job.Batch, "schedule")
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "spec", job.Spec, "batch", job.Batch, "error", err)
	}
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
