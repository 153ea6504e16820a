package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

// Static scrapes resorts whose conditions page is server-rendered HTML.
type Static struct {
	fetch  *fetcher.Fetcher
	logger *slog.Logger
}

// NewStatic creates the static-HTML strategy.
func NewStatic(f *fetcher.Fetcher, logger *slog.Logger) *Static {
	return &Static{
		fetch:  f,
		logger: logger.With("component", "static_scraper"),
	}
}

// Scrape fetches the data URL and applies the config's selector set.
func (s *Static) Scrape(ctx context.Context, cfg *mountains.MountainConfig) (*types.ScrapedStatus, error) {
	resp, err := s.fetch.Fetch(ctx, fetcher.Request{URL: cfg.DataURL})
	if err != nil {
		return nil, tagMountain(err, cfg.ID)
	}

	status, err := extractStatus(cfg, resp.Body, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("static scrape complete",
		"mountain", cfg.ID,
		"lifts", status.LiftsOpen,
		"lifts_total", status.LiftsTotal,
		"runs", status.RunsOpen,
		"runs_total", status.RunsTotal,
		"open", status.IsOpen,
	)
	return status, nil
}

// tagMountain stamps the mountain id onto a scrape error for run reporting.
func tagMountain(err error, id string) error {
	if se, ok := err.(*types.ScrapeError); ok && se.MountainID == "" {
		se.MountainID = id
	}
	return err
}
