// Package scraper implements the multi-strategy scraping engine: three
// Scraper implementations behind one contract, plus the orchestrator that
// fans out over the mountain catalog with per-task failure isolation.
package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

// Scraper is the single contract every strategy implements.
type Scraper interface {
	// Scrape collects one mountain's operational status.
	Scrape(ctx context.Context, cfg *mountains.MountainConfig) (*types.ScrapedStatus, error)
}

// New maps a strategy tag onto its implementation. The headless strategy
// defers browser startup to its first Scrape, so constructing it is cheap.
func New(strategy string, f *fetcher.Fetcher, logger *slog.Logger) (Scraper, error) {
	switch strategy {
	case types.StrategyStaticHTML:
		return NewStatic(f, logger), nil
	case types.StrategyJSONAPI:
		return NewJSONAPI(f, logger), nil
	case types.StrategyHeadlessBrowser:
		return NewHeadless(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrStrategyUnsupported, strategy)
	}
}
