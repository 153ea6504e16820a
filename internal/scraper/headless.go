package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

const (
	// navTimeout caps navigation plus rendering for one scrape.
	navTimeout = 30 * time.Second
	// defaultGrace waits out late DOM mutations after the page settles.
	defaultGrace = 3 * time.Second
)

// The Chromium instance is a process-wide singleton launched on first use.
// Pages are never shared across scrapes.
var (
	browserOnce sync.Once
	browser     *rod.Browser
	browserErr  error
)

func sharedBrowser() (*rod.Browser, error) {
	browserOnce.Do(func() {
		u, err := launcher.New().
			Headless(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("no-sandbox").
			Launch()
		if err != nil {
			browserErr = fmt.Errorf("%w: %v", types.ErrHeadlessInit, err)
			return
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			browserErr = fmt.Errorf("%w: %v", types.ErrHeadlessInit, err)
			return
		}
		browser = b
	})
	return browser, browserErr
}

// Headless renders JavaScript-heavy conditions pages in Chromium and then
// applies the same selector semantics as the static strategy.
type Headless struct {
	logger *slog.Logger
}

// NewHeadless creates the headless strategy. Browser startup is deferred
// to the first Scrape so processes whose catalogs never need rendering
// never pay for it.
func NewHeadless(logger *slog.Logger) *Headless {
	return &Headless{
		logger: logger.With("component", "headless_scraper"),
	}
}

// Scrape opens a fresh page, navigates with a 30 s cap, waits for the DOM
// to settle plus a short grace period, and extracts from the rendered HTML.
func (h *Headless) Scrape(ctx context.Context, cfg *mountains.MountainConfig) (*types.ScrapedStatus, error) {
	b, err := sharedBrowser()
	if err != nil {
		return nil, &types.ScrapeError{
			MountainID: cfg.ID,
			URL:        cfg.DataURL,
			Kind:       types.KindHeadless,
			Err:        err,
		}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, h.wrap(cfg, err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(navTimeout)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: fetcher.DefaultUserAgent,
	}); err != nil {
		h.logger.Warn("failed to set user agent", "mountain", cfg.ID, "error", err)
	}

	if err := page.Navigate(cfg.DataURL); err != nil {
		return nil, h.wrap(cfg, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, h.wrap(cfg, err)
	}
	// Best effort: some sites mutate the DOM forever and never stabilize.
	if err := page.WaitStable(300 * time.Millisecond); err != nil {
		h.logger.Warn("page stability timeout, continuing", "mountain", cfg.ID, "error", err)
	}

	grace := cfg.Wait.Delay
	if grace <= 0 {
		grace = defaultGrace
	}
	select {
	case <-time.After(grace):
	case <-ctx.Done():
		return nil, h.wrap(cfg, ctx.Err())
	}

	html, err := page.HTML()
	if err != nil {
		return nil, h.wrap(cfg, err)
	}

	status, err := extractStatus(cfg, []byte(html), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	h.logger.Debug("headless scrape complete",
		"mountain", cfg.ID,
		"lifts", status.LiftsOpen,
		"runs", status.RunsOpen,
		"open", status.IsOpen,
	)
	return status, nil
}

func (h *Headless) wrap(cfg *mountains.MountainConfig, err error) error {
	kind := types.KindNetwork
	switch types.KindOf(err) {
	case types.KindTimeout:
		kind = types.KindTimeout
	case types.KindCancelled:
		kind = types.KindCancelled
	}
	return &types.ScrapeError{
		MountainID: cfg.ID,
		URL:        cfg.DataURL,
		Kind:       kind,
		Err:        err,
	}
}
