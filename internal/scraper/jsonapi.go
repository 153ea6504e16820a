package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

// JSONAPI scrapes resorts that expose a conditions endpoint. The per-config
// transform maps provider JSON paths onto semantic fields; coercion rules
// are fixed per field (counts to int, status text or bool to is_open).
type JSONAPI struct {
	fetch  *fetcher.Fetcher
	logger *slog.Logger
}

// NewJSONAPI creates the JSON-API strategy.
func NewJSONAPI(f *fetcher.Fetcher, logger *slog.Logger) *JSONAPI {
	return &JSONAPI{
		fetch:  f,
		logger: logger.With("component", "jsonapi_scraper"),
	}
}

// Scrape fetches the endpoint and applies the declarative transform.
// Missing paths fall back to safe defaults: zero counts, closed, no percent.
func (j *JSONAPI) Scrape(ctx context.Context, cfg *mountains.MountainConfig) (*types.ScrapedStatus, error) {
	api := cfg.API
	resp, err := j.fetch.Fetch(ctx, fetcher.Request{
		URL:     api.Endpoint,
		Method:  api.Method,
		Headers: api.Headers,
	})
	if err != nil {
		return nil, tagMountain(err, cfg.ID)
	}

	if !gjson.ValidBytes(resp.Body) {
		return nil, &types.ScrapeError{
			MountainID: cfg.ID,
			URL:        api.Endpoint,
			Kind:       types.KindUpstream,
			Err:        fmt.Errorf("endpoint returned non-JSON body (%d bytes)", len(resp.Body)),
		}
	}

	status := &types.ScrapedStatus{
		MountainID: cfg.ID,
		SourceURL:  cfg.URL,
		DataURL:    api.Endpoint,
		ScrapedAt:  time.Now().UTC(),
	}

	for field, path := range api.Transform {
		r := gjson.GetBytes(resp.Body, path)
		if !r.Exists() {
			continue
		}
		applyField(status, field, r)
	}

	status.Normalize()

	j.logger.Debug("jsonapi scrape complete",
		"mountain", cfg.ID,
		"lifts", status.LiftsOpen,
		"lifts_total", status.LiftsTotal,
		"open", status.IsOpen,
	)
	return status, nil
}

// applyField coerces one selected JSON value onto its semantic field.
// Count fields accept plain numbers or "a/b" ratio strings.
func applyField(status *types.ScrapedStatus, field string, r gjson.Result) {
	switch field {
	case mountains.FieldLiftsOpen:
		if o, t, ok := ratioResult(r); ok {
			status.LiftsOpen, status.LiftsTotal = o, t
		} else {
			status.LiftsOpen = int(r.Int())
		}
	case mountains.FieldLiftsTotal:
		status.LiftsTotal = int(r.Int())
	case mountains.FieldRunsOpen:
		if o, t, ok := ratioResult(r); ok {
			status.RunsOpen, status.RunsTotal = o, t
		} else {
			status.RunsOpen = int(r.Int())
		}
	case mountains.FieldRunsTotal:
		status.RunsTotal = int(r.Int())
	case mountains.FieldPercentOpen:
		p := int(r.Int())
		status.PercentOpen = &p
	case mountains.FieldAcresOpen:
		f := r.Float()
		status.AcresOpen = &f
	case mountains.FieldAcresTotal:
		f := r.Float()
		status.AcresTotal = &f
	case mountains.FieldStatus:
		if r.Type == gjson.String {
			status.IsOpen = IsOpenText(r.String())
		} else {
			status.IsOpen = r.Bool()
		}
	case mountains.FieldMessage:
		status.Message = r.String()
	}
}

// ratioResult handles providers that report counts as "8/10" strings.
func ratioResult(r gjson.Result) (open, total int, ok bool) {
	if r.Type != gjson.String {
		return 0, 0, false
	}
	return ParseRatio(r.String())
}
