package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/types"
)

func jsonCfg(endpoint string, transform map[string]string) *mountains.MountainConfig {
	return &mountains.MountainConfig{
		ID:       "stevens",
		URL:      "https://example.com",
		Strategy: types.StrategyJSONAPI,
		API: &mountains.APISpec{
			Endpoint:  endpoint,
			Transform: transform,
		},
	}
}

func TestJSONAPIScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"lifts": {"open": 9, "total": 10},
			"trails": {"open": 48, "total": 52},
			"terrain": {"percentOpen": 92},
			"resort": {"status": "Open", "note": "Bluebird day"}
		}`))
	}))
	defer srv.Close()

	cfg := jsonCfg(srv.URL, map[string]string{
		mountains.FieldLiftsOpen:   "lifts.open",
		mountains.FieldLiftsTotal:  "lifts.total",
		mountains.FieldRunsOpen:    "trails.open",
		mountains.FieldRunsTotal:   "trails.total",
		mountains.FieldPercentOpen: "terrain.percentOpen",
		mountains.FieldStatus:      "resort.status",
		mountains.FieldMessage:     "resort.note",
	})

	j := NewJSONAPI(testFetcher(), testLogger)
	status, err := j.Scrape(context.Background(), cfg)
	if err != nil {
		t.Fatalf("scrape error: %v", err)
	}
	if status.LiftsOpen != 9 || status.LiftsTotal != 10 {
		t.Errorf("lifts = %d/%d, want 9/10", status.LiftsOpen, status.LiftsTotal)
	}
	if status.RunsOpen != 48 || status.RunsTotal != 52 {
		t.Errorf("runs = %d/%d, want 48/52", status.RunsOpen, status.RunsTotal)
	}
	if status.PercentOpen == nil || *status.PercentOpen != 92 {
		t.Errorf("percent = %v, want 92", status.PercentOpen)
	}
	if !status.IsOpen {
		t.Error("expected open")
	}
	if status.Message != "Bluebird day" {
		t.Errorf("message = %q", status.Message)
	}
	if status.DataURL != srv.URL {
		t.Errorf("data url = %q, want endpoint", status.DataURL)
	}
}

// Providers that report counts as "a/b" strings and status as a bool.
func TestJSONAPICoercions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"liftRatio": "7/11", "isOperating": true}`))
	}))
	defer srv.Close()

	cfg := jsonCfg(srv.URL, map[string]string{
		mountains.FieldLiftsOpen: "liftRatio",
		mountains.FieldStatus:    "isOperating",
	})

	j := NewJSONAPI(testFetcher(), testLogger)
	status, err := j.Scrape(context.Background(), cfg)
	if err != nil {
		t.Fatalf("scrape error: %v", err)
	}
	if status.LiftsOpen != 7 || status.LiftsTotal != 11 {
		t.Errorf("lifts = %d/%d, want 7/11", status.LiftsOpen, status.LiftsTotal)
	}
	if !status.IsOpen {
		t.Error("expected open from bool status")
	}
}

// Missing transform paths leave safe defaults rather than failing.
func TestJSONAPIMissingPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unrelated": 1}`))
	}))
	defer srv.Close()

	cfg := jsonCfg(srv.URL, map[string]string{
		mountains.FieldLiftsOpen: "lifts.open",
		mountains.FieldStatus:    "resort.status",
	})

	j := NewJSONAPI(testFetcher(), testLogger)
	status, err := j.Scrape(context.Background(), cfg)
	if err != nil {
		t.Fatalf("scrape error: %v", err)
	}
	if status.LiftsOpen != 0 || status.IsOpen || status.PercentOpen != nil {
		t.Errorf("expected zero-value status, got %+v", status)
	}
}

func TestJSONAPINonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance page</html>"))
	}))
	defer srv.Close()

	cfg := jsonCfg(srv.URL, map[string]string{mountains.FieldStatus: "status"})

	j := NewJSONAPI(testFetcher(), testLogger)
	_, err := j.Scrape(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
	var se *types.ScrapeError
	if !errors.As(err, &se) || se.Kind != types.KindUpstream {
		t.Errorf("expected upstream_error, got %v", err)
	}
}
