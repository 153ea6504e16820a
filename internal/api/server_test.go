package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/powderline/powderline/internal/aggregator"
	"github.com/powderline/powderline/internal/config"
	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/scraper"
	"github.com/powderline/powderline/internal/service"
	"github.com/powderline/powderline/internal/storage"
	"github.com/powderline/powderline/internal/types"
	"github.com/powderline/powderline/internal/weather"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeStore is the minimal StatusStore the handler tests need.
type fakeStore struct {
	mu       sync.Mutex
	statuses []*types.ScrapedStatus
}

func (f *fakeStore) StartRun(ctx context.Context, total int, trigger string) (string, error) {
	return "run-1", nil
}
func (f *fakeStore) CompleteRun(ctx context.Context, runID string, s, fd int, d time.Duration) error {
	return nil
}
func (f *fakeStore) FailRun(ctx context.Context, runID, message string) error { return nil }
func (f *fakeStore) Save(ctx context.Context, status *types.ScrapedStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}
func (f *fakeStore) SaveMany(ctx context.Context, statuses []*types.ScrapedStatus) (int, int) {
	for _, s := range statuses {
		f.Save(ctx, s)
	}
	return len(statuses), 0
}
func (f *fakeStore) SaveFailure(ctx context.Context, runID, mountainID, message, url string) error {
	return nil
}
func (f *fakeStore) GetLatest(ctx context.Context, mountainID string) (*types.ScrapedStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.statuses) - 1; i >= 0; i-- {
		if f.statuses[i].MountainID == mountainID {
			return f.statuses[i], nil
		}
	}
	return nil, nil
}
func (f *fakeStore) GetAllLatest(ctx context.Context) ([]types.ScrapedStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.ScrapedStatus, 0, len(f.statuses))
	for _, s := range f.statuses {
		out = append(out, *s)
	}
	return out, nil
}
func (f *fakeStore) GetHistory(ctx context.Context, mountainID string, days int) ([]types.ScrapedStatus, error) {
	return nil, nil
}
func (f *fakeStore) Stats(ctx context.Context) (*storage.StoreStats, error) {
	return &storage.StoreStats{TotalEntries: len(f.statuses)}, nil
}
func (f *fakeStore) Cleanup(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeStore) Close(ctx context.Context) error          { return nil }

func newTestServer(t *testing.T, store storage.StatusStore, conditionsURL string) *httptest.Server {
	t.Helper()
	registry, err := mountains.FromConfigs([]mountains.MountainConfig{{
		ID:       "crystal",
		Name:     "Crystal Mountain",
		DataURL:  conditionsURL,
		Strategy: types.StrategyStaticHTML,
		Enabled:  true,
		Selectors: map[string]mountains.Selector{
			mountains.FieldLiftsOpen: {Query: ".lifts", Type: "css"},
			mountains.FieldStatus:    {Query: ".status", Type: "css"},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}

	f := fetcher.New(fetcher.Options{}, testLogger)
	orch := scraper.NewOrchestrator(registry, f, testLogger, scraper.WithTaskTimeout(2*time.Second))
	svc := service.New(registry, orch, store, testLogger)
	agg := aggregator.New(
		registry, store,
		weather.NewNOAAClient(f, conditionsURL, testLogger),
		weather.NewSnotelClient(f, conditionsURL, testLogger),
		weather.NewOpenMeteoClient(f, conditionsURL, testLogger),
		time.Minute, testLogger,
	)

	srv := NewServer(config.ServerConfig{Addr: ":0"}, svc, agg, registry, testLogger)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func conditionsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><span class="lifts">4 / 6</span><div class="status">Open</div></body></html>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, conditionsServer(t).URL)

	var body map[string]string
	if code := getJSON(t, ts.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestRunEndpoint(t *testing.T) {
	store := &fakeStore{}
	ts := newTestServer(t, store, conditionsServer(t).URL)

	var body runResponse
	if code := getJSON(t, ts.URL+"/api/scraper/run", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !body.Success || body.Results == nil {
		t.Fatalf("body = %+v", body)
	}
	if body.Results.Total != 1 || body.Results.Successful != 1 {
		t.Errorf("results = %+v", body.Results)
	}
	if body.RunID != "run-1" {
		t.Errorf("run id = %q", body.RunID)
	}
	if len(store.statuses) != 1 {
		t.Errorf("persisted %d statuses", len(store.statuses))
	}
}

// Per-mountain scrape failures are payload content, not an HTTP error.
func TestRunEndpointFailuresStill200(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	ts := newTestServer(t, &fakeStore{}, broken.URL)

	var body runResponse
	if code := getJSON(t, ts.URL+"/api/scraper/run", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite scrape failures", code)
	}
	if body.Results.Failed != 1 {
		t.Errorf("results = %+v", body.Results)
	}
	if len(body.Data) != 1 || body.Data[0].Error == "" {
		t.Errorf("per-mountain data = %+v", body.Data)
	}
}

func TestRunEndpointUnknownMountain(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, conditionsServer(t).URL)

	if code := getJSON(t, ts.URL+"/api/scraper/run?mountain=ghost", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	store := &fakeStore{}
	store.Save(context.Background(), &types.ScrapedStatus{
		MountainID: "crystal", IsOpen: true, LiftsOpen: 4, LiftsTotal: 6, ScrapedAt: time.Now(),
	})
	ts := newTestServer(t, store, conditionsServer(t).URL)

	var status types.ScrapedStatus
	if code := getJSON(t, ts.URL+"/api/scraper/status?mountain=crystal", &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.LiftsOpen != 4 {
		t.Errorf("lifts = %d", status.LiftsOpen)
	}

	// No record yet for a known mountain is a 404.
	empty := newTestServer(t, &fakeStore{}, conditionsServer(t).URL)
	if code := getJSON(t, empty.URL+"/api/scraper/status?mountain=crystal", nil); code != http.StatusNotFound {
		t.Errorf("empty store status = %d, want 404", code)
	}
}

func TestMountainsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, conditionsServer(t).URL)

	var body struct {
		Count int `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/api/mountains/", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Count != 1 {
		t.Errorf("count = %d", body.Count)
	}
}

func TestSnapshotEndpointUnknown(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, conditionsServer(t).URL)

	if code := getJSON(t, ts.URL+"/api/mountains/ghost/all", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}
