package scraper

import (
	"testing"
	"time"

	"github.com/powderline/powderline/internal/mountains"
)

const ratioHTML = `<!DOCTYPE html>
<html>
<body>
  <div class="conditions">
    <span class="lifts">8 / 10</span>
    <span class="runs">45/120</span>
    <span class="pct">37% open</span>
    <span class="acres-open">1,044</span>
    <span class="acres-total">2,611</span>
    <div class="status">Open daily</div>
    <p class="report">Packed powder, groomers running.</p>
  </div>
</body>
</html>`

const countHTML = `<!DOCTYPE html>
<html>
<body>
  <ul class="lifts">
    <li class="lift open"></li>
    <li class="lift open"></li>
    <li class="lift open"></li>
    <li class="lift closed">Chair 4</li>
  </ul>
  <div class="status">CLOSED</div>
</body>
</html>`

func sel(q string) mountains.Selector {
	return mountains.Selector{Query: q, Type: "css"}
}

func TestExtractStatusRatios(t *testing.T) {
	cfg := &mountains.MountainConfig{
		ID:      "crystal",
		URL:     "https://example.com",
		DataURL: "https://example.com/conditions",
		Selectors: map[string]mountains.Selector{
			mountains.FieldLiftsOpen:   sel(".lifts"),
			mountains.FieldRunsOpen:    sel(".runs"),
			mountains.FieldPercentOpen: sel(".pct"),
			mountains.FieldAcresOpen:   sel(".acres-open"),
			mountains.FieldAcresTotal:  sel(".acres-total"),
			mountains.FieldStatus:      sel(".status"),
			mountains.FieldMessage:     sel(".report"),
		},
	}

	status, err := extractStatus(cfg, []byte(ratioHTML), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}

	if status.LiftsOpen != 8 || status.LiftsTotal != 10 {
		t.Errorf("lifts = %d/%d, want 8/10", status.LiftsOpen, status.LiftsTotal)
	}
	if status.RunsOpen != 45 || status.RunsTotal != 120 {
		t.Errorf("runs = %d/%d, want 45/120", status.RunsOpen, status.RunsTotal)
	}
	if status.PercentOpen == nil || *status.PercentOpen != 37 {
		t.Errorf("percent = %v, want 37", status.PercentOpen)
	}
	if status.AcresOpen == nil || *status.AcresOpen != 1044 {
		t.Errorf("acres open = %v, want 1044", status.AcresOpen)
	}
	if !status.IsOpen {
		t.Error("expected open")
	}
	if status.Message != "Packed powder, groomers running." {
		t.Errorf("message = %q", status.Message)
	}
}

// A selector that enumerates open-class elements with no ratio text should
// report the match count as both open and total, even when the elements
// carry no text at all.
func TestExtractStatusCountFallback(t *testing.T) {
	cfg := &mountains.MountainConfig{
		ID:      "baker",
		URL:     "https://example.com",
		DataURL: "https://example.com/report",
		Selectors: map[string]mountains.Selector{
			mountains.FieldLiftsOpen: sel(".lifts .lift.open"),
			mountains.FieldStatus:    sel(".status"),
		},
	}

	status, err := extractStatus(cfg, []byte(countHTML), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.LiftsOpen != 3 || status.LiftsTotal != 3 {
		t.Errorf("lifts = %d/%d, want 3/3", status.LiftsOpen, status.LiftsTotal)
	}
	if status.IsOpen {
		t.Error("expected closed")
	}
}

func TestExtractStatusXPath(t *testing.T) {
	cfg := &mountains.MountainConfig{
		ID:      "baker",
		URL:     "https://example.com",
		DataURL: "https://example.com/report",
		Selectors: map[string]mountains.Selector{
			mountains.FieldStatus: {Query: "//div[@class='status']", Type: "xpath"},
		},
	}
	status, err := extractStatus(cfg, []byte(countHTML), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.IsOpen {
		t.Error("xpath status should read CLOSED")
	}
}

func TestExtractStatusPattern(t *testing.T) {
	body := `<html><body><div class="summary">Currently 17 / 23 runs are groomed</div></body></html>`
	cfg := &mountains.MountainConfig{
		ID:      "snoqualmie",
		URL:     "https://example.com",
		DataURL: "https://example.com/conditions",
		Selectors: map[string]mountains.Selector{
			mountains.FieldRunsOpen: {
				Query:   ".summary",
				Type:    "css",
				Pattern: `(\d+)\s*/\s*(\d+)\s*runs`,
			},
		},
	}
	status, err := extractStatus(cfg, []byte(body), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.RunsOpen != 17 || status.RunsTotal != 23 {
		t.Errorf("runs = %d/%d, want 17/23", status.RunsOpen, status.RunsTotal)
	}
}

// A pattern scoped to a query must not fall back to scanning the whole
// body when the query matches nothing; stray numbers elsewhere on the
// page stay out of the counts.
func TestExtractStatusPatternScopedToQuery(t *testing.T) {
	body := `<html><body>
		<div class="footer">Established 1962 / 2026 season runs daily shuttles</div>
	</body></html>`
	cfg := &mountains.MountainConfig{
		ID:      "snoqualmie",
		URL:     "https://example.com",
		DataURL: "https://example.com/conditions",
		Selectors: map[string]mountains.Selector{
			mountains.FieldRunsOpen: {
				Query:   ".summary",
				Type:    "css",
				Pattern: `(\d+)\s*/\s*(\d+)`,
			},
		},
	}
	status, err := extractStatus(cfg, []byte(body), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.RunsOpen != 0 || status.RunsTotal != 0 {
		t.Errorf("runs = %d/%d, want 0/0 when the scoped query matches nothing",
			status.RunsOpen, status.RunsTotal)
	}
}

// Counts are clamped so open never exceeds total.
func TestExtractStatusNormalizes(t *testing.T) {
	body := `<html><body><span class="lifts">12 / 5</span></body></html>`
	cfg := &mountains.MountainConfig{
		ID:      "crystal",
		URL:     "https://example.com",
		DataURL: "https://example.com/conditions",
		Selectors: map[string]mountains.Selector{
			mountains.FieldLiftsOpen: sel(".lifts"),
		},
	}
	status, err := extractStatus(cfg, []byte(body), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.LiftsOpen != 5 || status.LiftsTotal != 5 {
		t.Errorf("lifts = %d/%d, want clamped 5/5", status.LiftsOpen, status.LiftsTotal)
	}
}

// Selectors that match nothing contribute zero values, not errors.
func TestExtractStatusMissingSelectors(t *testing.T) {
	cfg := &mountains.MountainConfig{
		ID:      "crystal",
		URL:     "https://example.com",
		DataURL: "https://example.com/conditions",
		Selectors: map[string]mountains.Selector{
			mountains.FieldLiftsOpen: sel(".does-not-exist"),
			mountains.FieldStatus:    sel(".also-missing"),
		},
	}
	status, err := extractStatus(cfg, []byte(ratioHTML), time.Now())
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if status.LiftsOpen != 0 || status.LiftsTotal != 0 || status.IsOpen {
		t.Errorf("expected zero status, got %+v", status)
	}
}
