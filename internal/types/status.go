package types

import (
	"math"
	"time"
)

// Strategy tags recognized by the scraper factory.
const (
	StrategyStaticHTML      = "static_html"
	StrategyJSONAPI         = "json_api"
	StrategyHeadlessBrowser = "headless_browser"
)

// ScrapedStatus is one normalized observation of a mountain's operational
// state. Counts are authoritative; PercentOpen is carried only when the
// source reports one.
type ScrapedStatus struct {
	MountainID  string    `json:"mountain_id"`
	IsOpen      bool      `json:"is_open"`
	PercentOpen *int      `json:"percent_open,omitempty"`
	LiftsOpen   int       `json:"lifts_open"`
	LiftsTotal  int       `json:"lifts_total"`
	RunsOpen    int       `json:"runs_open"`
	RunsTotal   int       `json:"runs_total"`
	AcresOpen   *float64  `json:"acres_open,omitempty"`
	AcresTotal  *float64  `json:"acres_total,omitempty"`
	Message     string    `json:"message,omitempty"`
	SourceURL   string    `json:"source_url"`
	DataURL     string    `json:"data_url"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// LiftsClosed is derived, never stored.
func (s *ScrapedStatus) LiftsClosed() int { return s.LiftsTotal - s.LiftsOpen }

// RunsClosed is derived, never stored.
func (s *ScrapedStatus) RunsClosed() int { return s.RunsTotal - s.RunsOpen }

// percentTolerance is how far a reported percent may drift from the
// percentage implied by the lift counts before it is discarded.
const percentTolerance = 5

// Normalize clamps counts and percentages into their valid ranges:
// 0 <= open <= total, and percent within [0, 100]. A total of zero forces
// the open count to zero. Counts are authoritative: a reported percent
// that disagrees with the lift counts by more than percentTolerance
// points is dropped.
func (s *ScrapedStatus) Normalize() {
	s.LiftsOpen, s.LiftsTotal = clampPair(s.LiftsOpen, s.LiftsTotal)
	s.RunsOpen, s.RunsTotal = clampPair(s.RunsOpen, s.RunsTotal)
	if s.PercentOpen != nil {
		p := *s.PercentOpen
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if s.LiftsTotal > 0 {
			derived := int(math.Round(100 * float64(s.LiftsOpen) / float64(s.LiftsTotal)))
			if p-derived > percentTolerance || derived-p > percentTolerance {
				s.PercentOpen = nil
				return
			}
		}
		s.PercentOpen = &p
	}
}

func clampPair(open, total int) (int, int) {
	if total < 0 {
		total = 0
	}
	if open < 0 {
		open = 0
	}
	if open > total {
		open = total
	}
	return open, total
}

// Run lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is the audit trail for one orchestrated scraping pass.
type RunRecord struct {
	RunID           string     `json:"run_id"`
	TriggeredBy     string     `json:"triggered_by"`
	TotalMountains  int        `json:"total_mountains"`
	SuccessfulCount int        `json:"successful_count"`
	FailedCount     int        `json:"failed_count"`
	DurationMS      int64      `json:"duration_ms"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// FailureRecord logs one mountain's scrape failure within a run.
type FailureRecord struct {
	RunID        string    `json:"run_id"`
	MountainID   string    `json:"mountain_id"`
	ErrorMessage string    `json:"error_message"`
	SourceURL    string    `json:"source_url"`
	FailedAt     time.Time `json:"failed_at"`
}

// MountainOutcome is the per-mountain entry in a RunSummary.
type MountainOutcome struct {
	MountainID string `json:"mountain_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// RunSummary is what a completed orchestration pass reports to callers.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	TriggeredBy string            `json:"triggered_by"`
	Total       int               `json:"total"`
	Successful  int               `json:"successful"`
	Failed      int               `json:"failed"`
	DurationMS  int64             `json:"duration_ms"`
	PerMountain []MountainOutcome `json:"per_mountain"`
}
