package types

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrConfigMissing       = errors.New("no config for mountain")
	ErrStrategyUnsupported = errors.New("unsupported scrape strategy")
	ErrHeadlessInit        = errors.New("headless browser failed to start")
	ErrTimeout             = errors.New("scrape timed out")
	ErrCancelled           = errors.New("scrape cancelled")
	ErrNotFound            = errors.New("not found")
)

// Error kinds reported in run results and failure logs.
const (
	KindConfigMissing = "config_missing"
	KindStrategy      = "strategy_unsupported"
	KindNetwork       = "network_error"
	KindTimeout       = "timeout"
	KindUpstream      = "upstream_error"
	KindParse         = "parse_error"
	KindHeadless      = "headless_init_failed"
	KindCancelled     = "cancelled"
	KindStorage       = "storage_failure"
)

// ScrapeError wraps errors that occur while scraping one mountain.
type ScrapeError struct {
	MountainID string
	URL        string
	Kind       string
	StatusCode int
	Err        error
}

func (e *ScrapeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scrape error [%s] for %s (status %d): %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("scrape error [%s] for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// StorageError wraps errors from a StatusStore backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KindOf classifies an error into one of the error kinds above.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var se *ScrapeError
	if errors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrConfigMissing):
		return KindConfigMissing
	case errors.Is(err, ErrStrategyUnsupported):
		return KindStrategy
	case errors.Is(err, ErrHeadlessInit):
		return KindHeadless
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		var ste *StorageError
		if errors.As(err, &ste) {
			return KindStorage
		}
		return KindNetwork
	}
}
