// Package weather holds the external feed adapters the aggregator blends
// with scraped status: NOAA gridpoint forecasts, SNOTEL snow telemetry,
// and Open-Meteo freezing-level/daily forecasts. Every adapter goes
// through the shared fetcher and parses JSON with gjson; callers treat
// each adapter as independently fallible.
package weather

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/scraper"
)

// DefaultNOAABase is the public api.weather.gov root.
const DefaultNOAABase = "https://api.weather.gov"

// Forecast is the current-period NOAA forecast for a point.
type Forecast struct {
	TemperatureF     float64 `json:"temperature_f"`
	WindSpeedMPH     float64 `json:"wind_speed_mph"`
	ShortForecast    string  `json:"short_forecast"`
	DetailedForecast string  `json:"detailed_forecast"`
}

// NOAAClient resolves a lat/lon to its gridpoint forecast.
type NOAAClient struct {
	fetch  *fetcher.Fetcher
	base   string
	logger *slog.Logger
}

// NewNOAAClient creates a NOAA adapter. An empty base uses the public API.
func NewNOAAClient(f *fetcher.Fetcher, base string, logger *slog.Logger) *NOAAClient {
	if base == "" {
		base = DefaultNOAABase
	}
	return &NOAAClient{
		fetch:  f,
		base:   base,
		logger: logger.With("component", "noaa"),
	}
}

// GetForecast fetches the point metadata, follows the forecast URL it
// names, and returns the first period.
func (c *NOAAClient) GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	pointURL := fmt.Sprintf("%s/points/%.4f,%.4f", c.base, lat, lon)
	resp, err := c.fetch.Fetch(ctx, fetcher.Request{
		URL:     pointURL,
		Headers: map[string]string{"Accept": "application/geo+json"},
	})
	if err != nil {
		return nil, fmt.Errorf("noaa point lookup: %w", err)
	}

	forecastURL := gjson.GetBytes(resp.Body, "properties.forecast").String()
	if forecastURL == "" {
		return nil, fmt.Errorf("noaa point %0.4f,%0.4f: no forecast url", lat, lon)
	}

	resp, err = c.fetch.Fetch(ctx, fetcher.Request{
		URL:     forecastURL,
		Headers: map[string]string{"Accept": "application/geo+json"},
	})
	if err != nil {
		return nil, fmt.Errorf("noaa forecast fetch: %w", err)
	}

	period := gjson.GetBytes(resp.Body, "properties.periods.0")
	if !period.Exists() {
		return nil, fmt.Errorf("noaa forecast: no periods")
	}

	wind, _ := scraper.ParseNumber(period.Get("windSpeed").String())
	return &Forecast{
		TemperatureF:     period.Get("temperature").Float(),
		WindSpeedMPH:     wind,
		ShortForecast:    period.Get("shortForecast").String(),
		DetailedForecast: period.Get("detailedForecast").String(),
	}, nil
}
