package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/powderline/powderline/internal/fetcher"
)

// DefaultOpenMeteoBase is the public Open-Meteo forecast root.
const DefaultOpenMeteoBase = "https://api.open-meteo.com/v1"

const metersToFeet = 3.28084

// DailyOutlook is one day of the short-range forecast.
type DailyOutlook struct {
	Date       string  `json:"date"`
	SnowfallIn float64 `json:"snowfall_in"`
	TempMaxF   float64 `json:"temp_max_f"`
	TempMinF   float64 `json:"temp_min_f"`
	WindMaxMPH float64 `json:"wind_max_mph"`
	PrecipProb float64 `json:"precip_prob"`
}

// FreezingForecast carries the current freezing level plus the daily
// short-range outlook for a point.
type FreezingForecast struct {
	FreezingLevelFt float64        `json:"freezing_level_ft"`
	Daily           []DailyOutlook `json:"daily"`
}

// OpenMeteoClient reads freezing level and daily forecasts.
type OpenMeteoClient struct {
	fetch  *fetcher.Fetcher
	base   string
	logger *slog.Logger
}

// NewOpenMeteoClient creates an Open-Meteo adapter.
func NewOpenMeteoClient(f *fetcher.Fetcher, base string, logger *slog.Logger) *OpenMeteoClient {
	if base == "" {
		base = DefaultOpenMeteoBase
	}
	return &OpenMeteoClient{
		fetch:  f,
		base:   base,
		logger: logger.With("component", "openmeteo"),
	}
}

// GetForecast fetches hourly freezing level and the daily outlook in one
// request. Units are requested imperial so no local conversion beyond the
// freezing level (reported in meters regardless) is needed.
func (c *OpenMeteoClient) GetForecast(ctx context.Context, lat, lon float64) (*FreezingForecast, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("hourly", "freezing_level_height")
	q.Set("daily", "snowfall_sum,temperature_2m_max,temperature_2m_min,wind_speed_10m_max,precipitation_probability_max")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("precipitation_unit", "inch")
	q.Set("forecast_days", "5")

	resp, err := c.fetch.Fetch(ctx, fetcher.Request{
		URL: fmt.Sprintf("%s/forecast?%s", c.base, q.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("open-meteo fetch: %w", err)
	}

	out := &FreezingForecast{}
	if level := gjson.GetBytes(resp.Body, "hourly.freezing_level_height.0"); level.Exists() {
		out.FreezingLevelFt = level.Float() * metersToFeet
	}

	daily := gjson.GetBytes(resp.Body, "daily")
	dates := daily.Get("time").Array()
	snow := daily.Get("snowfall_sum").Array()
	tmax := daily.Get("temperature_2m_max").Array()
	tmin := daily.Get("temperature_2m_min").Array()
	wind := daily.Get("wind_speed_10m_max").Array()
	prob := daily.Get("precipitation_probability_max").Array()

	for i, d := range dates {
		day := DailyOutlook{Date: d.String()}
		if i < len(snow) {
			day.SnowfallIn = snow[i].Float()
		}
		if i < len(tmax) {
			day.TempMaxF = tmax[i].Float()
		}
		if i < len(tmin) {
			day.TempMinF = tmin[i].Float()
		}
		if i < len(wind) {
			day.WindMaxMPH = wind[i].Float()
		}
		if i < len(prob) {
			day.PrecipProb = prob[i].Float()
		}
		out.Daily = append(out.Daily, day)
	}
	return out, nil
}
