package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/powderline/powderline/internal/fetcher"
)

// DefaultSnotelBase is the USDA AWDB REST API root.
const DefaultSnotelBase = "https://wcc.sc.egov.usda.gov/awdbRestApi/services/v1"

// Telemetry is a SNOTEL station's recent snowpack reading.
type Telemetry struct {
	StationTriplet string   `json:"station_triplet"`
	SnowDepthIn    float64  `json:"snow_depth_in"`
	SweIn          float64  `json:"swe_in"`
	Snow24hIn      float64  `json:"snow_24h_in"`
	Snow48hIn      float64  `json:"snow_48h_in"`
	TempF          *float64 `json:"temp_f,omitempty"`
}

// SnotelClient reads daily snow telemetry from the AWDB REST API.
type SnotelClient struct {
	fetch  *fetcher.Fetcher
	base   string
	logger *slog.Logger
}

// NewSnotelClient creates a SNOTEL adapter. An empty base uses the USDA API.
func NewSnotelClient(f *fetcher.Fetcher, base string, logger *slog.Logger) *SnotelClient {
	if base == "" {
		base = DefaultSnotelBase
	}
	return &SnotelClient{
		fetch:  f,
		base:   base,
		logger: logger.With("component", "snotel"),
	}
}

// GetTelemetry fetches the last three daily readings for a station and
// derives 24 h / 48 h snowfall from snow-depth deltas. New snow never goes
// negative: settling and melt read as zero accumulation.
func (c *SnotelClient) GetTelemetry(ctx context.Context, stationTriplet string) (*Telemetry, error) {
	q := url.Values{}
	q.Set("stationTriplets", stationTriplet)
	q.Set("elements", "SNWD,WTEQ,TAVG")
	q.Set("duration", "DAILY")
	q.Set("beginDate", "-2")
	q.Set("endDate", "0")

	resp, err := c.fetch.Fetch(ctx, fetcher.Request{
		URL: fmt.Sprintf("%s/data?%s", c.base, q.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("snotel fetch: %w", err)
	}

	station := gjson.GetBytes(resp.Body, "0")
	if !station.Exists() {
		return nil, fmt.Errorf("snotel station %s: no data", stationTriplet)
	}

	t := &Telemetry{StationTriplet: stationTriplet}
	station.Get("data").ForEach(func(_, element gjson.Result) bool {
		values := element.Get("values").Array()
		if len(values) == 0 {
			return true
		}
		latest := values[len(values)-1].Get("value").Float()
		switch element.Get("stationElement.elementCode").String() {
		case "SNWD":
			t.SnowDepthIn = latest
			if len(values) >= 2 {
				t.Snow24hIn = max(0, latest-values[len(values)-2].Get("value").Float())
			}
			if len(values) >= 3 {
				t.Snow48hIn = max(0, latest-values[len(values)-3].Get("value").Float())
			}
		case "WTEQ":
			t.SweIn = latest
		case "TAVG":
			t.TempF = &latest
		}
		return true
	})
	return t, nil
}
