package weather

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/powderline/powderline/internal/fetcher"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testFetcher() *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{}, testLogger)
}

func TestNOAAGetForecast(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/points/"):
			fmt.Fprintf(w, `{"properties": {"forecast": "%s/gridpoints/SEW/132,65/forecast"}}`, srv.URL)
		case strings.HasPrefix(r.URL.Path, "/gridpoints/"):
			w.Write([]byte(`{"properties": {"periods": [
				{"temperature": 24, "windSpeed": "10 to 15 mph",
				 "shortForecast": "Snow Showers",
				 "detailedForecast": "Snow showers. High near 24."}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewNOAAClient(testFetcher(), srv.URL, testLogger)
	fc, err := c.GetForecast(context.Background(), 46.9282, -121.5045)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if fc.TemperatureF != 24 {
		t.Errorf("temp = %v", fc.TemperatureF)
	}
	if fc.WindSpeedMPH != 10 {
		t.Errorf("wind = %v, want first number of the range", fc.WindSpeedMPH)
	}
	if fc.ShortForecast != "Snow Showers" {
		t.Errorf("short = %q", fc.ShortForecast)
	}
}

func TestNOAANoPeriods(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/points/") {
			fmt.Fprintf(w, `{"properties": {"forecast": "%s/forecast"}}`, srv.URL)
			return
		}
		w.Write([]byte(`{"properties": {"periods": []}}`))
	}))
	defer srv.Close()

	c := NewNOAAClient(testFetcher(), srv.URL, testLogger)
	if _, err := c.GetForecast(context.Background(), 46.9, -121.5); err == nil {
		t.Fatal("expected error for empty periods")
	}
}

func TestSnotelGetTelemetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("stationTriplets"); got != "1080:WA:SNTL" {
			t.Errorf("stationTriplets = %q", got)
		}
		w.Write([]byte(`[{
			"stationTriplet": "1080:WA:SNTL",
			"data": [
				{"stationElement": {"elementCode": "SNWD"},
				 "values": [{"value": 80}, {"value": 84}, {"value": 92}]},
				{"stationElement": {"elementCode": "WTEQ"},
				 "values": [{"value": 30.5}, {"value": 31.2}, {"value": 33.1}]},
				{"stationElement": {"elementCode": "TAVG"},
				 "values": [{"value": 25}, {"value": 22}, {"value": 19}]}
			]
		}]`))
	}))
	defer srv.Close()

	c := NewSnotelClient(testFetcher(), srv.URL, testLogger)
	tel, err := c.GetTelemetry(context.Background(), "1080:WA:SNTL")
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if tel.SnowDepthIn != 92 {
		t.Errorf("depth = %v", tel.SnowDepthIn)
	}
	if tel.Snow24hIn != 8 {
		t.Errorf("24h = %v, want 92-84", tel.Snow24hIn)
	}
	if tel.Snow48hIn != 12 {
		t.Errorf("48h = %v, want 92-80", tel.Snow48hIn)
	}
	if tel.SweIn != 33.1 {
		t.Errorf("swe = %v", tel.SweIn)
	}
	if tel.TempF == nil || *tel.TempF != 19 {
		t.Errorf("temp = %v", tel.TempF)
	}
}

// Settling snowpack (depth decreasing) reads as zero new snow.
func TestSnotelSettlingNeverNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"data": [
				{"stationElement": {"elementCode": "SNWD"},
				 "values": [{"value": 100}, {"value": 96}, {"value": 95}]}
			]
		}]`))
	}))
	defer srv.Close()

	c := NewSnotelClient(testFetcher(), srv.URL, testLogger)
	tel, err := c.GetTelemetry(context.Background(), "x")
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if tel.Snow24hIn != 0 || tel.Snow48hIn != 0 {
		t.Errorf("settling should read 0/0, got %v/%v", tel.Snow24hIn, tel.Snow48hIn)
	}
}

func TestSnotelNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewSnotelClient(testFetcher(), srv.URL, testLogger)
	if _, err := c.GetTelemetry(context.Background(), "nowhere"); err == nil {
		t.Fatal("expected error for empty station response")
	}
}

func TestOpenMeteoGetForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("hourly"); got != "freezing_level_height" {
			t.Errorf("hourly = %q", got)
		}
		w.Write([]byte(`{
			"hourly": {"freezing_level_height": [1500, 1480]},
			"daily": {
				"time": ["2026-01-10", "2026-01-11"],
				"snowfall_sum": [6.5, 0],
				"temperature_2m_max": [28, 35],
				"temperature_2m_min": [18, 25],
				"wind_speed_10m_max": [12, 30],
				"precipitation_probability_max": [90, 20]
			}
		}`))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(testFetcher(), srv.URL, testLogger)
	fc, err := c.GetForecast(context.Background(), 46.9, -121.5)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	want := 1500 * metersToFeet
	if fc.FreezingLevelFt != want {
		t.Errorf("freezing = %v, want %v", fc.FreezingLevelFt, want)
	}
	if len(fc.Daily) != 2 {
		t.Fatalf("daily = %d entries", len(fc.Daily))
	}
	d := fc.Daily[0]
	if d.Date != "2026-01-10" || d.SnowfallIn != 6.5 || d.TempMaxF != 28 || d.PrecipProb != 90 {
		t.Errorf("day 0 = %+v", d)
	}
}
