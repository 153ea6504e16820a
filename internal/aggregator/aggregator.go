// Package aggregator composes the read-side mountain snapshot: latest
// scraped status blended with weather, snowpack, and freezing-level data,
// plus locally derived powder metrics. Snapshots are memoized with
// stale-while-revalidate semantics.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/powderline/powderline/internal/cache"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/storage"
	"github.com/powderline/powderline/internal/types"
	"github.com/powderline/powderline/internal/weather"
)

// SnapshotTTL is how long a composed snapshot stays fresh.
const SnapshotTTL = 600 * time.Second

// sourceTimeout bounds each enrichment sub-task.
const sourceTimeout = 10 * time.Second

// MountainInfo is the static metadata slice of a snapshot.
type MountainInfo struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	URL       string              `json:"url"`
	Location  mountains.Location  `json:"location"`
	Elevation mountains.Elevation `json:"elevation"`
}

// Snapshot is the composed per-mountain document served to clients.
// Enrichment fields are nil when their source was unavailable; the
// DataSources map records per-source availability.
type Snapshot struct {
	Mountain    MountainInfo              `json:"mountain"`
	Status      *types.ScrapedStatus      `json:"status"`
	Weather     *weather.Forecast         `json:"weather"`
	Snowpack    *weather.Telemetry        `json:"snowpack"`
	Freezing    *weather.FreezingForecast `json:"freezing"`
	Temps       *ElevationTemps           `json:"temps"`
	RainRisk    *RainRisk                 `json:"rain_risk"`
	Powder      *PowderScore              `json:"powder"`
	DataSources map[string]bool           `json:"data_sources"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// Aggregator fans out to the store and weather adapters and caches the
// result per mountain.
type Aggregator struct {
	registry *mountains.Registry
	store    storage.StatusStore
	noaa     *weather.NOAAClient
	snotel   *weather.SnotelClient
	meteo    *weather.OpenMeteoClient
	cache    *cache.Cache[*Snapshot]
	ttl      time.Duration
	logger   *slog.Logger
}

// New wires an Aggregator. A zero ttl uses SnapshotTTL.
func New(
	registry *mountains.Registry,
	store storage.StatusStore,
	noaa *weather.NOAAClient,
	snotel *weather.SnotelClient,
	meteo *weather.OpenMeteoClient,
	ttl time.Duration,
	logger *slog.Logger,
) *Aggregator {
	if ttl <= 0 {
		ttl = SnapshotTTL
	}
	return &Aggregator{
		registry: registry,
		store:    store,
		noaa:     noaa,
		snotel:   snotel,
		meteo:    meteo,
		cache:    cache.New[*Snapshot](ttl, logger),
		ttl:      ttl,
		logger:   logger.With("component", "aggregator"),
	}
}

// StartSweeper launches the cache's periodic cleanup.
func (a *Aggregator) StartSweeper(ctx context.Context) {
	a.cache.StartSweeper(ctx, cache.DefaultSweepInterval)
}

// GetMountainSnapshot returns the composed snapshot for a mountain,
// served from cache when fresh and revalidated in the background when
// stale.
func (a *Aggregator) GetMountainSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	cfg := a.registry.Get(id)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrConfigMissing, id)
	}
	return a.cache.WithCache(ctx, "snapshot:"+id, a.ttl, func(ctx context.Context) (*Snapshot, error) {
		return a.build(ctx, cfg)
	})
}

// build gathers every source concurrently. A failed or missing source
// degrades its fields to nil; the snapshot itself never fails.
func (a *Aggregator) build(ctx context.Context, cfg *mountains.MountainConfig) (*Snapshot, error) {
	snap := &Snapshot{
		Mountain: MountainInfo{
			ID:        cfg.ID,
			Name:      cfg.Name,
			URL:       cfg.URL,
			Location:  cfg.Location,
			Elevation: cfg.Elevation,
		},
		DataSources: make(map[string]bool, 4),
		GeneratedAt: time.Now().UTC(),
	}
	// Recorded before the gather goroutines start sharing the map: a
	// mountain without a station has no SNOTEL source to try.
	if cfg.SnotelStation == "" {
		snap.DataSources["snotel"] = false
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	gather := func(source string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
			defer cancel()
			err := fn(subCtx)
			mu.Lock()
			defer mu.Unlock()
			snap.DataSources[source] = err == nil
			if err != nil {
				a.logger.Warn("snapshot source unavailable",
					"mountain", cfg.ID, "source", source, "error", err)
			}
		}()
	}

	gather("status", func(ctx context.Context) error {
		status, err := a.store.GetLatest(ctx, cfg.ID)
		if err != nil {
			return err
		}
		if status == nil {
			return fmt.Errorf("no scraped status: %w", types.ErrNotFound)
		}
		mu.Lock()
		snap.Status = status
		mu.Unlock()
		return nil
	})
	gather("weather", func(ctx context.Context) error {
		fc, err := a.noaa.GetForecast(ctx, cfg.Location.Lat, cfg.Location.Lon)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Weather = fc
		mu.Unlock()
		return nil
	})
	if cfg.SnotelStation != "" {
		gather("snotel", func(ctx context.Context) error {
			tel, err := a.snotel.GetTelemetry(ctx, cfg.SnotelStation)
			if err != nil {
				return err
			}
			mu.Lock()
			snap.Snowpack = tel
			mu.Unlock()
			return nil
		})
	}
	gather("freezing", func(ctx context.Context) error {
		fc, err := a.meteo.GetForecast(ctx, cfg.Location.Lat, cfg.Location.Lon)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.Freezing = fc
		mu.Unlock()
		return nil
	})

	wg.Wait()
	a.derive(snap, cfg)
	return snap, nil
}

// derive computes the local fields that depend on gathered data. Each is
// computed only when its inputs arrived.
func (a *Aggregator) derive(snap *Snapshot, cfg *mountains.MountainConfig) {
	refTemp, haveTemp := a.referenceTemp(snap)
	if haveTemp && cfg.Elevation.Summit > cfg.Elevation.Base {
		snap.Temps = elevationTemps(refTemp, cfg.Elevation.Base, cfg.Elevation.Summit)
	}
	if snap.Freezing != nil && cfg.Elevation.Summit > cfg.Elevation.Base {
		snap.RainRisk = rainRisk(snap.Freezing.FreezingLevelFt, cfg.Elevation.Base, cfg.Elevation.Summit)
	}
	if snap.Snowpack != nil && haveTemp {
		rain := 0.0
		if snap.RainRisk != nil {
			rain = snap.RainRisk.Score
		}
		wind := 0.0
		if snap.Weather != nil {
			wind = snap.Weather.WindSpeedMPH
		}
		snap.Powder = powderScore(snap.Snowpack.Snow24hIn, snap.Snowpack.Snow48hIn, refTemp, wind, rain)
	}
}

// referenceTemp prefers the SNOTEL station reading and falls back to the
// NOAA forecast temperature.
func (a *Aggregator) referenceTemp(snap *Snapshot) (float64, bool) {
	if snap.Snowpack != nil && snap.Snowpack.TempF != nil {
		return *snap.Snowpack.TempF, true
	}
	if snap.Weather != nil {
		return snap.Weather.TemperatureF, true
	}
	return 0, false
}
