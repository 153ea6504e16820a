// Package mountains holds the static per-resort scraping catalog. The
// registry is loaded once at process start and is read-only afterwards.
package mountains

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/powderline/powderline/internal/types"
)

// Semantic fields a selector set or API transform may target.
const (
	FieldLiftsOpen   = "lifts_open"
	FieldLiftsTotal  = "lifts_total"
	FieldRunsOpen    = "runs_open"
	FieldRunsTotal   = "runs_total"
	FieldPercentOpen = "percent_open"
	FieldAcresOpen   = "acres_open"
	FieldAcresTotal  = "acres_total"
	FieldStatus      = "status"
	FieldMessage     = "message"
)

var validFields = map[string]bool{
	FieldLiftsOpen:   true,
	FieldLiftsTotal:  true,
	FieldRunsOpen:    true,
	FieldRunsTotal:   true,
	FieldPercentOpen: true,
	FieldAcresOpen:   true,
	FieldAcresTotal:  true,
	FieldStatus:      true,
	FieldMessage:     true,
}

// Selector locates one semantic field in a page. The YAML form may be a
// bare string (a CSS selector) or a mapping with query/type/attribute/pattern.
type Selector struct {
	Query     string `yaml:"query"`
	Type      string `yaml:"type"`      // css (default) or xpath
	Attribute string `yaml:"attribute"` // defaults to element text
	Pattern   string `yaml:"pattern"`   // optional regex override
}

// UnmarshalYAML accepts both the scalar shorthand and the full mapping.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Query = node.Value
		s.Type = "css"
		return nil
	}
	type plain Selector
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Selector(p)
	if s.Type == "" {
		s.Type = "css"
	}
	return nil
}

// APISpec describes a JSON-API scraping contract: where to fetch and how
// to map the provider payload onto semantic fields (GJSON paths).
type APISpec struct {
	Endpoint  string            `yaml:"endpoint"`
	Method    string            `yaml:"method"`
	Headers   map[string]string `yaml:"headers"`
	Transform map[string]string `yaml:"transform"`
}

// WaitSpec is the headless strategy's post-navigation wait policy.
type WaitSpec struct {
	Delay time.Duration `yaml:"delay"`
}

// Location is the resort's coordinates, used by the weather adapters.
type Location struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Elevation holds base and summit elevations in feet.
type Elevation struct {
	Base   int `yaml:"base"`
	Summit int `yaml:"summit"`
}

// MountainConfig is one resort's scraping contract. Immutable after load.
type MountainConfig struct {
	ID            string              `yaml:"id"`
	Name          string              `yaml:"name"`
	URL           string              `yaml:"url"`
	DataURL       string              `yaml:"data_url"`
	Strategy      string              `yaml:"strategy"`
	Enabled       bool                `yaml:"enabled"`
	Batch         int                 `yaml:"batch"`
	Selectors     map[string]Selector `yaml:"selectors"`
	API           *APISpec            `yaml:"api"`
	Wait          WaitSpec            `yaml:"wait"`
	Location      Location            `yaml:"location"`
	Elevation     Elevation           `yaml:"elevation"`
	SnotelStation string              `yaml:"snotel_station"`
}

type catalog struct {
	Mountains []MountainConfig `yaml:"mountains"`
}

// Registry is the read-only mountain catalog keyed by id.
type Registry struct {
	byID  map[string]*MountainConfig
	order []string
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mountain catalog: %w", err)
	}
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse mountain catalog: %w", err)
	}
	return FromConfigs(c.Mountains)
}

// FromConfigs builds a registry from an already-decoded config list.
// Duplicate IDs and strategy/param mismatches are load-time errors.
func FromConfigs(cfgs []MountainConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]*MountainConfig, len(cfgs))}
	for i := range cfgs {
		cfg := cfgs[i]
		if err := validate(&cfg); err != nil {
			return nil, err
		}
		if _, dup := r.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate mountain id %q", cfg.ID)
		}
		if cfg.DataURL == "" {
			cfg.DataURL = cfg.URL
		}
		r.byID[cfg.ID] = &cfg
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

func validate(cfg *MountainConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("mountain config missing id")
	}
	if cfg.URL == "" && cfg.DataURL == "" && (cfg.API == nil || cfg.API.Endpoint == "") {
		return fmt.Errorf("mountain %q: no url configured", cfg.ID)
	}
	switch cfg.Strategy {
	case types.StrategyStaticHTML, types.StrategyHeadlessBrowser:
		if len(cfg.Selectors) == 0 {
			return fmt.Errorf("mountain %q: strategy %s requires selectors", cfg.ID, cfg.Strategy)
		}
		for field := range cfg.Selectors {
			if !validFields[field] {
				return fmt.Errorf("mountain %q: unknown selector field %q", cfg.ID, field)
			}
		}
	case types.StrategyJSONAPI:
		if cfg.API == nil || cfg.API.Endpoint == "" {
			return fmt.Errorf("mountain %q: strategy %s requires api.endpoint", cfg.ID, cfg.Strategy)
		}
		if len(cfg.API.Transform) == 0 {
			return fmt.Errorf("mountain %q: strategy %s requires api.transform", cfg.ID, cfg.Strategy)
		}
		for field := range cfg.API.Transform {
			if !validFields[field] {
				return fmt.Errorf("mountain %q: unknown transform field %q", cfg.ID, field)
			}
		}
	default:
		return fmt.Errorf("mountain %q: %w: %q", cfg.ID, types.ErrStrategyUnsupported, cfg.Strategy)
	}
	if cfg.Batch < 0 {
		return fmt.Errorf("mountain %q: negative batch %d", cfg.ID, cfg.Batch)
	}
	return nil
}

// Get returns the config for an id, or nil when unknown.
func (r *Registry) Get(id string) *MountainConfig {
	return r.byID[id]
}

// All returns every config in catalog order.
func (r *Registry) All() []*MountainConfig {
	out := make([]*MountainConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Enabled returns the configs with the enablement flag set.
func (r *Registry) Enabled() []*MountainConfig {
	var out []*MountainConfig
	for _, id := range r.order {
		if cfg := r.byID[id]; cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// ByBatch returns the enabled configs assigned to batch n.
func (r *Registry) ByBatch(n int) []*MountainConfig {
	var out []*MountainConfig
	for _, id := range r.order {
		if cfg := r.byID[id]; cfg.Enabled && cfg.Batch == n {
			out = append(out, cfg)
		}
	}
	return out
}

// Batches returns the sorted distinct batch numbers of enabled configs.
func (r *Registry) Batches() []int {
	seen := make(map[int]bool)
	var out []int
	for _, cfg := range r.Enabled() {
		if !seen[cfg.Batch] {
			seen[cfg.Batch] = true
			out = append(out, cfg.Batch)
		}
	}
	sort.Ints(out)
	return out
}

// Len returns the catalog size.
func (r *Registry) Len() int { return len(r.byID) }
