package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for Powderline.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Scraper   ScraperConfig   `mapstructure:"scraper"   yaml:"scraper"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Weather   WeatherConfig   `mapstructure:"weather"   yaml:"weather"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// ServerConfig controls the HTTP control API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ScraperConfig controls fetching and per-mountain scraping.
type ScraperConfig struct {
	MountainsFile string        `mapstructure:"mountains_file" yaml:"mountains_file"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"   yaml:"task_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"  yaml:"fetch_timeout"`
	UserAgent     string        `mapstructure:"user_agent"     yaml:"user_agent"`
	MaxBodySize   int64         `mapstructure:"max_body_size"  yaml:"max_body_size"`
}

// StorageConfig selects and configures the status store backend.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"        yaml:"backend"` // postgres, mongo
	PostgresDSN   string `mapstructure:"postgres_dsn"   yaml:"postgres_dsn"`
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// CacheConfig controls the snapshot cache.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"            yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// WeatherConfig holds the enrichment API roots. Empty values use the
// public endpoints.
type WeatherConfig struct {
	NOAABase      string `mapstructure:"noaa_base"      yaml:"noaa_base"`
	SnotelBase    string `mapstructure:"snotel_base"    yaml:"snotel_base"`
	OpenMeteoBase string `mapstructure:"openmeteo_base" yaml:"openmeteo_base"`
}

// SchedulerConfig controls cron-driven scrape runs.
type SchedulerConfig struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Jobs    []ScheduledRun `mapstructure:"jobs"    yaml:"jobs"`
}

// ScheduledRun is one cron entry. A negative batch means "all enabled".
type ScheduledRun struct {
	Spec  string `mapstructure:"spec"  yaml:"spec"`
	Batch int    `mapstructure:"batch" yaml:"batch"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Scraper: ScraperConfig{
			MountainsFile: "./configs/mountains.yaml",
			TaskTimeout:   30 * time.Second,
			FetchTimeout:  30 * time.Second,
			MaxBodySize:   10 * 1024 * 1024, // 10MB
		},
		Storage: StorageConfig{
			Backend:       "postgres",
			MongoDatabase: "powderline",
		},
		Cache: CacheConfig{
			TTL:           600 * time.Second,
			SweepInterval: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
