package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/powderline/powderline/internal/aggregator"
	"github.com/powderline/powderline/internal/api"
	"github.com/powderline/powderline/internal/config"
	"github.com/powderline/powderline/internal/fetcher"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/scheduler"
	"github.com/powderline/powderline/internal/scraper"
	"github.com/powderline/powderline/internal/service"
	"github.com/powderline/powderline/internal/storage"
	"github.com/powderline/powderline/internal/weather"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "powderline",
		Short: "Powderline — ski mountain status scraping engine",
		Long: `Powderline scrapes lift and run status from ski resort websites using
per-mountain strategies (static HTML, JSON API, headless browser),
persists the results, and serves enriched mountain snapshots.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *mountains.Registry
	store    storage.StatusStore
	svc      *service.Service
	agg      *aggregator.Aggregator
}

// bootstrap loads config and wires the registry, store, orchestrator,
// service, and aggregator.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	registry, err := mountains.Load(cfg.Scraper.MountainsFile)
	if err != nil {
		return nil, fmt.Errorf("load mountains: %w", err)
	}
	logger.Info("mountains loaded",
		"file", cfg.Scraper.MountainsFile,
		"total", registry.Len(),
		"enabled", len(registry.Enabled()),
	)

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fetch := fetcher.New(fetcher.Options{
		Timeout:     cfg.Scraper.FetchTimeout,
		MaxBodySize: cfg.Scraper.MaxBodySize,
		UserAgent:   cfg.Scraper.UserAgent,
	}, logger)

	orch := scraper.NewOrchestrator(registry, fetch, logger,
		scraper.WithTaskTimeout(cfg.Scraper.TaskTimeout))
	svc := service.New(registry, orch, store, logger)

	agg := aggregator.New(
		registry,
		store,
		weather.NewNOAAClient(fetch, cfg.Weather.NOAABase, logger),
		weather.NewSnotelClient(fetch, cfg.Weather.SnotelBase, logger),
		weather.NewOpenMeteoClient(fetch, cfg.Weather.OpenMeteoBase, logger),
		cfg.Cache.TTL,
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		svc:      svc,
		agg:      agg,
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.StatusStore, error) {
	switch cfg.Backend {
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close(ctx)
			return nil, err
		}
		return store, nil
	case "mongo":
		store, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close(ctx)
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// serveCmd runs the HTTP control API, the snapshot cache sweeper, and the
// cron scheduler until interrupted.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.store.Close(context.Background())

			a.agg.StartSweeper(ctx)

			var sched *scheduler.Scheduler
			if a.cfg.Scheduler.Enabled {
				sched, err = scheduler.New(a.cfg.Scheduler, a.svc, a.logger)
				if err != nil {
					return fmt.Errorf("scheduler: %w", err)
				}
				sched.Start()
			}

			srv := api.NewServer(a.cfg.Server, a.svc, a.agg, a.registry, a.logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down")
			case err := <-errCh:
				return err
			}

			if sched != nil {
				sched.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// scrapeCmd runs one scrape pass and exits.
func scrapeCmd() *cobra.Command {
	var (
		batch    int
		mountain string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.store.Close(context.Background())

			var run *runResult
			switch {
			case mountain != "":
				s, err := a.svc.RunOne(ctx, mountain, "cli")
				if err != nil {
					return err
				}
				run = &runResult{s.Total, s.Successful, s.Failed, s.DurationMS}
			case batch >= 0:
				s, err := a.svc.RunBatch(ctx, batch, "cli")
				if err != nil {
					return err
				}
				run = &runResult{s.Total, s.Successful, s.Failed, s.DurationMS}
			default:
				s, err := a.svc.RunAll(ctx, "cli")
				if err != nil {
					return err
				}
				run = &runResult{s.Total, s.Successful, s.Failed, s.DurationMS}
			}

			fmt.Printf("Scraped %d mountains: %d ok, %d failed (%s)\n",
				run.total, run.successful, run.failed,
				(time.Duration(run.durationMS) * time.Millisecond).Round(time.Millisecond))
			if run.failed > 0 && run.successful == 0 {
				return fmt.Errorf("every scrape failed")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&batch, "batch", "b", -1, "scrape only this batch (-1 = all enabled)")
	cmd.Flags().StringVarP(&mountain, "mountain", "m", "", "scrape a single mountain by id")
	return cmd
}

type runResult struct {
	total      int
	successful int
	failed     int
	durationMS int64
}

// statusCmd prints the latest stored status per mountain.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest stored status for each mountain",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.store.Close(context.Background())

			statuses, err := a.svc.GetAllLatest(ctx)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("No statuses recorded yet.")
				return nil
			}
			for _, st := range statuses {
				open := "closed"
				if st.IsOpen {
					open = "open"
				}
				fmt.Printf("%-20s %-6s lifts %d/%d runs %d/%d (scraped %s)\n",
					st.MountainID, open,
					st.LiftsOpen, st.LiftsTotal,
					st.RunsOpen, st.RunsTotal,
					st.ScrapedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

// cleanupCmd deletes statuses past the retention window.
func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete statuses older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.store.Close(context.Background())

			deleted, err := a.svc.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d expired statuses.\n", deleted)
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Powderline %s\n", config.Version)
		},
	}
}

// setupLogger creates a structured logger per the logging config. The
// --verbose flag wins over the configured level.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if cfg.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
