// Package api exposes the engine's control surface over HTTP. Handlers
// are thin adapters over the service and aggregator; per-mountain scrape
// failures are reported in the payload, not as HTTP errors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/powderline/powderline/internal/aggregator"
	"github.com/powderline/powderline/internal/config"
	"github.com/powderline/powderline/internal/mountains"
	"github.com/powderline/powderline/internal/service"
	"github.com/powderline/powderline/internal/types"
)

// runResponse is the envelope returned by the scrape-trigger endpoints.
type runResponse struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message"`
	RunID    string                  `json:"run_id,omitempty"`
	Duration string                  `json:"duration,omitempty"`
	Results  *runCounts              `json:"results,omitempty"`
	Data     []types.MountainOutcome `json:"data,omitempty"`
}

type runCounts struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Server is the HTTP control API.
type Server struct {
	svc      *service.Service
	agg      *aggregator.Aggregator
	registry *mountains.Registry
	http     *http.Server
	logger   *slog.Logger
}

// NewServer builds the router and wraps it in an http.Server.
func NewServer(cfg config.ServerConfig, svc *service.Service, agg *aggregator.Aggregator, registry *mountains.Registry, logger *slog.Logger) *Server {
	s := &Server{
		svc:      svc,
		agg:      agg,
		registry: registry,
		logger:   logger.With("component", "api_server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/scraper", func(r chi.Router) {
		r.Get("/run", s.handleRun)
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Post("/cleanup", s.handleCleanup)
	})
	r.Route("/api/mountains", func(r chi.Router) {
		r.Get("/", s.handleListMountains)
		r.Get("/{id}/all", s.handleSnapshot)
		r.Get("/{id}/history", s.handleHistory)
	})

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("control API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// handleRun triggers a scrape pass: the whole fleet by default, one batch
// with ?batch=N, or a single mountain with ?mountain=ID. Per-mountain
// failures still return 200; only an orchestration-wide fault is a 500.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		summary *types.RunSummary
		err     error
	)
	switch {
	case r.URL.Query().Get("mountain") != "":
		id := r.URL.Query().Get("mountain")
		if s.registry.Get(id) == nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown mountain %q", id))
			return
		}
		summary, err = s.svc.RunOne(ctx, id, "api")
	case r.URL.Query().Get("batch") != "":
		batch, convErr := strconv.Atoi(r.URL.Query().Get("batch"))
		if convErr != nil {
			s.writeError(w, http.StatusBadRequest, "batch must be an integer")
			return
		}
		summary, err = s.svc.RunBatch(ctx, batch, "api")
	default:
		summary, err = s.svc.RunAll(ctx, "api")
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, runResponse{
		Success:  true,
		Message:  fmt.Sprintf("scraped %d mountains (%d ok, %d failed)", summary.Total, summary.Successful, summary.Failed),
		RunID:    summary.RunID,
		Duration: (time.Duration(summary.DurationMS) * time.Millisecond).String(),
		Results: &runCounts{
			Total:      summary.Total,
			Successful: summary.Successful,
			Failed:     summary.Failed,
		},
		Data: summary.PerMountain,
	})
}

// handleStatus returns the latest stored status for every mountain, or a
// single mountain with ?mountain=ID.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if id := r.URL.Query().Get("mountain"); id != "" {
		status, err := s.svc.GetLatest(ctx, id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if status == nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("no status recorded for %q", id))
			return
		}
		s.writeJSON(w, http.StatusOK, status)
		return
	}

	statuses, err := s.svc.GetAllLatest(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count": len(statuses),
		"data":  statuses,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	history, err := s.svc.GetHistory(r.Context(), id, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mountain": id,
		"days":     days,
		"count":    len(history),
		"data":     history,
	})
}

func (s *Server) handleListMountains(w http.ResponseWriter, r *http.Request) {
	configs := s.registry.All()
	out := make([]map[string]any, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, map[string]any{
			"id":       cfg.ID,
			"name":     cfg.Name,
			"strategy": cfg.Strategy,
			"batch":    cfg.Batch,
			"enabled":  cfg.Enabled,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count": len(out),
		"data":  out,
	})
}

// handleSnapshot serves the composed mountain document. Unknown IDs are
// 404; enrichment sources degrade inside the payload.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agg.GetMountainSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.svc.Cleanup(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, types.ErrConfigMissing) || errors.Is(err, types.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
