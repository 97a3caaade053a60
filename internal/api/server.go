// Package api hosts the HTTP server, middleware, and REST handlers for
// operating the lead engine. Notable routes:
//   - POST /scrape, /enrich, /re-enrich to start background runs.
//   - POST /enrich/leads for synchronous enrichment of specific leads.
//   - GET /jobs and /jobs/{job_id} for polling run progress.
//   - GET /leads, /leads/export, /stats for reading results.
//   - GET /healthz and /metrics for probes and Prometheus scraping.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadgrid/lead-engine/internal/engine"
	"github.com/leadgrid/lead-engine/internal/export"
	"github.com/leadgrid/lead-engine/internal/job"
	"github.com/leadgrid/lead-engine/internal/metrics"
	"github.com/leadgrid/lead-engine/internal/middleware"
	"github.com/leadgrid/lead-engine/internal/scrape"
	"github.com/leadgrid/lead-engine/internal/store"
	"go.uber.org/zap"
)

// Request-shape defaults applied when the body omits a field.
const (
	defaultSource      = "yellowpages"
	defaultPages       = 5
	defaultEnrichLimit = 100
	defaultStaleDays   = 30
	defaultStaleLimit  = 50
)

// Runner is the engine surface the handlers call.
type Runner interface {
	RunScrape(source, category, location string, maxPages int) (string, error)
	RunEnrich(limit int) string
	RunReEnrich(days, limit int) string
	EnrichLeads(ctx context.Context, ids []int64) (engine.BatchResult, error)
}

// Config carries the API-facing settings.
type Config struct {
	APIKey string
}

// Server wires HTTP handlers to the engine, tracker and store.
type Server struct {
	router  chi.Router
	runner  Runner
	tracker *job.Tracker
	store   store.Store
	logger  *zap.Logger
	cfg     Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, tracker *job.Tracker, st store.Store, logger *zap.Logger, cfg Config) *Server {
	s := &Server{
		runner:  runner,
		tracker: tracker,
		store:   st,
		logger:  logger.Named("api"),
		cfg:     cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(s.cfg.APIKey))
		}

		r.Post("/scrape", s.startScrape)
		r.Post("/enrich", s.startEnrich)
		r.Post("/re-enrich", s.startReEnrich)
		r.Post("/enrich/leads", s.enrichLeads)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/cancel", s.cancelJob)
			})
		})

		r.Get("/leads", s.listLeads)
		r.Get("/leads/export", s.exportLeads)
		r.Get("/stats", s.stats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scrapeRequest struct {
	Source   string `json:"source"`
	Category string `json:"category"`
	Location string `json:"location"`
	Pages    int    `json:"pages"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Category == "" || req.Location == "" {
		writeError(w, http.StatusBadRequest, "category and location are required")
		return
	}
	if req.Source == "" {
		req.Source = defaultSource
	}
	if req.Pages <= 0 {
		req.Pages = defaultPages
	}

	jobID, err := s.runner.RunScrape(req.Source, req.Category, req.Location, req.Pages)
	if err != nil {
		if errors.Is(err, scrape.ErrUnknownSource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": string(job.StatusRunning)})
}

type enrichRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) startEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultEnrichLimit
	}
	if id, running := s.runningJob("enrich"); running {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "an enrichment job is already running",
			"jobId": id,
		})
		return
	}
	jobID := s.runner.RunEnrich(req.Limit)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": string(job.StatusRunning)})
}

type reEnrichRequest struct {
	Days  int `json:"days"`
	Limit int `json:"limit"`
}

func (s *Server) startReEnrich(w http.ResponseWriter, r *http.Request) {
	var req reEnrichRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Days <= 0 {
		req.Days = defaultStaleDays
	}
	if req.Limit <= 0 {
		req.Limit = defaultStaleLimit
	}
	jobID := s.runner.RunReEnrich(req.Days, req.Limit)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": string(job.StatusRunning)})
}

type enrichLeadsRequest struct {
	LeadIDs []int64 `json:"leadIds"`
}

func (s *Server) enrichLeads(w http.ResponseWriter, r *http.Request) {
	var req enrichLeadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.LeadIDs) == 0 {
		writeError(w, http.StatusBadRequest, "leadIds is required")
		return
	}
	res, err := s.runner.EnrichLeads(r.Context(), req.LeadIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.tracker.Get(chi.URLParam(r, "job_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.tracker.List()})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if !s.tracker.Cancel(id) {
		writeError(w, http.StatusNotFound, "no running job with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": id, "status": "canceling"})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leads, err := s.store.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (s *Server) exportLeads(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leads, err := s.store.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
		err = export.WriteCSV(w, leads)
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, leads)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}
	if err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// runningJob reports whether a job of the given kind is still running.
func (s *Server) runningJob(kind string) (string, bool) {
	for _, j := range s.tracker.List() {
		if j.Kind == kind && j.Status == job.StatusRunning {
			return j.ID, true
		}
	}
	return "", false
}

// decodeOptional parses a JSON body but treats an empty body as zero values.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
