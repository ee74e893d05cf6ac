// Package api exposes the thin HTTP trigger surface: ingest, pipeline
// and recommendation runs, run inspection and artifact export. All data
// routes are tenant-scoped through the X-Tenant-ID header.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/vintner-crm/internal/domain"
	"github.com/ignite/vintner-crm/internal/export"
	"github.com/ignite/vintner-crm/internal/ingest"
	"github.com/ignite/vintner-crm/internal/orchestrator"
	"github.com/ignite/vintner-crm/internal/pkg/logger"
	"github.com/ignite/vintner-crm/internal/service/reco"
)

// Collaborators behind the handlers, as interfaces so the surface can
// be tested against fakes.
type (
	ingestTrigger interface {
		Run(ctx context.Context, tenantID int64, sourceDir string) (*ingest.Report, error)
	}
	pipelineRunner interface {
		RunTenant(ctx context.Context, job orchestrator.TenantJob) *orchestrator.Outcome
	}
	recoTrigger interface {
		Run(ctx context.Context, tenantID int64, datasetVersion string) (*reco.RunResult, error)
	}
	runReader interface {
		ListRuns(ctx context.Context, tenantID int64) ([]domain.RecoRun, error)
		GetRun(ctx context.Context, tenantID int64, runID string) (*domain.RecoRun, error)
		GetRunSummary(ctx context.Context, tenantID int64, runID string) (*domain.RunSummary, error)
	}
	artifactExporter interface {
		Export(ctx context.Context, tenantID int64, runID string) (*export.Artifacts, error)
	}
)

// Deps wires the handlers.
type Deps struct {
	Ingest   ingestTrigger
	Pipeline pipelineRunner
	Engine   recoTrigger
	Runs     runReader
	Exporter artifactExporter
}

// Server is the HTTP surface.
type Server struct {
	deps   Deps
	router *chi.Mux
	server *http.Server
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts serving on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Pipeline triggers are synchronous and can run for minutes.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("http server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Tenant-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Post("/ingest", s.handleIngest)
		r.Post("/pipeline", s.handlePipeline)
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Post("/runs/{runID}/export", s.handleExport)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type triggerRequest struct {
	SourceDir      string `json:"source_dir"`
	DatasetVersion string `json:"dataset_version"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceDir == "" {
		respondError(w, http.StatusBadRequest, "source_dir is required")
		return
	}
	report, err := s.deps.Ingest.Run(r.Context(), TenantFromContext(r.Context()), req.SourceDir)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceDir == "" {
		respondError(w, http.StatusBadRequest, "source_dir is required")
		return
	}
	outcome := s.deps.Pipeline.RunTenant(r.Context(), orchestrator.TenantJob{
		TenantID:  TenantFromContext(r.Context()),
		SourceDir: req.SourceDir,
	})
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, outcome)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	// Body is optional; dataset_version may be blank when the loaded
	// state was not produced by a tracked ingestion.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.deps.Engine.Run(r.Context(), TenantFromContext(r.Context()), req.DatasetVersion)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Runs.ListRuns(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	runID := chi.URLParam(r, "runID")

	run, err := s.deps.Runs.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp := map[string]any{"run": run}
	// Failed runs legitimately have no summary.
	if summary, err := s.deps.Runs.GetRunSummary(r.Context(), tenantID, runID); err == nil {
		if data, derr := domain.DecodeRunSummary(summary.SummaryJSON); derr == nil {
			resp["summary"] = data
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.deps.Exporter.Export(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "runID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, artifacts)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("response encoding failed", "error", err.Error())
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondDomainError maps the domain error kinds onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindContractError:
		status = http.StatusUnprocessableEntity
	case domain.KindUnauthenticated:
		status = http.StatusUnauthorized
	case domain.KindCancelled:
		status = http.StatusServiceUnavailable
	case domain.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	respondError(w, status, err.Error())
}
