package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/broadcast"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/export"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/orchestrator"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/store"
)

// Server wires the HTTP and WebSocket surface over the processing pipeline.
type Server struct {
	cfg    common.ServerConfig
	orch   *orchestrator.Orchestrator
	store  *store.Store
	export *export.Service
	hub    *broadcast.Hub
	health HealthChecker
	logger *slog.Logger
}

// HealthChecker probes the extraction backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func New(cfg common.ServerConfig, orch *orchestrator.Orchestrator, st *store.Store, exp *export.Service, hub *broadcast.Hub, health HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		orch:   orch,
		store:  st,
		export: exp,
		hub:    hub,
		health: health,
		logger: logger,
	}
}

// Router assembles the chi mux with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.Timeout(15 * time.Minute)).Post("/process/upload", s.handleUpload)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/batches", s.handleBatchSubmit)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Get("/stats", s.handleStats)
			r.Get("/results", s.handleListResults)
			r.Get("/results/export.xlsx", s.handleExportXLSX)
			r.Get("/results/{id}", s.handleGetResult)
			r.Delete("/results/{id}", s.handleDeleteResult)
			r.Get("/results/{id}/source", s.handleDownloadSource)
			r.Get("/results/{id}/docx", s.handleDownloadDocx)
			r.Get("/health", s.handleHealth)
		})
	})
	r.Get("/ws/progress", s.handleProgressWS)

	return r
}
