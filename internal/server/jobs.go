package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"jobs": s.orch.Jobs()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.orch.Job(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "NotFound", "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}
