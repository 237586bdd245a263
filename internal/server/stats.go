package server

import (
	"context"
	"net/http"
	"time"
)

type statsResponse struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// handleStats derives counts from the store on every call rather than
// maintaining counters that could drift.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, total, err := s.store.AggregateCounts(r.Context())
	if err != nil {
		s.logger.Error("stats.failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "", "could not compute stats")
		return
	}
	byType := make(map[string]int, len(counts))
	for dt, n := range counts {
		byType[string(dt)] = n
	}
	s.respondJSON(w, http.StatusOK, statsResponse{Total: total, ByType: byType})
}

type healthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	Extraction string `json:"extraction"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok", Extraction: "ok"}
	status := http.StatusOK

	if _, _, err := s.store.AggregateCounts(ctx); err != nil {
		resp.Store = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if s.health != nil {
		if err := s.health.Ping(ctx); err != nil {
			resp.Extraction = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, status, resp)
}
