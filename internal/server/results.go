package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	var docType constants.DocType
	if q := r.URL.Query().Get("doc_type"); q != "" {
		dt, ok := constants.ParseDocType(q)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "", fmt.Sprintf("unknown doc_type %q", q))
			return
		}
		docType = dt
	}
	results, err := s.store.List(r.Context(), docType)
	if err != nil {
		s.logger.Error("results.list_failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "", "could not list results")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleDeleteResult removes the row and the artifacts it pointed at.
// Deleting twice is fine; the second call is a no-op 200.
func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sourcePath, outputPath, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.logger.Error("results.delete_failed", "result_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "", "could not delete result")
		return
	}
	for _, p := range []string{sourcePath, outputPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("results.artifact_remove_failed", "path", p, "error", err)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleDownloadSource(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if res.SourcePath == "" {
		s.respondError(w, http.StatusNotFound, common.KindNotFound, "source file is not retained")
		return
	}
	if _, err := os.Stat(res.SourcePath); err != nil {
		s.respondError(w, http.StatusNotFound, common.KindNotFound, "source file is gone")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.FileName))
	http.ServeFile(w, r, res.SourcePath)
}

func (s *Server) handleDownloadDocx(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if res.OutputPath == "" {
		s.respondError(w, http.StatusNotFound, common.KindRenderFailed, "no summary document was generated for this result")
		return
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		s.respondError(w, http.StatusNotFound, common.KindNotFound, "summary document is gone")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.OutputPath)))
	http.ServeFile(w, r, res.OutputPath)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	var docType constants.DocType
	if q := r.URL.Query().Get("doc_type"); q != "" {
		dt, ok := constants.ParseDocType(q)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "", fmt.Sprintf("unknown doc_type %q", q))
			return
		}
		docType = dt
	}
	data, err := s.export.ExportResultsXLSX(r.Context(), docType)
	if err != nil {
		s.logger.Error("results.export_failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "", "could not build export")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="results.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
