package server

import (
	"encoding/json"
	"net/http"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http.encode_response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind common.Kind, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

// respondFailure maps an error kind to its HTTP status.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	kind := common.KindOf(err)
	s.respondJSON(w, statusForKind(kind), errorBody{Error: err.Error(), Kind: string(kind)})
}

func statusForKind(kind common.Kind) int {
	switch kind {
	case common.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case common.KindUnreadableDocument, common.KindExtractionFailed:
		return http.StatusUnprocessableEntity
	case common.KindExtractionUnavailable:
		return http.StatusServiceUnavailable
	case common.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
