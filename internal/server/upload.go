package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

const maxUploadBytes = 100 << 20 // 100 MiB

type uploadResponse struct {
	ResultID     string            `json:"result_id"`
	FileName     string            `json:"file_name"`
	DocType      constants.DocType `json:"doc_type"`
	ProcessingMS int64             `json:"processing_ms"`
	PageCount    int               `json:"page_count"`
	Confidence   float32           `json:"confidence"`
	Degraded     bool              `json:"degraded,omitempty"`
}

// handleUpload accepts one multipart file, processes it synchronously and
// returns the stored result's id. Doc type is validated before anything is
// written to disk.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	docType, ok := constants.ParseDocType(r.URL.Query().Get("doc_type"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "",
			fmt.Sprintf("doc_type must be one of %s", strings.Join(constants.DocTypeStrings(), ", ")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if constants.MapExtToFormat(filepath.Ext(fileName)) == "" {
		s.respondError(w, http.StatusUnsupportedMediaType, common.KindUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(fileName)))
		return
	}

	storedPath, err := s.saveUpload(file, fileName)
	if err != nil {
		s.logger.Error("upload.store_failed", "file", fileName, "error", err)
		s.respondError(w, http.StatusInternalServerError, "", "could not store upload")
		return
	}

	job, err := s.orch.SubmitWait(r.Context(), fileName, storedPath, docType)
	if err != nil && job.Status != constants.JobStatusCompleted && job.Status != constants.JobStatusFailed {
		s.respondError(w, http.StatusServiceUnavailable, "", err.Error())
		return
	}
	if job.Status == constants.JobStatusFailed {
		// job.Error already carries the kind prefix from the pipeline error
		s.respondJSON(w, statusForKind(common.Kind(job.ErrorKind)),
			errorBody{Error: job.Error, Kind: job.ErrorKind})
		return
	}

	res, err := s.store.Get(r.Context(), job.ResultID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, uploadResponse{
		ResultID:     res.ID,
		FileName:     res.FileName,
		DocType:      res.DocType,
		ProcessingMS: res.ProcessingMS,
		PageCount:    res.PageCount,
		Confidence:   res.Confidence,
		Degraded:     job.Degraded,
	})
}

// saveUpload writes the multipart stream under UploadDir with a uuid prefix
// so same-named uploads never clobber each other.
func (s *Server) saveUpload(src io.Reader, fileName string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(s.cfg.UploadDir, uuid.NewString()[:8]+"_"+fileName)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

type batchRequest struct {
	Files []batchFile `json:"files"`
}

type batchFile struct {
	Path    string `json:"path"`
	DocType string `json:"doc_type"`
}

type batchResponse struct {
	JobIDs []string `json:"job_ids"`
}

// handleBatchSubmit queues server-side files for async processing. All doc
// types are validated before any job is created, so a bad entry rejects the
// whole batch.
func (s *Server) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	if len(req.Files) == 0 {
		s.respondError(w, http.StatusBadRequest, "", "files is empty")
		return
	}

	type item struct {
		path    string
		docType constants.DocType
	}
	items := make([]item, 0, len(req.Files))
	for i, f := range req.Files {
		dt, ok := constants.ParseDocType(f.DocType)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "",
				fmt.Sprintf("files[%d]: unknown doc_type %q", i, f.DocType))
			return
		}
		if strings.TrimSpace(f.Path) == "" {
			s.respondError(w, http.StatusBadRequest, "", fmt.Sprintf("files[%d]: path is empty", i))
			return
		}
		items = append(items, item{path: f.Path, docType: dt})
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		job, err := s.orch.Submit(r.Context(), filepath.Base(it.path), it.path, it.docType)
		if err != nil {
			s.respondError(w, http.StatusServiceUnavailable, "", err.Error())
			return
		}
		ids = append(ids, job.ID)
	}
	s.respondJSON(w, http.StatusAccepted, batchResponse{JobIDs: ids})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
