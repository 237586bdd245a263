package entity

import (
	"time"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
)

// Job is the in-flight unit of work for one submitted file. It is created
// at submission and mutated only by the orchestrator worker that owns it;
// once terminal it is retained read-only for observability.
type Job struct {
	ID          string              `json:"id"`
	FileName    string              `json:"file_name"`
	SourcePath  string              `json:"-"`
	DocType     constants.DocType   `json:"doc_type"`
	Status      constants.JobStatus `json:"status"`
	ProgressPct int                 `json:"progress_pct"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	ResultID    string              `json:"result_id,omitempty"`
	Degraded    bool                `json:"degraded,omitempty"`
}
