package entity

import "github.com/antinozorionktr/Ollama-OS-OCR/constants"

// Event type tags sent over the progress channel. These are wire-stable.
const (
	EventConnected = "connected"
	EventUpdate    = "batch_update"
	EventComplete  = "batch_complete"
	EventFailed    = "batch_failed"
)

// ProgressEvent is a transient notification of a job state transition.
// Events are broadcast best-effort and never persisted.
type ProgressEvent struct {
	Type        string              `json:"type"`
	JobID       string              `json:"job_id,omitempty"`
	CurrentFile string              `json:"current_file,omitempty"`
	DocType     constants.DocType   `json:"doc_type,omitempty"`
	Status      constants.JobStatus `json:"status,omitempty"`
	ProgressPct int                 `json:"progress_pct"`
	ResultID    string              `json:"result_id,omitempty"`
	Degraded    bool                `json:"degraded,omitempty"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	Message     string              `json:"message,omitempty"`
}
