package entity

import (
	"encoding/json"
	"time"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
)

// Result is the durable outcome of a completed job. Immutable once saved,
// except for deletion.
type Result struct {
	ID             string            `json:"id"`
	FileName       string            `json:"file_name"`
	DocType        constants.DocType `json:"doc_type"`
	RawText        string            `json:"raw_text"`
	StructuredData json.RawMessage   `json:"structured_data"`
	// Confidence is advisory only: either model-reported or derived from
	// schema field coverage. Always within [0,1]. It never gates persistence.
	Confidence   float32   `json:"confidence"`
	PageCount    int       `json:"page_count"`
	ProcessingMS int64     `json:"processing_ms"`
	SourcePath   string    `json:"source_path,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// Fields decodes the structured payload into a generic map.
func (r *Result) Fields() (map[string]any, error) {
	var m map[string]any
	if len(r.StructuredData) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(r.StructuredData, &m); err != nil {
		return nil, err
	}
	return m, nil
}
