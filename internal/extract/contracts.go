package extract

import (
	"context"
	"encoding/json"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
)

// Request carries everything the extractor needs for one document.
type Request struct {
	Text         string
	DocType      constants.DocType
	FilenameHint string
}

// Extraction is the normalized outcome of a structured extraction.
type Extraction struct {
	Fields  map[string]any
	RawJSON json.RawMessage
	// Confidence is advisory, always in [0,1]. ConfidenceSource records how
	// it was obtained: "model" when the service reported one, "coverage"
	// when derived from the fraction of schema fields populated.
	Confidence       float32
	ConfidenceSource string
}

// FieldExtractor is the interface the orchestrator depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req Request) (Extraction, error)
}
