package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

// ClientConfig configures the Ollama-backed field extractor.
type ClientConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	NumPredict  int
	Timeout     time.Duration
}

// Client talks to a local Ollama server's generate endpoint.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a Client, filling unset config with defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral-small3.1:24b-2503-fp16"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.NumPredict == 0 {
		cfg.NumPredict = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Ping checks that the Ollama server answers its tags endpoint.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return common.NewError(common.KindExtractionUnavailable, "extraction service unreachable", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return common.Errorf(common.KindExtractionUnavailable, "extraction service returned status %d", resp.StatusCode)
	}
	return nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// ExtractFields runs a schema-constrained extraction over the document text.
// Transport failures and non-2xx responses come back as retryable
// service-unavailable errors; a malformed model payload does not, since
// resending the same prompt tends to reproduce it.
func (c *Client) ExtractFields(ctx context.Context, req Request) (Extraction, error) {
	schema, ok := SchemaFor(req.DocType)
	if !ok {
		return Extraction{}, common.Errorf(common.KindExtractionFailed, "no extraction schema for doc type %q", req.DocType)
	}
	if strings.TrimSpace(req.Text) == "" {
		return Extraction{}, common.Errorf(common.KindExtractionFailed, "no text to extract from")
	}

	requestID := uuid.NewString()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"request_id", requestID,
		"doc_type", req.DocType,
		"model", c.cfg.Model,
		"text_len", len(req.Text))

	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: BuildPrompt(schema, req),
		Stream: false,
		Options: generateOptions{
			Temperature: c.cfg.Temperature,
			NumPredict:  c.cfg.NumPredict,
		},
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("marshal generate request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Extraction{}, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("llm.extract.transport_error", "request_id", requestID, "error", err)
		return Extraction{}, common.NewError(common.KindExtractionUnavailable, "extraction service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("llm.extract.bad_status",
			"request_id", requestID,
			"status", resp.StatusCode,
			"body", string(snippet))
		return Extraction{}, common.Errorf(common.KindExtractionUnavailable,
			"extraction service returned status %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return Extraction{}, common.NewError(common.KindExtractionFailed, "decode generate response", err)
	}

	fields, rawJSON, err := ParseResponse(schema, gen.Response, c.logger)
	if err != nil {
		return Extraction{}, err
	}

	conf, src := confidenceFrom(schema, fields)
	delete(fields, "confidence")

	c.logger.Info("llm.extract.done",
		"request_id", requestID,
		"doc_type", req.DocType,
		"fields", len(fields),
		"confidence", conf,
		"confidence_source", src,
		"duration_ms", time.Since(start).Milliseconds())

	return Extraction{
		Fields:           fields,
		RawJSON:          rawJSON,
		Confidence:       conf,
		ConfidenceSource: src,
	}, nil
}
