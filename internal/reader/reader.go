package reader

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	EnableTSVConfidence bool
}

// Extraction is the normalized output of reading one document.
type Extraction struct {
	Text       string
	Pages      int
	Format     constants.FileFormat
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "docx-text"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// Reader turns an uploaded file into plain text. PDFs and images go through
// OCR tooling; word-processed documents are unpacked directly.
type Reader struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewReader(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Reader{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Extract picks a strategy based on file extension.
func (r *Reader) Extract(ctx context.Context, path string) (Extraction, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	r.logger.Debug("reader.extract.start", "path", path, "ext", ext)

	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err := r.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		res, err := r.extractImage(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.DOCX:
		res, err := r.extractDocx(path)
		res.Duration = time.Since(start)
		return res, err
	default:
		r.logger.Error("reader.extract.unsupported", "extension", ext)
		return Extraction{}, common.Errorf(common.KindUnsupportedFormat, "unsupported extension: %q", ext)
	}
}

// nonSpaceLen counts characters that carry content, used to decide whether
// a PDF text layer is real or just whitespace artifacts.
func nonSpaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r\f\v", r) {
			n++
		}
	}
	return n
}
