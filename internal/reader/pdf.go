package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

// Minimum content characters per page for a PDF text layer to be trusted.
// Below this the PDF is treated as scanned and rasterized for OCR.
const minTextLayerCharsPerPage = 32

func (r *Reader) extractPDF(ctx context.Context, path string) (Extraction, error) {
	text, pages, warns, err := r.pdfToText(ctx, path)
	if err == nil && pages > 0 && nonSpaceLen(text) >= minTextLayerCharsPerPage*pages {
		txt := Normalize(text)
		return Extraction{
			Text:       txt,
			Pages:      pages,
			Format:     constants.PDF,
			Method:     "pdf-text",
			Language:   r.cfg.TesseractLang,
			Warnings:   warns,
			Confidence: heuristicConfidence(txt),
		}, nil
	}
	if err != nil {
		r.logger.Warn("reader.pdf.text_layer_failed", "path", path, "error", err)
		warns = append(warns, err.Error())
	} else {
		r.logger.Debug("reader.pdf.text_layer_trivial", "path", path, "pages", pages)
	}

	text, pages, ocrWarns, err := r.pdfToOCR(ctx, path)
	warns = append(warns, ocrWarns...)
	if err != nil {
		return Extraction{Format: constants.PDF, Warnings: warns},
			common.NewError(common.KindUnreadableDocument, fmt.Sprintf("pdf ocr: %s", filepath.Base(path)), err)
	}
	txt := Normalize(text)
	if nonSpaceLen(txt) == 0 {
		return Extraction{Format: constants.PDF, Warnings: warns},
			common.Errorf(common.KindUnreadableDocument, "no text recovered from %s", filepath.Base(path))
	}
	return Extraction{
		Text:       txt,
		Pages:      pages,
		Format:     constants.PDF,
		Method:     "pdf-ocr",
		Language:   r.cfg.TesseractLang,
		Warnings:   warns,
		Confidence: heuristicConfidence(txt),
	}, nil
}

func (r *Reader) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := r.runner.Run(ctx, r.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = string(out)
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

func (r *Reader) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "dv-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func(dir string) {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			r.logger.Warn("reader.pdf.tmp_cleanup_failed", "dir", dir, "error", rmErr)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", r.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, w, ocrErr := r.tesseractOCR(ctx, img)
		if ocrErr != nil {
			warns = append(warns, ocrErr.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), len(matches), warns, nil
}
