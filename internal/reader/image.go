package reader

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

func (r *Reader) extractImage(ctx context.Context, path string) (Extraction, error) {
	txt, warn, err := r.tesseractOCR(ctx, path)
	if err != nil {
		return Extraction{Format: constants.IMAGE, Warnings: warn},
			common.NewError(common.KindUnreadableDocument, fmt.Sprintf("image ocr: %s", filepath.Base(path)), err)
	}
	txt = Normalize(txt)
	if nonSpaceLen(txt) == 0 {
		return Extraction{Format: constants.IMAGE, Warnings: warn},
			common.Errorf(common.KindUnreadableDocument, "no text recovered from %s", filepath.Base(path))
	}

	// compute confidence
	var ocrConf float32
	if r.cfg.EnableTSVConfidence {
		if c, w, err2 := r.tesseractTSVConfidence(ctx, path); err2 == nil {
			ocrConf = c
			warn = append(warn, w...)
		} else {
			warn = append(warn, err2.Error())
		}
	}
	heurConf := heuristicConfidence(txt)

	// blend: weight OCR higher if present
	var conf float32
	if ocrConf > 0 {
		conf = 0.7*ocrConf + 0.3*heurConf
	} else {
		conf = heurConf
	}
	if conf > 1.0 {
		conf = 1.0
	}

	return Extraction{
		Text:       txt,
		Pages:      1,
		Format:     constants.IMAGE,
		Method:     "image-ocr",
		Language:   r.cfg.TesseractLang,
		Warnings:   warn,
		Confidence: conf,
	}, nil
}

func (r *Reader) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, path, "stdout", "-l", r.cfg.TesseractLang)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (r *Reader) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, path, "stdout", "-l", r.cfg.TesseractLang, "tsv")
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	lines := strings.Split(string(out), "\n")
	// columns: level page block par line word left top width height conf text
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean := sum / n // 0..100
	return float32(mean / 100.0), nil, nil
}
