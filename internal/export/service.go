package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/store"
)

// Service is a tiny façade over the store that produces XLSX bytes for exports.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ExportResultsXLSX returns an XLSX workbook (as bytes) of processed results,
// optionally filtered to one doc type. Structured fields are flattened to a
// "key: value" list per row.
func (s *Service) ExportResultsXLSX(ctx context.Context, docType constants.DocType) ([]byte, error) {
	start := time.Now()

	recs, err := s.store.List(ctx, docType)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Results"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Processed At",
		"File Name",
		"Doc Type",
		"Confidence",
		"Pages",
		"Processing (ms)",
		"Extracted Fields",
		"Summary Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.ProcessedAt.Format("2006-01-02 15:04:05"))
		write(2, r.FileName)
		write(3, string(r.DocType))
		write(4, fmt.Sprintf("%.2f", r.Confidence))
		write(5, r.PageCount)
		write(6, r.ProcessingMS)
		write(7, truncate(flattenFields(r), 500))
		write(8, r.OutputPath)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 32) // file
	_ = f.SetColWidth(sheet, "C", "C", 12) // type
	_ = f.SetColWidth(sheet, "D", "F", 12) // numbers
	_ = f.SetColWidth(sheet, "G", "G", 64) // fields
	_ = f.SetColWidth(sheet, "H", "H", 48) // path

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"doc_type", string(docType),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func flattenFields(r *entity.Result) string {
	fields, err := r.Fields()
	if err != nil || len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		if out != "" {
			out += "; "
		}
		out += fmt.Sprintf("%s: %v", k, fields[k])
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
