package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fumiama/go-docx"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/extract"
)

const maxRenderedTextChars = 20000

// Generator writes per-document docx summaries into OutputDir.
type Generator struct {
	outputDir string
	logger    *slog.Logger
}

// NewGenerator builds a Generator. The directory is created on first render.
func NewGenerator(outputDir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{outputDir: outputDir, logger: logger}
}

// Render produces a summary document for the result and returns the path it
// was written to. Names never collide: an existing file pushes the new one
// to a numbered variant.
func (g *Generator) Render(r *entity.Result) (string, error) {
	start := time.Now()
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", common.NewError(common.KindRenderFailed, "create output directory", err)
	}

	doc := docx.New().WithDefaultTheme()

	title := doc.AddParagraph()
	title.AddText(summaryTitle(r.DocType)).Size("32").Bold()

	meta := doc.AddParagraph()
	meta.AddText(fmt.Sprintf("Source file: %s", r.FileName))
	doc.AddParagraph().AddText(fmt.Sprintf("Processed: %s", r.ProcessedAt.Format("2006-01-02 15:04:05 MST")))
	doc.AddParagraph().AddText(fmt.Sprintf("Confidence: %.0f%%", r.Confidence*100))
	doc.AddParagraph().AddText(fmt.Sprintf("Pages: %d", r.PageCount))
	doc.AddParagraph()

	fieldsHdr := doc.AddParagraph()
	fieldsHdr.AddText("Extracted Fields").Size("28").Bold()

	fields, err := r.Fields()
	if err != nil {
		return "", common.NewError(common.KindRenderFailed, "decode structured data", err)
	}
	for _, name := range orderedFieldNames(r, fields) {
		v, ok := fields[name]
		if !ok {
			continue
		}
		doc.AddParagraph().AddText(fmt.Sprintf("%s: %s", fieldLabel(name), formatValue(v)))
	}
	doc.AddParagraph()

	textHdr := doc.AddParagraph()
	textHdr.AddText("Document Text").Size("28").Bold()
	txt := r.RawText
	if len(txt) > maxRenderedTextChars {
		txt = truncateOnRune(txt, maxRenderedTextChars) + "\n[truncated]"
	}
	for _, line := range strings.Split(txt, "\n") {
		doc.AddParagraph().AddText(line)
	}

	outPath := g.uniquePath(r.FileName)
	f, err := os.Create(outPath)
	if err != nil {
		return "", common.NewError(common.KindRenderFailed, fmt.Sprintf("create %s", filepath.Base(outPath)), err)
	}
	defer f.Close()
	if _, err := doc.WriteTo(f); err != nil {
		os.Remove(outPath)
		return "", common.NewError(common.KindRenderFailed, "write docx", err)
	}

	g.logger.Info("render.done",
		"result_id", r.ID,
		"output", filepath.Base(outPath),
		"duration_ms", time.Since(start).Milliseconds())
	return outPath, nil
}

func summaryTitle(dt constants.DocType) string {
	switch dt {
	case constants.CRAC:
		return "Credit Risk Assessment Summary"
	default:
		return fieldLabel(string(dt)) + " Summary"
	}
}

// uniquePath derives base_summary.docx from the source name, appending a
// counter while a file with that name already exists.
func (g *Generator) uniquePath(sourceName string) string {
	base := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	if base == "" {
		base = "document"
	}
	candidate := filepath.Join(g.outputDir, base+"_summary.docx")
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(g.outputDir, fmt.Sprintf("%s_summary_%d.docx", base, i))
	}
}

// orderedFieldNames lists schema fields first, in declaration order, then
// any remaining keys sorted.
func orderedFieldNames(r *entity.Result, fields map[string]any) []string {
	seen := make(map[string]bool, len(fields))
	var out []string
	if s, ok := extract.SchemaFor(r.DocType); ok {
		for _, name := range s.FieldNames() {
			if _, present := fields[name]; present {
				out = append(out, name)
				seen[name] = true
			}
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func fieldLabel(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// truncateOnRune cuts s to at most max bytes without splitting a rune.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, formatValue(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
