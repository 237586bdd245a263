package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

// stubRunner routes each binary to a canned response.
type stubRunner struct {
	responses map[string]stubResponse
	calls     []string
}

type stubResponse struct {
	stdout string
	err    error
	// onRun lets pdftoppm-style stubs create files as a side effect
	onRun func(args []string)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, name+" "+strings.Join(args, " "))
	resp, ok := s.responses[name]
	if !ok {
		return nil, nil, fmt.Errorf("unexpected command %q", name)
	}
	if resp.onRun != nil {
		resp.onRun(args)
	}
	if resp.err != nil {
		return nil, []byte("stub failure"), resp.err
	}
	return []byte(resp.stdout), nil, nil
}

func newTestReader(t *testing.T, stub *stubRunner) *Reader {
	t.Helper()
	r := NewReader(Config{}, nil)
	r.runner = stub
	return r
}

func TestExtractPDFTextLayer(t *testing.T) {
	pageText := strings.Repeat("Invoice line item 42 \n", 10)
	stub := &stubRunner{responses: map[string]stubResponse{
		"pdftotext": {stdout: pageText},
	}}
	r := newTestReader(t, stub)

	ext, err := r.Extract(context.Background(), "/tmp/inv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", ext.Method)
	assert.Equal(t, constants.PDF, ext.Format)
	assert.Equal(t, 1, ext.Pages)
	assert.Greater(t, ext.Confidence, float32(0))
	// OCR never invoked when the text layer is trusted
	for _, c := range stub.calls {
		assert.NotContains(t, c, "pdftoppm")
	}
}

func TestExtractPDFFallsBackToOCR(t *testing.T) {
	stub := &stubRunner{responses: map[string]stubResponse{
		// trivial text layer forces rasterization
		"pdftotext": {stdout: "  \n\f \n"},
		"pdftoppm": {onRun: func(args []string) {
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			require.NoError(t, os.WriteFile(prefix+"-2.png", []byte("png"), 0o644))
		}},
		"tesseract": {stdout: "Scanned invoice total $42.00 due 2025-01-31"},
	}}
	r := newTestReader(t, stub)

	ext, err := r.Extract(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf-ocr", ext.Method)
	assert.Equal(t, 2, ext.Pages)
	assert.Contains(t, ext.Text, "Scanned invoice")
}

func TestExtractPDFUnreadable(t *testing.T) {
	stub := &stubRunner{responses: map[string]stubResponse{
		"pdftotext": {err: fmt.Errorf("exit status 1")},
		"pdftoppm":  {err: fmt.Errorf("exit status 1")},
	}}
	r := newTestReader(t, stub)

	_, err := r.Extract(context.Background(), "/tmp/broken.pdf")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnreadableDocument))
}

func TestExtractImage(t *testing.T) {
	stub := &stubRunner{responses: map[string]stubResponse{
		"tesseract": {stdout: "Receipt total $12.99 date 2025-05-05"},
	}}
	r := newTestReader(t, stub)

	ext, err := r.Extract(context.Background(), "/tmp/receipt.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image-ocr", ext.Method)
	assert.Equal(t, constants.IMAGE, ext.Format)
	assert.Equal(t, 1, ext.Pages)
}

func TestExtractImageEmptyOCR(t *testing.T) {
	stub := &stubRunner{responses: map[string]stubResponse{
		"tesseract": {stdout: "   \n  "},
	}}
	r := newTestReader(t, stub)

	_, err := r.Extract(context.Background(), "/tmp/blank.png")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnreadableDocument))
}

func TestExtractUnsupportedExtension(t *testing.T) {
	r := newTestReader(t, &stubRunner{})
	_, err := r.Extract(context.Background(), "/tmp/notes.txt")
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnsupportedFormat))
}

func TestExtractDocxMissingFile(t *testing.T) {
	r := newTestReader(t, &stubRunner{})
	_, err := r.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.docx"))
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnreadableDocument))
}

func TestTSVConfidence(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tInvoice\n" +
		"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t80\tTotal\n" +
		"5\t1\t1\t1\t1\t3\t130\t10\t50\t20\t-1\t \n"
	stub := &stubRunner{responses: map[string]stubResponse{
		"tesseract": {stdout: tsv},
	}}
	r := newTestReader(t, stub)

	conf, _, err := r.tesseractTSVConfidence(context.Background(), "/tmp/x.png")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, float64(conf), 1e-6)
}

func TestNormalize(t *testing.T) {
	in := "a\tb \r\nline  two\n\n\n\nend  "
	out := Normalize(in)
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\t")
	assert.NotContains(t, out, "\n\n\n")
}
