package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

func invoiceSchema(t *testing.T) Schema {
	t.Helper()
	s, ok := SchemaFor(constants.Invoice)
	require.True(t, ok)
	return s
}

func TestParseResponseStrict(t *testing.T) {
	s := invoiceSchema(t)
	fields, raw, err := ParseResponse(s, `{"invoice_number":"INV-42","total_amount":199.99,"due_date":"2025-09-01"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "INV-42", fields["invoice_number"])
	assert.Equal(t, 199.99, fields["total_amount"])
	assert.NotEmpty(t, raw)
}

func TestParseResponseFenced(t *testing.T) {
	s := invoiceSchema(t)
	resp := "```json\n{\"invoice_number\":\"INV-1\",\"total_amount\":10,\"due_date\":\"2025-01-01\"}\n```"
	fields, _, err := ParseResponse(s, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", fields["invoice_number"])
}

func TestParseResponseBraceWindow(t *testing.T) {
	s := invoiceSchema(t)
	resp := `Sure! Here is the extracted data:
{"invoice_number":"INV-7","total_amount":55.5,"due_date":"2025-03-15"}
Let me know if you need anything else.`
	fields, _, err := ParseResponse(s, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", fields["invoice_number"])
	assert.Equal(t, 55.5, fields["total_amount"])
}

func TestParseResponseSanitizeCoercions(t *testing.T) {
	s := invoiceSchema(t)
	// number as currency string, null optional, unknown key
	resp := `{"invoice_number":"INV-9","total_amount":"$1,234.56","due_date":"2025-06-30","vendor_name":null,"shoe_size":"44"}`
	fields, _, err := ParseResponse(s, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, 1234.56, fields["total_amount"])
	assert.NotContains(t, fields, "vendor_name")
	assert.NotContains(t, fields, "shoe_size")
}

func TestParseResponseScalarForArrayField(t *testing.T) {
	s, ok := SchemaFor(constants.Contract)
	require.True(t, ok)
	resp := `{"parties":"Acme Corp, Globex Inc","effective_date":"2025-01-01","term_length":"24 months"}`
	fields, _, err := ParseResponse(s, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Globex Inc"}, toStrings(t, fields["parties"]))
}

func TestParseResponseRegexFallback(t *testing.T) {
	s := invoiceSchema(t)
	resp := `I could not produce JSON, but here is what I found:
invoice_number: INV-88
total_amount: 420.00
due_date: 2025-12-01`
	fields, _, err := ParseResponse(s, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, "INV-88", fields["invoice_number"])
	assert.Equal(t, 420.0, fields["total_amount"])
}

func TestParseResponseUnrecoverable(t *testing.T) {
	s := invoiceSchema(t)
	_, _, err := ParseResponse(s, "I have no idea what this document is.", nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindExtractionFailed))
}

func TestParseResponseEmpty(t *testing.T) {
	s := invoiceSchema(t)
	_, _, err := ParseResponse(s, "   ", nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindExtractionFailed))
}

func TestConfidenceFromModel(t *testing.T) {
	s := invoiceSchema(t)
	conf, src := confidenceFrom(s, map[string]any{"confidence": 0.87, "invoice_number": "x"})
	assert.Equal(t, "model", src)
	assert.InDelta(t, 0.87, float64(conf), 1e-6)
}

func TestConfidenceFromCoverage(t *testing.T) {
	s := invoiceSchema(t)
	conf, src := confidenceFrom(s, map[string]any{
		"invoice_number": "x",
		"total_amount":   1.0,
		"due_date":       "2025-01-01",
	})
	assert.Equal(t, "coverage", src)
	assert.InDelta(t, 3.0/float64(len(s.Fields)), float64(conf), 1e-6)
}

func TestConfidenceOutOfRangeFallsBack(t *testing.T) {
	s := invoiceSchema(t)
	_, src := confidenceFrom(s, map[string]any{"confidence": 4.2})
	assert.Equal(t, "coverage", src)
}

func toStrings(t *testing.T, v any) []string {
	t.Helper()
	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			require.True(t, ok)
			out = append(out, s)
		}
		return out
	}
	t.Fatalf("not a string slice: %T", v)
	return nil
}
