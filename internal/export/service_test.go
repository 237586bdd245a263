package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/store"
)

func TestExportResultsXLSX(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Save(ctx, &entity.Result{
		ID:             uuid.NewString(),
		FileName:       "inv.pdf",
		DocType:        constants.Invoice,
		StructuredData: []byte(`{"invoice_number":"INV-1","total_amount":10}`),
		Confidence:     0.9,
		PageCount:      1,
		ProcessedAt:    time.Now().UTC(),
	}))
	require.NoError(t, st.Save(ctx, &entity.Result{
		ID:          uuid.NewString(),
		FileName:    "contract.docx",
		DocType:     constants.Contract,
		ProcessedAt: time.Now().UTC(),
	}))

	svc := NewService(st, nil)

	data, err := svc.ExportResultsXLSX(ctx, "")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two results")
	assert.Equal(t, "Processed At", rows[0][0])

	// filtered export keeps only the matching doc type
	data, err = svc.ExportResultsXLSX(ctx, constants.Invoice)
	require.NoError(t, err)
	f2, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f2.Close()
	rows, err = f2.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], "inv.pdf")
}
