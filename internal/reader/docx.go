package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

// extractDocx unpacks a word-processed document directly; no rasterization
// or OCR is involved, so confidence reflects the text itself.
func (r *Reader) extractDocx(path string) (Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extraction{Format: constants.DOCX},
			common.NewError(common.KindUnreadableDocument, fmt.Sprintf("open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Extraction{Format: constants.DOCX},
			common.NewError(common.KindUnreadableDocument, fmt.Sprintf("stat %s", filepath.Base(path)), err)
	}

	doc, err := docx.Parse(f, st.Size())
	if err != nil {
		return Extraction{Format: constants.DOCX},
			common.NewError(common.KindUnreadableDocument, fmt.Sprintf("parse docx %s", filepath.Base(path)), err)
	}

	var b strings.Builder
	for _, it := range doc.Document.Body.Items {
		switch it.(type) {
		case *docx.Paragraph, *docx.Table:
			fmt.Fprintln(&b, it)
		}
	}

	txt := Normalize(b.String())
	if nonSpaceLen(txt) == 0 {
		return Extraction{Format: constants.DOCX},
			common.Errorf(common.KindUnreadableDocument, "no text in %s", filepath.Base(path))
	}
	return Extraction{
		Text:       txt,
		Pages:      1,
		Format:     constants.DOCX,
		Method:     "docx-text",
		Confidence: 0.99, // native text layer, no recognition uncertainty
	}, nil
}
