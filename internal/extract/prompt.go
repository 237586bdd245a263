package extract

import (
	"strings"
	"unicode/utf8"
)

const maxPromptTextChars = 8000

// BuildPrompt composes the schema-constrained instruction plus the document
// text. The field list and the JSON-Schema the response is validated against
// come from the same Schema, so the model is asked for exactly what the
// validator will accept.
func BuildPrompt(s Schema, req Request) string {
	var b strings.Builder

	b.WriteString("You are a document data extraction system. Analyze the following ")
	b.WriteString(string(s.DocType))
	b.WriteString(" text and extract the fields below into a JSON object. ")
	b.WriteString("Output ONLY valid JSON, no markdown fences or explanation. ")
	b.WriteString("If a field is not present in the document, omit it. Never output null.\n\n")

	b.WriteString("Fields to extract:\n")
	for _, f := range s.Fields {
		b.WriteString("  ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		switch f.Type {
		case TypeNumber:
			b.WriteString("number")
		case TypeArray:
			b.WriteString("array of strings")
		default:
			b.WriteString("string")
		}
		if f.Required {
			b.WriteString(" (required)")
		}
		b.WriteString("\n")
	}
	b.WriteString("  confidence: number between 0 and 1 estimating extraction quality (optional)\n")

	if hint := strings.TrimSpace(req.FilenameHint); hint != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(hint)
		b.WriteString("\n")
	}

	txt := strings.TrimSpace(req.Text)
	b.WriteString("\nDocument text")
	if len(txt) > maxPromptTextChars {
		b.WriteString(" (truncated)")
		txt = truncateOnRune(txt, maxPromptTextChars)
	}
	b.WriteString(":\n")
	b.WriteString(txt)
	return b.String()
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
