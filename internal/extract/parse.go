package extract

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
)

var reFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseResponse turns a model response into schema-conforming fields.
// The ladder, in order:
//  1. strict parse of the (fence-stripped) response, validated against the
//     JSON schema;
//  2. brace-window salvage plus lenient sanitize, re-validated;
//  3. per-field regex recovery from the raw response text.
//
// If nothing can be recovered the whole extraction fails; we never return a
// fabricated empty record.
func ParseResponse(s Schema, response string, logger *slog.Logger) (map[string]any, json.RawMessage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	text := stripFences(strings.TrimSpace(response))
	if text == "" {
		return nil, nil, common.Errorf(common.KindExtractionFailed, "empty model response for %s", s.DocType)
	}
	schemaMap := s.JSONSchema()

	// 1) strict
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err == nil {
		if vErr := ValidateJSONAgainstSchema(schemaMap, []byte(text)); vErr == nil {
			return m, json.RawMessage(text), nil
		}
	}

	// 2) salvage + sanitize
	for _, candidate := range salvageCandidates(text) {
		var cm map[string]any
		if err := json.Unmarshal([]byte(candidate), &cm); err != nil {
			continue
		}
		cleaned, dropped := sanitize(s, cm)
		if len(cleaned) == 0 {
			continue
		}
		bs, err := json.Marshal(cleaned)
		if err != nil {
			continue
		}
		if vErr := ValidateJSONAgainstSchema(schemaMap, bs); vErr == nil {
			if len(dropped) > 0 {
				logger.Warn("extract.parse.sanitize_applied", "doc_type", s.DocType, "dropped", dropped)
			}
			return cleaned, bs, nil
		}
	}

	// 3) regex recovery from the raw text
	recovered := regexRecover(s, response)
	if len(recovered) > 0 {
		cleaned, _ := sanitize(s, recovered)
		if len(cleaned) > 0 {
			bs, err := json.Marshal(cleaned)
			if err == nil {
				logger.Warn("extract.parse.regex_fallback", "doc_type", s.DocType, "fields", len(cleaned))
				return cleaned, bs, nil
			}
		}
	}

	logger.Error("extract.parse.unrecoverable", "doc_type", s.DocType, "response_len", len(response))
	return nil, nil, common.Errorf(common.KindExtractionFailed, "model response for %s is not parseable", s.DocType)
}

func stripFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// salvageCandidates yields the text itself and, when present, the substring
// between the first '{' and the last '}'.
func salvageCandidates(text string) []string {
	out := []string{text}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if win := text[start : end+1]; win != text {
			out = append(out, win)
		}
	}
	return out
}

// sanitize coerces a loosely-typed map toward the schema: drops nulls,
// empties and unknown keys, converts numeric strings for number fields and
// scalars for array fields. Returns the cleaned map and the keys touched.
func sanitize(s Schema, m map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(m))
	var touched []string

	for k, v := range m {
		if k == "confidence" {
			if f, ok := asFloat(v); ok && f >= 0 && f <= 1 {
				out[k] = f
			} else {
				touched = append(touched, k+"(range)")
			}
			continue
		}
		spec, known := s.Field(k)
		if !known {
			touched = append(touched, k+"(unknown)")
			continue
		}
		if v == nil {
			touched = append(touched, k+"(null)")
			continue
		}
		switch spec.Type {
		case TypeNumber:
			if f, ok := asFloat(v); ok {
				out[k] = f
			} else {
				touched = append(touched, k+"(type)")
			}
		case TypeArray:
			if arr, ok := asStringSlice(v); ok && len(arr) > 0 {
				out[k] = arr
			} else {
				touched = append(touched, k+"(type)")
			}
		default:
			switch t := v.(type) {
			case string:
				if tv := strings.TrimSpace(t); tv != "" && !strings.EqualFold(tv, "null") {
					out[k] = tv
				} else {
					touched = append(touched, k+"(empty)")
				}
			case float64:
				out[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(t)
			default:
				touched = append(touched, k+"(type)")
			}
		}
	}
	return out, touched
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer(",", "", "$", "", "£", "", "€", "").Replace(t))
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out, true
	case string:
		// scalar or comma-joined list from a sloppy response
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

// regexRecover pulls individual fields out of a response that never made it
// to valid JSON. Best effort; whatever matches is kept.
func regexRecover(s Schema, raw string) map[string]any {
	out := make(map[string]any)
	for _, f := range s.Fields {
		if v, ok := recoverField(f, raw); ok {
			out[f.Name] = v
		}
	}
	return out
}

func recoverField(f FieldSpec, raw string) (any, bool) {
	name := regexp.QuoteMeta(f.Name)

	// JSON-ish fragments first: "field": "value" / "field": 12.5
	if m := regexp.MustCompile(`"` + name + `"\s*:\s*"([^"]*)"`).FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		return m[1], true
	}
	if m := regexp.MustCompile(`"` + name + `"\s*:\s*(-?\d+(?:\.\d+)?)`).FindStringSubmatch(raw); m != nil {
		if f.Type == TypeNumber {
			v, _ := strconv.ParseFloat(m[1], 64)
			return v, true
		}
		return m[1], true
	}

	// loose label match: "Invoice Number: INV-42"
	label := strings.ReplaceAll(f.Name, "_", `[ _]`)
	if m := regexp.MustCompile(`(?im)\b`+label+`\b\s*[:=-]\s*(\S[^\n"]{0,120})`).FindStringSubmatch(raw); m != nil {
		val := strings.TrimSpace(strings.Trim(m[1], `,"'`))
		if val == "" {
			return nil, false
		}
		if f.Type == TypeNumber {
			if v, ok := asFloat(val); ok {
				return v, true
			}
			return nil, false
		}
		return val, true
	}
	return nil, false
}

// confidenceFrom returns the advisory score and its source. Model-reported
// wins; otherwise coverage: populated schema fields over declared fields.
func confidenceFrom(s Schema, fields map[string]any) (float32, string) {
	if c, ok := fields["confidence"]; ok {
		if f, ok := asFloat(c); ok && f >= 0 && f <= 1 {
			return float32(f), "model"
		}
	}
	if len(s.Fields) == 0 {
		return 0, "coverage"
	}
	populated := 0
	for _, f := range s.Fields {
		if _, ok := fields[f.Name]; ok {
			populated++
		}
	}
	cov := float32(populated) / float32(len(s.Fields))
	if cov > 1 {
		cov = 1
	}
	return cov, "coverage"
}
