package constants

import "strings"

// DocType is the canonical document type for uploads, schema lookup and
// stored results. Validation and schema selection both key off AllDocTypes
// so the two can never drift apart.
type DocType string

const (
	Invoice  DocType = "invoice"
	Contract DocType = "contract"
	CRAC     DocType = "crac"
)

// AllDocTypes holds every recognized document type, in display order.
var AllDocTypes = []DocType{Invoice, Contract, CRAC}

// ParseDocType resolves a user-supplied label to a DocType.
func ParseDocType(s string) (DocType, bool) {
	label := DocType(strings.ToLower(strings.TrimSpace(s)))
	for _, dt := range AllDocTypes {
		if dt == label {
			return dt, true
		}
	}
	return "", false
}

// DocTypeStrings returns the recognized labels as plain strings.
func DocTypeStrings() []string {
	out := make([]string, len(AllDocTypes))
	for i, dt := range AllDocTypes {
		out[i] = string(dt)
	}
	return out
}
