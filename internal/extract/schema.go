package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
)

// FieldType is the expected JSON type of an extracted field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeArray  FieldType = "array" // array of strings
)

// FieldSpec declares one field the model is asked for.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the per-document-type extraction specification. It drives both
// the prompt sent to the model and the validation of its response.
type Schema struct {
	DocType constants.DocType
	Fields  []FieldSpec
}

// schemas is keyed by the same DocType values constants.ParseDocType
// accepts; SchemaFor refuses anything outside that set, so recognized doc
// types and available schemas cannot diverge.
var schemas = map[constants.DocType]Schema{
	constants.Invoice: {
		DocType: constants.Invoice,
		Fields: []FieldSpec{
			{Name: "invoice_number", Type: TypeString, Required: true},
			{Name: "total_amount", Type: TypeNumber, Required: true},
			{Name: "due_date", Type: TypeString, Required: true},
			{Name: "invoice_date", Type: TypeString},
			{Name: "vendor_name", Type: TypeString},
			{Name: "customer_name", Type: TypeString},
			{Name: "subtotal", Type: TypeNumber},
			{Name: "tax_amount", Type: TypeNumber},
			{Name: "currency", Type: TypeString},
			{Name: "payment_terms", Type: TypeString},
		},
	},
	constants.Contract: {
		DocType: constants.Contract,
		Fields: []FieldSpec{
			{Name: "parties", Type: TypeArray, Required: true},
			{Name: "effective_date", Type: TypeString, Required: true},
			{Name: "term_length", Type: TypeString, Required: true},
			{Name: "contract_title", Type: TypeString},
			{Name: "contract_number", Type: TypeString},
			{Name: "expiration_date", Type: TypeString},
			{Name: "contract_value", Type: TypeNumber},
			{Name: "currency", Type: TypeString},
			{Name: "governing_law", Type: TypeString},
		},
	},
	constants.CRAC: {
		DocType: constants.CRAC,
		Fields: []FieldSpec{
			{Name: "shipment_id", Type: TypeString, Required: true},
			{Name: "origin", Type: TypeString, Required: true},
			{Name: "destination", Type: TypeString, Required: true},
			{Name: "document_number", Type: TypeString},
			{Name: "date_issued", Type: TypeString},
			{Name: "entity_name", Type: TypeString},
			{Name: "risk_rating", Type: TypeString},
			{Name: "compliance_status", Type: TypeString},
			{Name: "reviewer_name", Type: TypeString},
		},
	},
}

// SchemaFor returns the extraction schema for a recognized doc type.
func SchemaFor(dt constants.DocType) (Schema, bool) {
	s, ok := schemas[dt]
	return s, ok
}

// FieldNames returns the declared field names in schema order.
func (s Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field spec by name.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// JSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We include it in the model instruction and also use it locally to validate.
func (s Schema) JSONSchema() map[string]any {
	props := map[string]any{
		// harmless if the model reports one; surfaced as advisory confidence
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}
	var required []string
	for _, f := range s.Fields {
		switch f.Type {
		case TypeNumber:
			props[f.Name] = map[string]any{"type": "number"}
		case TypeArray:
			props[f.Name] = map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			}
		default:
			props[f.Name] = map[string]any{"type": "string", "minLength": 1}
		}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
