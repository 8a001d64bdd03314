package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles a single JSON Schema document and validates
// decoded JSON values against it. Each enrichment stage that extracts
// structured data from oracle output (entities, classification, priority
// rationale) gets its own SchemaValidator so a malformed or
// schema-noncompliant oracle reply is caught before it's accepted,
// matching the validation_failure taxonomy entry in the error design.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles schemaJSON (a JSON Schema document) under id, a
// synthetic URL used only to key the compiler's internal resource map.
func CompileSchema(id, schemaJSON string) (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "https://cybertip.local/schemas/" + id + ".json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("harness: add schema resource %s: %w", id, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("harness: compile schema %s: %w", id, err)
	}
	return &SchemaValidator{schema: compiled}, nil
}

// ValidateJSON re-decodes raw into an untyped value (as jsonschema.Validate
// requires) and checks it against the compiled schema.
func (v *SchemaValidator) ValidateJSON(raw string) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("harness: schema validation decode: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("harness: schema validation failed: %w", err)
	}
	return nil
}

// ExtractValidated extracts a JSON object via ExtractJSON, validates it
// against schema, then unmarshals it into out. It returns the first error
// encountered among extraction, validation, or the final unmarshal.
func ExtractValidated(raw string, schema *SchemaValidator, out any) error {
	var extracted json.RawMessage
	if err := ExtractJSON(raw, &extracted); err != nil {
		return err
	}
	if schema != nil {
		if err := schema.ValidateJSON(string(extracted)); err != nil {
			return err
		}
	}
	return json.Unmarshal(extracted, out)
}
