package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/dialogforge/core/internal/registry"
)

// validateOutputSchema decodes text as JSON and validates it against the
// named compiled schema, per SPEC_FULL's expanded §4.1: a prompt/invoke
// step carrying output_schema must validate before the handler returns
// success.
func validateOutputSchema(reg *registry.Registry, schemaName, text string) error {
	schema, ok := reg.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("output_schema %q not found", schemaName)
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return fmt.Errorf("output does not match schema %q: not valid JSON: %w", schemaName, err)
	}
	if err := schema.Compiled.Validate(decoded); err != nil {
		return fmt.Errorf("output does not match schema %q: %w", schemaName, err)
	}
	return nil
}

// validateResultSchema validates an already-decoded value (an invoke
// step's return value) against the named compiled schema.
func validateResultSchema(reg *registry.Registry, schemaName string, value any) error {
	schema, ok := reg.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("output_schema %q not found", schemaName)
	}
	if err := schema.Compiled.Validate(value); err != nil {
		return fmt.Errorf("result does not match schema %q: %w", schemaName, err)
	}
	return nil
}
