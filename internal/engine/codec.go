package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DecodeToolArguments parses a raw JSON argument string from the LLM into a
// map. Invalid JSON never fails the outer run -- it returns an empty map and
// leaves field-level validation to the tool adapter, matching the teacher's
// own "never let a malformed tool call blow up the loop" posture in
// executor.go's panic-recovery wrapper.
func DecodeToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	if out == nil {
		return map[string]any{}
	}
	return out
}

// ValidateToolArguments checks decoded arguments against a tool's JSON
// Schema, when one is supplied. An empty schema always validates -- schema
// validation is an added safety net over the codec's permissive decode, not
// a replacement for it; the outer run is never failed by a schema mismatch,
// the caller turns it into a tool-error message instead.
func ValidateToolArguments(schemaText string, args map[string]any) error {
	if schemaText == "" {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", mustReader(schemaText)); err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}
	return schema.ValidateInterface(args)
}

func mustReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
