package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nexous-ai/nexous/internal/config"
)

// ValidateOutput extracts JSON from the LLM content and checks the
// policy's required fields. A ```json fenced block is preferred; failing
// that the whole message is parsed. Problems come back as warnings, never
// as failures, and the raw content stays untouched on the result.
func ValidateOutput(content string, pol *config.OutputPolicy) (map[string]any, []string) {
	raw := content
	if blocks := ExtractCodeBlocks(content, "json"); len(blocks) > 0 {
		raw = blocks[0]
	}

	var output map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &output); err != nil {
		return nil, []string{fmt.Sprintf("output is not valid JSON: %v", err)}
	}
	if len(pol.RequiredFields) == 0 {
		return output, nil
	}

	schema, err := requiredFieldsSchema(pol.RequiredFields)
	if err != nil {
		return output, []string{fmt.Sprintf("required-field check unavailable: %v", err)}
	}
	var warnings []string
	if err := schema.Validate(output); err != nil {
		for _, f := range pol.RequiredFields {
			if _, ok := output[f]; !ok {
				warnings = append(warnings, fmt.Sprintf("required field %q missing from output", f))
			}
		}
		if len(warnings) == 0 {
			warnings = append(warnings, fmt.Sprintf("output failed validation: %v", err))
		}
	}
	return output, warnings
}

// requiredFieldsSchema synthesises a presence-only schema for the fields.
func requiredFieldsSchema(fields []string) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(map[string]any{
		"type":     "object",
		"required": fields,
	})
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString("output_policy.json", string(doc))
}
