package adapters

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// schemaProperties returns the tool's JSON-schema properties as plain maps.
// Round-tripping through JSON normalizes the typed option values mcp-go
// stores (for example []string enums) into what provider SDKs expect.
func schemaProperties(tool mcp.Tool) map[string]any {
	props := map[string]any{}
	data, err := json.Marshal(tool.InputSchema.Properties)
	if err != nil {
		return props
	}
	_ = json.Unmarshal(data, &props)
	return props
}

// schemaMap is the full input schema as a JSON object.
func schemaMap(tool mcp.Tool) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": schemaProperties(tool),
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	return schema
}

// decodeInput parses tool-call arguments, treating empty input as {}.
func decodeInput(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
