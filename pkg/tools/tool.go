// Package tools provides the tool registry and the built-in workspace,
// execution, and diff tools exposed to agents.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Property describes a single input parameter in a tool schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InputSchema is a JSON-schema-shaped description of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Definition describes a tool for discovery and for LLM prompt rendering.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Result is the outcome of a tool invocation. Content is a JSON document so
// agents can fold it into prompts verbatim.
type Result struct {
	Content string `json:"content"`
}

// Tool is a capability an agent can invoke through the registry. Exec returns
// an error only for infrastructure failures; domain-level failures (file not
// found, command exited non-zero) are reported inside the Result so agents can
// reason about them.
type Tool interface {
	Definition() Definition
	Exec(ctx context.Context, args map[string]any) (*Result, error)
}

// Tool name constants.
const (
	ToolRunCommand = "run_command"
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"
	ToolListFiles  = "list_files"
	ToolFileExists = "file_exists"
	ToolGetDiff    = "get_diff"
)

// jsonResult marshals fields into a Result.
func jsonResult(fields map[string]any) (*Result, error) {
	content, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &Result{Content: string(content)}, nil
}

// errorResult creates a Result carrying a domain-level failure.
func errorResult(msg string) (*Result, error) {
	return jsonResult(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

// stringSliceArg extracts an optional string-slice argument. Handles both
// []string and []any (from JSON decoding). The boolean reports presence.
func stringSliceArg(args map[string]any, key string) ([]string, bool, error) {
	v, ok := args[key]
	if !ok {
		return nil, false, nil
	}
	switch val := v.(type) {
	case []string:
		return val, true, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false, fmt.Errorf("%s must be an array of strings", key)
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("%s must be an array of strings", key)
	}
}

// stringArgOrDefault extracts an optional string argument.
func stringArgOrDefault(args map[string]any, key, defaultVal string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

// intArgOrDefault extracts an optional integer argument. Handles float64
// (from JSON unmarshal), int, and int64 value types.
func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}
