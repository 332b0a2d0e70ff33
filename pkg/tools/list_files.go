package tools

import (
	"context"

	"devteam/pkg/workspace"
)

// ListFilesTool lists workspace files matching a glob pattern.
type ListFilesTool struct {
	ws workspace.Workspace
}

// NewListFilesTool creates a list_files tool backed by ws.
func NewListFilesTool(ws workspace.Workspace) *ListFilesTool {
	return &ListFilesTool{ws: ws}
}

// Definition returns the tool definition.
func (t *ListFilesTool) Definition() Definition {
	return Definition{
		Name:        ToolListFiles,
		Description: "List files in the workspace matching a glob pattern such as '**/*.go'. Defaults to all files.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"pattern": {
					Type:        "string",
					Description: "Glob pattern relative to the workspace root. Defaults to '**/*'.",
				},
			},
		},
	}
}

// Exec implements Tool.
func (t *ListFilesTool) Exec(_ context.Context, args map[string]any) (*Result, error) {
	pattern := stringArgOrDefault(args, "pattern", "**/*")

	files, err := t.ws.List(pattern)
	if err != nil {
		return errorResult("invalid pattern or unreadable workspace: " + err.Error())
	}

	return jsonResult(map[string]any{
		"success": true,
		"pattern": pattern,
		"files":   files,
		"count":   len(files),
	})
}
