package tools

import (
	"context"

	"devteam/pkg/workspace"
)

// FileExistsTool reports whether a workspace file exists.
type FileExistsTool struct {
	ws workspace.Workspace
}

// NewFileExistsTool creates a file_exists tool backed by ws.
func NewFileExistsTool(ws workspace.Workspace) *FileExistsTool {
	return &FileExistsTool{ws: ws}
}

// Definition returns the tool definition.
func (t *FileExistsTool) Definition() Definition {
	return Definition{
		Name:        ToolFileExists,
		Description: "Check whether a file exists in the workspace.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to file within workspace",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Exec implements Tool.
func (t *FileExistsTool) Exec(_ context.Context, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}

	exists, err := t.ws.Exists(path)
	if err != nil {
		return nil, err
	}

	return jsonResult(map[string]any{
		"success": true,
		"path":    path,
		"exists":  exists,
	})
}
