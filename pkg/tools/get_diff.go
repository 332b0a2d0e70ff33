package tools

import (
	"context"

	"devteam/pkg/memory"
	"devteam/pkg/workspace"
)

// GetDiffTool renders a unified diff between a file's snapshotted contents
// and its current contents in the workspace. Files without a snapshot diff
// against empty, so newly created files show as pure additions.
type GetDiffTool struct {
	ws    workspace.Workspace
	store memory.Store
}

// NewGetDiffTool creates a get_diff tool backed by ws and the snapshot store.
func NewGetDiffTool(ws workspace.Workspace, store memory.Store) *GetDiffTool {
	return &GetDiffTool{ws: ws, store: store}
}

// Definition returns the tool definition.
func (t *GetDiffTool) Definition() Definition {
	return Definition{
		Name:        ToolGetDiff,
		Description: "Show a unified diff between the snapshotted and current contents of a workspace file.",
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
func (t *GetDiffTool) Exec(_ context.Context, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}

	oldContent, _, err := t.store.Note(memory.SnapshotKey(path))
	if err != nil {
		return nil, err
	}

	newContent := ""
	exists, err := t.ws.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		newContent, err = t.ws.Read(path)
		if err != nil {
			return nil, err
		}
	}

	diff, err := t.ws.Diff(oldContent, newContent, path)
	if err != nil {
		return nil, err
	}

	return jsonResult(map[string]any{
		"success": true,
		"path":    path,
		"diff":    diff,
		"changed": diff != "",
	})
}
