package tools

import (
	"context"
	"errors"

	"devteam/pkg/workspace"
)

// SnapshotFunc records the prior contents of a file before it is overwritten.
// It is called only when the file already exists.
type SnapshotFunc func(path, oldContent string) error

// WriteFileTool writes file contents into the workspace, snapshotting the
// previous contents first so a change can be reviewed or reverted.
type WriteFileTool struct {
	ws       workspace.Workspace
	snapshot SnapshotFunc
}

// NewWriteFileTool creates a write_file tool backed by ws. snapshot may be nil.
func NewWriteFileTool(ws workspace.Workspace, snapshot SnapshotFunc) *WriteFileTool {
	return &WriteFileTool{ws: ws, snapshot: snapshot}
}

// Definition returns the tool definition.
func (t *WriteFileTool) Definition() Definition {
	return Definition{
		Name:        ToolWriteFile,
		Description: "Write contents to a file in the workspace, creating parent directories as needed. The previous contents are snapshotted before overwrite.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to file within workspace",
				},
				"content": {
					Type:        "string",
					Description: "Full new contents of the file",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

// Exec implements Tool.
func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}

	existed, err := t.ws.Exists(path)
	if err != nil {
		return nil, err
	}
	if existed && t.snapshot != nil {
		old, readErr := t.ws.Read(path)
		if readErr != nil {
			return nil, readErr
		}
		if snapErr := t.snapshot(path, old); snapErr != nil {
			return nil, snapErr
		}
	}

	if err := t.ws.Write(path, content); err != nil {
		if errors.Is(err, workspace.ErrReadOnly) {
			return errorResult("workspace is read-only; writes are not permitted")
		}
		return nil, err
	}

	return jsonResult(map[string]any{
		"success": true,
		"path":    path,
		"created": !existed,
		"bytes":   len(content),
	})
}
