package tools

import (
	"context"
	"errors"
	"strings"

	"devteam/pkg/workspace"
)

const (
	defaultReadLines = 2000
	maxLineLength    = 2000
)

// ReadFileTool reads file contents from the workspace.
type ReadFileTool struct {
	ws workspace.Workspace
}

// NewReadFileTool creates a read_file tool backed by ws.
func NewReadFileTool(ws workspace.Workspace) *ReadFileTool {
	return &ReadFileTool{ws: ws}
}

// Definition returns the tool definition.
func (t *ReadFileTool) Definition() Definition {
	return Definition{
		Name:        ToolReadFile,
		Description: "Read contents of a file from the workspace. For large files, use offset and limit to read specific sections.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"path": {
					Type:        "string",
					Description: "Relative path to file within workspace",
				},
				"offset": {
					Type:        "integer",
					Description: "Line number to start reading from (1-based). Defaults to 1.",
				},
				"limit": {
					Type:        "integer",
					Description: "Number of lines to read. Defaults to 2000.",
				},
			},
			Required: []string{"path"},
		},
	}
}

// Exec implements Tool.
func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (*Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	offset := intArgOrDefault(args, "offset", 1)
	limit := intArgOrDefault(args, "limit", defaultReadLines)

	content, err := t.ws.Read(path)
	if err != nil {
		if errors.Is(err, workspace.ErrPathEscape) {
			return nil, err
		}
		return errorResult("file not found or not readable: " + path)
	}

	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	truncated := false

	end := offset - 1 + limit
	if end > totalLines {
		end = totalLines
	} else if end < totalLines {
		truncated = true
	}
	if offset-1 >= totalLines {
		lines = nil
	} else {
		lines = lines[offset-1 : end]
	}

	for i, line := range lines {
		if len(line) > maxLineLength {
			lines[i] = line[:maxLineLength]
			truncated = true
		}
	}

	return jsonResult(map[string]any{
		"success":     true,
		"path":        path,
		"content":     strings.Join(lines, "\n"),
		"offset":      offset,
		"limit":       limit,
		"total_lines": totalLines,
		"truncated":   truncated,
	})
}
