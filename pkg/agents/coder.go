package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devteam/pkg/llm"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// ErrNoFileUpdates signals a model response that contained no parseable file
// updates. The orchestrator treats it as a recoverable coder failure.
var ErrNoFileUpdates = errors.New("no file updates found in model response")

const coderSystemPrompt = "You are a coding agent. Respond only with file updates using the format:\n" +
	"FILE: path\nCODE:\n<full file content>"

// maxListedFiles caps how many workspace paths are folded into the prompt.
const maxListedFiles = 200

// FileUpdate is one full-content file change parsed from a model response.
type FileUpdate struct {
	Path    string
	Content string
}

// Coder applies model-generated code changes to the workspace through the
// write_file tool, which snapshots prior contents for review.
type Coder struct {
	Base
}

// NewCoder creates a coder agent.
func NewCoder(client llm.Client, reg *tools.Registry, store memory.Store, opts llm.Options) *Coder {
	return &Coder{Base: NewBase(proto.AgentCoder, "Coding agent", client, reg, store, opts)}
}

// Handle implements Agent.
func (c *Coder) Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	listing, err := c.listWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	user := fmt.Sprintf("Instruction: %s\nExisting files: %s\nProvide full file contents for any files you modify.",
		msg.Content, listing)
	response, err := c.complete(ctx, coderSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("code generation: %w", err)
	}

	updates := ParseFileUpdates(response)
	if len(updates) == 0 {
		return nil, ErrNoFileUpdates
	}

	changed := make([]string, 0, len(updates))
	for _, update := range updates {
		out, err := c.useTool(ctx, tools.ToolWriteFile, map[string]any{
			"path":    update.Path,
			"content": update.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("apply update to %s: %w", update.Path, err)
		}
		if success, _ := out["success"].(bool); !success {
			errText, _ := out["error"].(string)
			return nil, fmt.Errorf("apply update to %s: %s", update.Path, errText)
		}
		changed = append(changed, update.Path)
	}

	done := outcome(c.id, msg, "Updated files: "+strings.Join(changed, ", "))
	done.SetMeta(proto.KeyFiles, changed)
	return []*proto.Message{done}, nil
}

func (c *Coder) listWorkspace(ctx context.Context) (string, error) {
	out, err := c.useTool(ctx, tools.ToolListFiles, map[string]any{"pattern": "**/*"})
	if err != nil {
		return "", fmt.Errorf("list workspace: %w", err)
	}
	raw, _ := out["files"].([]any)
	files := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			files = append(files, s)
		}
		if len(files) >= maxListedFiles {
			break
		}
	}
	if len(files) == 0 {
		return "(empty workspace)", nil
	}
	return strings.Join(files, ", "), nil
}

// ParseFileUpdates parses FILE:/CODE: blocks out of a model response.
func ParseFileUpdates(response string) []FileUpdate {
	var updates []FileUpdate
	var currentPath string
	var buffer []string

	flush := func() {
		if currentPath == "" {
			return
		}
		content := strings.TrimRight(strings.Join(buffer, "\n"), "\n") + "\n"
		updates = append(updates, FileUpdate{Path: currentPath, Content: content})
	}

	for _, line := range strings.Split(response, "\n") {
		if strings.HasPrefix(line, "FILE:") {
			flush()
			currentPath = strings.TrimSpace(strings.TrimPrefix(line, "FILE:"))
			buffer = nil
			continue
		}
		if strings.HasPrefix(line, "CODE:") {
			continue
		}
		buffer = append(buffer, line)
	}
	flush()
	return updates
}
