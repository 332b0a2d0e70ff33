// Package agents implements the role-specialized workflow agents: Planner,
// Coder, Tester, Reviewer, and the human-proxy agent. Agents consume one
// message and produce zero or more outgoing messages; they reach every
// external effect through the tool registry and never hold a reference to
// another agent.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"devteam/pkg/llm"
	"devteam/pkg/logx"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// Agent is the contract the orchestrator dispatches messages against.
// Handle must not mutate workflow state; structured outcomes travel as
// message metadata.
type Agent interface {
	ID() string
	Role() string
	Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error)
}

// Base carries the capabilities shared by all agent variants.
type Base struct {
	id     string
	role   string
	llm    llm.Client
	reg    *tools.Registry
	store  memory.Store
	opts   llm.Options
	logger *logx.Logger
}

// NewBase constructs the shared agent core.
func NewBase(id, role string, client llm.Client, reg *tools.Registry, store memory.Store, opts llm.Options) Base {
	return Base{
		id:     id,
		role:   role,
		llm:    client,
		reg:    reg,
		store:  store,
		opts:   opts,
		logger: logx.NewLogger(id),
	}
}

// ID returns the agent identifier.
func (b *Base) ID() string { return b.id }

// Role returns the agent's role description.
func (b *Base) Role() string { return b.role }

// useTool invokes a registered tool and decodes its JSON result.
func (b *Base) useTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	result, err := b.reg.Invoke(ctx, name, args)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(result.Content), &decoded); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", name, err)
	}
	return decoded, nil
}

// complete sends a system+user prompt pair to the language model.
func (b *Base) complete(ctx context.Context, system, user string) (string, error) {
	return b.llm.CompleteChat(ctx, []llm.ChatMessage{
		llm.System(system),
		llm.User(user),
	}, b.opts)
}

// taskID extracts the task correlation ID from a message, defaulting for
// messages created outside a task context.
func taskID(msg *proto.Message) string {
	if id, ok := msg.MetaString(proto.KeyTaskID); ok && id != "" {
		return id
	}
	return "default"
}

// outcome creates a message addressed to the orchestrator, carrying the task
// ID forward for correlation.
func outcome(from string, parent *proto.Message, content string) *proto.Message {
	msg := proto.NewMessage(from, proto.AgentOrchestrator, content)
	msg.ParentID = parent.ID
	msg.SetMeta(proto.KeyTaskID, taskID(parent))
	return msg
}
