package agents

import (
	"context"

	"devteam/pkg/llm"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// DecisionFunc resolves an approval request into a decision. The CLI wires an
// interactive terminal prompt; tests and autonomous runs wire a constant.
type DecisionFunc func(ctx context.Context, msg *proto.Message) (proto.ApprovalDecision, error)

// AutoApprove approves every request.
func AutoApprove(context.Context, *proto.Message) (proto.ApprovalDecision, error) {
	return proto.ApprovalDecision{Approved: true}, nil
}

// UserProxy represents the human in the loop. It owns no model; it answers
// approval requests through an injected decision source.
type UserProxy struct {
	Base
	decide DecisionFunc
}

// NewUserProxy creates a human-proxy agent. A nil decide auto-approves.
func NewUserProxy(client llm.Client, reg *tools.Registry, store memory.Store, decide DecisionFunc) *UserProxy {
	if decide == nil {
		decide = AutoApprove
	}
	return &UserProxy{
		Base:   NewBase(proto.AgentUserProxy, "Human proxy agent", client, reg, store, llm.Options{}),
		decide: decide,
	}
}

// Handle implements Agent.
func (u *UserProxy) Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	decision, err := u.decide(ctx, msg)
	if err != nil {
		return nil, err
	}

	content := "Rejected"
	if decision.Approved {
		content = "Approved"
	}
	out := outcome(u.id, msg, content)
	decision.Apply(out)
	if approvalID, ok := msg.MetaString(proto.KeyApprovalID); ok {
		out.SetMeta(proto.KeyApprovalID, approvalID)
	}
	return []*proto.Message{out}, nil
}
