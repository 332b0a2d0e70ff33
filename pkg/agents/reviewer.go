package agents

import (
	"context"
	"fmt"
	"strings"

	"devteam/pkg/llm"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

const reviewerSystemPrompt = "You are a reviewer agent. Evaluate the diff and state whether the " +
	"changes are approved. Respond with clear approval or needed changes."

// rejectionMarkers veto an "approve" keyword in the model's verdict.
var rejectionMarkers = []string{"reject", "changes requested", "not approve"}

// Reviewer inspects the changed files and the latest test summary, then emits
// an approval decision as message metadata.
type Reviewer struct {
	Base
}

// NewReviewer creates a reviewer agent.
func NewReviewer(client llm.Client, reg *tools.Registry, store memory.Store, opts llm.Options) *Reviewer {
	return &Reviewer{Base: NewBase(proto.AgentReviewer, "Review agent", client, reg, store, opts)}
}

// Handle implements Agent.
func (r *Reviewer) Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	// A failure-attributed message skips the model: the decision is a
	// deterministic rejection carrying the failure for the next iteration.
	if failure, ok := msg.MetaString(proto.KeyFailure); ok {
		agent, _ := msg.MetaString(proto.KeyFailedAgent)
		comment := fmt.Sprintf("Changes requested: %s failed: %s", agent, failure)
		return r.decide(msg, proto.ApprovalDecision{Approved: false, Comments: []string{comment}}, comment), nil
	}

	diffText, err := r.collectDiffs(ctx, msg)
	if err != nil {
		return nil, err
	}

	user := "Review the following diff:\n" + diffText
	if summary, ok := msg.MetaString(proto.KeyTestSummary); ok {
		user += "\n\nLatest test results:\n" + summary
	}

	response, err := r.complete(ctx, reviewerSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("review generation: %w", err)
	}

	decision := ParseDecision(response)
	return r.decide(msg, decision, strings.TrimSpace(response)), nil
}

func (r *Reviewer) decide(msg *proto.Message, decision proto.ApprovalDecision, content string) []*proto.Message {
	out := outcome(r.id, msg, content)
	decision.Apply(out)
	return []*proto.Message{out}
}

// collectDiffs gathers snapshot-vs-current diffs for every changed file.
func (r *Reviewer) collectDiffs(ctx context.Context, msg *proto.Message) (string, error) {
	files, _ := msg.MetaStrings(proto.KeyFiles)
	if len(files) == 0 {
		return "(no changed files reported)", nil
	}

	var diffs []string
	for _, path := range files {
		out, err := r.useTool(ctx, tools.ToolGetDiff, map[string]any{"path": path})
		if err != nil {
			return "", fmt.Errorf("diff %s: %w", path, err)
		}
		diff, _ := out["diff"].(string)
		if strings.TrimSpace(diff) == "" {
			diff = fmt.Sprintf("No changes detected in %s", path)
		}
		diffs = append(diffs, diff)
	}
	return strings.TrimSpace(strings.Join(diffs, "\n")), nil
}

// ParseDecision extracts an approval verdict from model output. "approve"
// must be present and none of the rejection markers may appear.
func ParseDecision(response string) proto.ApprovalDecision {
	normalized := strings.TrimSpace(response)
	lower := strings.ToLower(normalized)

	approved := strings.Contains(lower, "approve")
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			approved = false
			break
		}
	}
	return proto.ApprovalDecision{Approved: approved, Comments: []string{normalized}}
}
