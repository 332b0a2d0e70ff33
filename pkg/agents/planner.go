package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"devteam/pkg/llm"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

const plannerSystemPrompt = "You are a planning agent. Break the task into clear, actionable steps."

// Planner decomposes a task description into an ordered step plan and hands
// it to the Coder.
type Planner struct {
	Base
}

// NewPlanner creates a planner agent.
func NewPlanner(client llm.Client, reg *tools.Registry, store memory.Store, opts llm.Options) *Planner {
	return &Planner{Base: NewBase(proto.AgentPlanner, "Planning agent", client, reg, store, opts)}
}

// Handle implements Agent.
func (p *Planner) Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	user := fmt.Sprintf("Create an ordered list of steps to implement the following task:\n%s", msg.Content)
	response, err := p.complete(ctx, plannerSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	steps := ParsePlan(response)
	if err := p.store.SaveNote(memory.PlanKey(taskID(msg)), strings.TrimSpace(response)); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}

	out := proto.NewMessage(p.id, proto.AgentCoder, "Implement the following plan:\n"+formatSteps(steps))
	out.ParentID = msg.ID
	out.SetMeta(proto.KeyTaskID, taskID(msg))
	out.SetMeta(proto.KeyPlanSteps, steps)
	return []*proto.Message{out}, nil
}

// stepDecoration matches leading bullet or numbered-list markers.
var stepDecoration = regexp.MustCompile(`^\s*(?:[-*]+|\d+[.)])\s*`)

// ParsePlan extracts plan steps from LLM output, stripping list decoration.
// An unparseable response yields a single-step plan of the raw text.
func ParsePlan(response string) []string {
	var steps []string
	for _, line := range strings.Split(response, "\n") {
		step := strings.TrimSpace(stepDecoration.ReplaceAllString(line, ""))
		if step != "" {
			steps = append(steps, step)
		}
	}
	if len(steps) == 0 {
		steps = []string{strings.TrimSpace(response)}
	}
	return steps
}

func formatSteps(steps []string) string {
	var b strings.Builder
	for _, step := range steps {
		b.WriteString("- ")
		b.WriteString(step)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
