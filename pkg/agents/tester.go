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

const testerSystemPrompt = "You are a testing agent. Summarize test output concisely, " +
	"naming the failing commands and the most likely causes."

// Tester runs the configured test commands through the run_command tool and
// reports a pass/fail verdict with a summary.
type Tester struct {
	Base
	commands [][]string
}

// NewTester creates a tester agent running commands in order. Each command is
// an argv vector; all must exit zero for the run to pass.
func NewTester(client llm.Client, reg *tools.Registry, store memory.Store, opts llm.Options, commands [][]string) *Tester {
	if len(commands) == 0 {
		commands = [][]string{{"go", "test", "./..."}}
	}
	return &Tester{
		Base:     NewBase(proto.AgentTester, "Testing agent", client, reg, store, opts),
		commands: commands,
	}
}

// Handle implements Agent.
func (t *Tester) Handle(ctx context.Context, msg *proto.Message) ([]*proto.Message, error) {
	passed := true
	var report strings.Builder
	report.WriteString("Test results:\n")

	for _, command := range t.commands {
		line := strings.Join(command, " ")
		// Commands are argv vectors; passing them through as-is keeps
		// elements containing spaces intact instead of re-tokenizing.
		out, err := t.useTool(ctx, tools.ToolRunCommand, map[string]any{"argv": command})
		if err != nil {
			// Infrastructure failures (sandbox unavailable) must abort the
			// task, not read as a failing test.
			return nil, fmt.Errorf("run %q: %w", line, err)
		}

		success, _ := out["success"].(bool)
		if !success {
			passed = false
		}
		report.WriteString(fmt.Sprintf("- %s: %s\n", line, passFail(success)))
		if !success {
			report.WriteString(indentOutput(out))
		}
	}
	report.WriteString("Overall status: " + passFail(passed))

	summary := t.summarize(ctx, report.String())

	result := outcome(t.id, msg, summary)
	result.SetMeta(proto.KeyTestsPassed, passed)
	result.SetMeta(proto.KeyTestSummary, summary)
	if files, ok := msg.MetaStrings(proto.KeyFiles); ok {
		result.SetMeta(proto.KeyFiles, files)
	}
	return []*proto.Message{result}, nil
}

// summarize condenses the raw report via the model, falling back to the raw
// report when the model is unavailable.
func (t *Tester) summarize(ctx context.Context, report string) string {
	condensed, err := t.complete(ctx, testerSystemPrompt, "Summarize these test results:\n"+report)
	if err != nil {
		t.logger.Warn("test summary generation failed, using raw report: %v", err)
		return report
	}
	return report + "\n\nSummary: " + strings.TrimSpace(condensed)
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

// indentOutput renders stdout/stderr of a failed command for the report.
func indentOutput(out map[string]any) string {
	var b strings.Builder
	for _, key := range []string{"stdout", "stderr", "error"} {
		if text, _ := out[key].(string); strings.TrimSpace(text) != "" {
			for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
				b.WriteString("    ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
