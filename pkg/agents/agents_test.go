package agents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execpkg "devteam/pkg/exec"
	"devteam/pkg/llm"
	"devteam/pkg/memory"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
	"devteam/pkg/workspace"
)

type agentEnv struct {
	reg   *tools.Registry
	store memory.Store
	root  string
}

func newAgentEnv(t *testing.T) *agentEnv {
	t.Helper()

	root := t.TempDir()
	ws, err := workspace.NewDir(root, true)
	require.NoError(t, err)

	store := memory.NewInMemory()
	reg := tools.NewRegistry(nil)
	require.NoError(t, tools.RegisterBuiltins(reg, tools.BuiltinDeps{
		Workspace: ws,
		Executor:  execpkg.NewLocalExec(),
		Store:     store,
		WorkDir:   root,
		AllowExec: true,
	}))
	return &agentEnv{reg: reg, store: store, root: root}
}

func taskMessage(to, content string) *proto.Message {
	msg := proto.NewMessage(proto.AgentOrchestrator, to, content)
	msg.SetMeta(proto.KeyTaskID, "task-1")
	return msg
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "numbered list",
			response: "1. add the endpoint\n2. write tests\n3) update docs",
			want:     []string{"add the endpoint", "write tests", "update docs"},
		},
		{
			name:     "bulleted list",
			response: "- first step\n* second step",
			want:     []string{"first step", "second step"},
		},
		{
			name:     "prose fallback keeps lines",
			response: "Refactor the parser.\n\nThen add coverage.",
			want:     []string{"Refactor the parser.", "Then add coverage."},
		},
		{
			name:     "blank response collapses to raw",
			response: "   ",
			want:     []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePlan(tt.response))
		})
	}
}

func TestPlannerEmitsPlanToCoder(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Respond("ordered list of steps", "1. create greet.go\n2. run the tests")

	planner := NewPlanner(mock, env.reg, env.store, llm.Options{})
	out, err := planner.Handle(context.Background(), taskMessage(proto.AgentPlanner, "add a greeting"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	msg := out[0]
	assert.Equal(t, proto.AgentCoder, msg.To)
	assert.Contains(t, msg.Content, "- create greet.go")

	steps, ok := msg.MetaStrings(proto.KeyPlanSteps)
	require.True(t, ok)
	assert.Equal(t, []string{"create greet.go", "run the tests"}, steps)

	note, found, err := env.store.Note(memory.PlanKey("task-1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, note, "create greet.go")
}

func TestParseFileUpdates(t *testing.T) {
	response := "FILE: pkg/greet/greet.go\nCODE:\npackage greet\n\nfunc Hello() string { return \"hi\" }\nFILE: main.go\nCODE:\npackage main"

	updates := ParseFileUpdates(response)
	require.Len(t, updates, 2)
	assert.Equal(t, "pkg/greet/greet.go", updates[0].Path)
	assert.Contains(t, updates[0].Content, "func Hello()")
	assert.Equal(t, "main.go", updates[1].Path)
	assert.Equal(t, "package main\n", updates[1].Content)

	assert.Empty(t, ParseFileUpdates("I cannot produce code for this."))
}

func TestCoderAppliesUpdates(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Respond("Instruction", "FILE: greet.go\nCODE:\npackage greet\n")

	coder := NewCoder(mock, env.reg, env.store, llm.Options{})
	out, err := coder.Handle(context.Background(), taskMessage(proto.AgentCoder, "implement greeting"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	files, ok := out[0].MetaStrings(proto.KeyFiles)
	require.True(t, ok)
	assert.Equal(t, []string{"greet.go"}, files)
	assert.Equal(t, proto.AgentOrchestrator, out[0].To)

	written, err := os.ReadFile(filepath.Join(env.root, "greet.go"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "package greet")
}

func TestCoderNoUpdatesIsRecoverable(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Respond("Instruction", "I refuse to write code today.")

	coder := NewCoder(mock, env.reg, env.store, llm.Options{})
	_, err := coder.Handle(context.Background(), taskMessage(proto.AgentCoder, "implement greeting"))
	assert.ErrorIs(t, err, ErrNoFileUpdates)
}

func TestCoderPathEscapeFailsWithoutWriting(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Respond("Instruction", "FILE: ../outside.txt\nCODE:\nstolen\n")

	coder := NewCoder(mock, env.reg, env.store, llm.Options{})
	_, err := coder.Handle(context.Background(), taskMessage(proto.AgentCoder, "implement greeting"))
	require.Error(t, err)
	assert.ErrorIs(t, err, workspace.ErrPathEscape)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(env.root), "outside.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTesterReportsPass(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Respond("Summarize these test results", "everything passed")

	tester := NewTester(mock, env.reg, env.store, llm.Options{}, [][]string{{"true"}})
	out, err := tester.Handle(context.Background(), taskMessage(proto.AgentTester, "run tests"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	passed, ok := out[0].MetaBool(proto.KeyTestsPassed)
	require.True(t, ok)
	assert.True(t, passed)

	summary, ok := out[0].MetaString(proto.KeyTestSummary)
	require.True(t, ok)
	assert.Contains(t, summary, "Overall status: PASS")
}

func TestTesterReportsFailureWithOutput(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient()

	tester := NewTester(mock, env.reg, env.store, llm.Options{}, [][]string{{"true"}, {"false"}})
	out, err := tester.Handle(context.Background(), taskMessage(proto.AgentTester, "run tests"))
	require.NoError(t, err)

	passed, ok := out[0].MetaBool(proto.KeyTestsPassed)
	require.True(t, ok)
	assert.False(t, passed)

	summary, _ := out[0].MetaString(proto.KeyTestSummary)
	assert.Contains(t, summary, "false: FAIL")
}

func TestTesterKeepsSpacedArgumentsIntact(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient()

	// The third argv element contains a space; the failing command's output
	// proves it reached the process as one argument.
	commands := [][]string{{"sh", "-c", `echo "$1"; exit 3`, "t", "a b"}}
	tester := NewTester(mock, env.reg, env.store, llm.Options{}, commands)
	out, err := tester.Handle(context.Background(), taskMessage(proto.AgentTester, "run tests"))
	require.NoError(t, err)

	passed, ok := out[0].MetaBool(proto.KeyTestsPassed)
	require.True(t, ok)
	assert.False(t, passed)

	summary, _ := out[0].MetaString(proto.KeyTestSummary)
	assert.Contains(t, summary, "a b")
}

func TestTesterSummaryFallsBackWhenModelFails(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient().Fail(llm.NewError(llm.KindProvider, "down"))

	tester := NewTester(mock, env.reg, env.store, llm.Options{}, [][]string{{"true"}})
	out, err := tester.Handle(context.Background(), taskMessage(proto.AgentTester, "run tests"))
	require.NoError(t, err)

	summary, _ := out[0].MetaString(proto.KeyTestSummary)
	assert.Contains(t, summary, "Overall status: PASS")
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		response string
		approved bool
	}{
		{"These changes are approved. Nice work.", true},
		{"I approve.", true},
		{"Reject: the error handling is missing.", false},
		{"Changes requested before I can approve.", false},
		{"I do not approve of this.", false},
		{"This does not address the task at all.", false},
	}

	for _, tt := range tests {
		decision := ParseDecision(tt.response)
		assert.Equal(t, tt.approved, decision.Approved, "response: %s", tt.response)
		require.Len(t, decision.Comments, 1)
	}
}

func TestReviewerApprovesDiff(t *testing.T) {
	env := newAgentEnv(t)
	ctx := context.Background()

	// Create a change with a snapshot the diff tool can see.
	_, err := env.reg.Invoke(ctx, tools.ToolWriteFile, map[string]any{"path": "a.go", "content": "old\n"})
	require.NoError(t, err)
	_, err = env.reg.Invoke(ctx, tools.ToolWriteFile, map[string]any{"path": "a.go", "content": "new\n"})
	require.NoError(t, err)

	mock := llm.NewMockClient().Respond("Review the following diff", "Approved. The change is correct.")
	reviewer := NewReviewer(mock, env.reg, env.store, llm.Options{})

	review := taskMessage(proto.AgentReviewer, "review the changes")
	review.SetMeta(proto.KeyFiles, []string{"a.go"})
	review.SetMeta(proto.KeyTestSummary, "Overall status: PASS")

	out, err := reviewer.Handle(ctx, review)
	require.NoError(t, err)
	require.Len(t, out, 1)

	decision, ok := proto.DecisionFromMessage(out[0])
	require.True(t, ok)
	assert.True(t, decision.Approved)

	// The reviewer saw the diff and the test summary.
	require.NotEmpty(t, mock.Requests)
	prompt := mock.Requests[len(mock.Requests)-1]
	assert.Contains(t, prompt[1].Content, "-old")
	assert.Contains(t, prompt[1].Content, "+new")
	assert.Contains(t, prompt[1].Content, "Overall status: PASS")
}

func TestReviewerRejectsFailureAttributedMessageWithoutModel(t *testing.T) {
	env := newAgentEnv(t)
	mock := llm.NewMockClient()
	reviewer := NewReviewer(mock, env.reg, env.store, llm.Options{})

	review := taskMessage(proto.AgentReviewer, "review the failure")
	review.SetMeta(proto.KeyFailure, "path escapes workspace root")
	review.SetMeta(proto.KeyFailedAgent, proto.AgentCoder)

	out, err := reviewer.Handle(context.Background(), review)
	require.NoError(t, err)

	decision, ok := proto.DecisionFromMessage(out[0])
	require.True(t, ok)
	assert.False(t, decision.Approved)
	require.Len(t, decision.Comments, 1)
	assert.Contains(t, decision.Comments[0], "coder failed")
	assert.Empty(t, mock.Requests)
}

func TestUserProxyDefaultsToApproval(t *testing.T) {
	env := newAgentEnv(t)
	proxy := NewUserProxy(llm.NewMockClient(), env.reg, env.store, nil)

	request := taskMessage(proto.AgentUserProxy, "approve completion?")
	request.SetMeta(proto.KeyApprovalID, "approval-1")

	out, err := proxy.Handle(context.Background(), request)
	require.NoError(t, err)

	decision, ok := proto.DecisionFromMessage(out[0])
	require.True(t, ok)
	assert.True(t, decision.Approved)
	assert.Equal(t, "Approved", out[0].Content)

	id, _ := out[0].MetaString(proto.KeyApprovalID)
	assert.Equal(t, "approval-1", id)
}

func TestUserProxyCustomDecision(t *testing.T) {
	env := newAgentEnv(t)
	proxy := NewUserProxy(llm.NewMockClient(), env.reg, env.store, func(context.Context, *proto.Message) (proto.ApprovalDecision, error) {
		return proto.ApprovalDecision{Approved: false, Comments: []string{"not like this"}}, nil
	})

	out, err := proxy.Handle(context.Background(), taskMessage(proto.AgentUserProxy, "approve?"))
	require.NoError(t, err)

	decision, ok := proto.DecisionFromMessage(out[0])
	require.True(t, ok)
	assert.False(t, decision.Approved)
	assert.Equal(t, []string{"not like this"}, decision.Comments)
}

func TestUserProxyDecisionError(t *testing.T) {
	env := newAgentEnv(t)
	wantErr := errors.New("terminal closed")
	proxy := NewUserProxy(llm.NewMockClient(), env.reg, env.store, func(context.Context, *proto.Message) (proto.ApprovalDecision, error) {
		return proto.ApprovalDecision{}, wantErr
	})

	_, err := proxy.Handle(context.Background(), taskMessage(proto.AgentUserProxy, "approve?"))
	assert.ErrorIs(t, err, wantErr)
}
