package workflow

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/proto"
)

func planMessage(steps ...string) *proto.Message {
	msg := proto.NewMessage(proto.AgentPlanner, proto.AgentCoder, "Implement the following plan")
	msg.SetMeta(proto.KeyTaskID, "task-1")
	msg.SetMeta(proto.KeyPlanSteps, steps)
	return msg
}

func coderDone(files ...string) *proto.Message {
	msg := proto.NewMessage(proto.AgentCoder, proto.AgentOrchestrator, "Updated files")
	msg.SetMeta(proto.KeyTaskID, "task-1")
	msg.SetMeta(proto.KeyFiles, files)
	return msg
}

func testerDone(passed bool) *proto.Message {
	msg := proto.NewMessage(proto.AgentTester, proto.AgentOrchestrator, "test report")
	msg.SetMeta(proto.KeyTaskID, "task-1")
	msg.SetMeta(proto.KeyTestsPassed, passed)
	msg.SetMeta(proto.KeyTestSummary, "Overall status: PASS")
	return msg
}

func reviewDecision(approved bool, comments ...string) *proto.Message {
	msg := proto.NewMessage(proto.AgentReviewer, proto.AgentOrchestrator, "review verdict")
	msg.SetMeta(proto.KeyTaskID, "task-1")
	proto.ApprovalDecision{Approved: approved, Comments: comments}.Apply(msg)
	return msg
}

// advanceToReviewing walks a fresh machine through plan, code, and test.
func advanceToReviewing(t *testing.T, m *Machine) {
	t.Helper()

	_, err := m.Observe(planMessage("one step"))
	require.NoError(t, err)
	require.Equal(t, PhaseImplementing, m.Phase())

	out, err := m.Observe(coderDone("a.go"))
	require.NoError(t, err)
	require.Equal(t, PhaseTesting, m.Phase())
	require.Len(t, out, 1)
	require.Equal(t, proto.AgentTester, out[0].To)

	out, err = m.Observe(testerDone(true))
	require.NoError(t, err)
	require.Equal(t, PhaseReviewing, m.Phase())
	require.Len(t, out, 1)
	require.Equal(t, proto.AgentReviewer, out[0].To)
}

func TestHappyPathCompletesWithZeroIterations(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	advanceToReviewing(t, m)

	out, err := m.Observe(reviewDecision(true, "looks good"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, PhaseDone, m.Phase())

	result := m.Result()
	assert.Equal(t, proto.StatusCompleted, result.Status)
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, []string{"a.go"}, result.ChangedFiles)
}

func TestRejectionIteratesWithCommentsFolded(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	advanceToReviewing(t, m)

	out, err := m.Observe(reviewDecision(false, "missing error handling"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, PhaseImplementing, m.Phase())
	assert.Equal(t, proto.AgentCoder, out[0].To)
	assert.Contains(t, out[0].Content, "missing error handling")
	assert.Contains(t, out[0].Content, "one step")
	assert.Equal(t, 1, m.State().Iteration)
}

func TestRejectTwiceThenApprove(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	advanceToReviewing(t, m)

	for i := 1; i <= 2; i++ {
		_, err := m.Observe(reviewDecision(false, "try again"))
		require.NoError(t, err)
		require.Equal(t, PhaseImplementing, m.Phase())

		_, err = m.Observe(coderDone("a.go"))
		require.NoError(t, err)
		_, err = m.Observe(testerDone(true))
		require.NoError(t, err)
		require.Equal(t, PhaseReviewing, m.Phase())
	}

	_, err := m.Observe(reviewDecision(true, "approved now"))
	require.NoError(t, err)

	result := m.Result()
	assert.Equal(t, proto.StatusCompleted, result.Status)
	assert.Equal(t, 2, result.Iterations)
}

func TestIterationCapForcesFailure(t *testing.T) {
	m := NewMachine("task-1", 2, false)
	advanceToReviewing(t, m)

	for i := 0; i < 2; i++ {
		out, err := m.Observe(reviewDecision(false, "still wrong"))
		require.NoError(t, err)
		require.NotEmpty(t, out)
		require.LessOrEqual(t, m.State().Iteration, 2)

		_, err = m.Observe(coderDone("a.go"))
		require.NoError(t, err)
		_, err = m.Observe(testerDone(false))
		require.NoError(t, err)
	}

	out, err := m.Observe(reviewDecision(false, "final rejection"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, PhaseFailed, m.Phase())

	result := m.Result()
	assert.Equal(t, proto.StatusMaxIterationsExceeded, result.Status)
	assert.Equal(t, 2, result.Iterations)
	assert.Contains(t, result.Summary, "final rejection")
}

func TestApprovalGateSuspendsAndResumes(t *testing.T) {
	m := NewMachine("task-1", 5, true)
	advanceToReviewing(t, m)

	out, err := m.Observe(reviewDecision(true, "ship it"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, PhaseAwaitingApproval, m.Phase())
	assert.Equal(t, proto.AgentUserProxy, out[0].To)

	approvalID, ok := out[0].MetaString(proto.KeyApprovalID)
	require.True(t, ok)
	assert.Equal(t, m.State().PendingApproval, approvalID)

	answer := proto.NewMessage(proto.AgentUserProxy, proto.AgentOrchestrator, "Approved")
	answer.SetMeta(proto.KeyApprovalID, approvalID)
	proto.ApprovalDecision{Approved: true}.Apply(answer)

	_, err = m.Observe(answer)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, m.Phase())
	assert.Equal(t, proto.StatusCompleted, m.Result().Status)
}

func TestApprovalGateRejectionTerminates(t *testing.T) {
	m := NewMachine("task-1", 5, true)
	advanceToReviewing(t, m)

	out, err := m.Observe(reviewDecision(true, "ship it"))
	require.NoError(t, err)
	approvalID, _ := out[0].MetaString(proto.KeyApprovalID)

	answer := proto.NewMessage(proto.AgentUserProxy, proto.AgentOrchestrator, "Rejected")
	answer.SetMeta(proto.KeyApprovalID, approvalID)
	proto.ApprovalDecision{Approved: false, Comments: []string{"do not merge"}}.Apply(answer)

	_, err = m.Observe(answer)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, m.Phase())
	assert.Equal(t, proto.StatusRejected, m.Result().Status)
}

func TestApprovalWithWrongIDIsIgnored(t *testing.T) {
	m := NewMachine("task-1", 5, true)
	advanceToReviewing(t, m)

	_, err := m.Observe(reviewDecision(true, "ship it"))
	require.NoError(t, err)

	stray := proto.NewMessage(proto.AgentUserProxy, proto.AgentOrchestrator, "Approved")
	stray.SetMeta(proto.KeyApprovalID, "someone-else")
	proto.ApprovalDecision{Approved: true}.Apply(stray)

	out, err := m.Observe(stray)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, PhaseAwaitingApproval, m.Phase())
}

func TestObserveFailureRoutesToReviewer(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	_, err := m.Observe(planMessage("one step"))
	require.NoError(t, err)

	out, err := m.ObserveFailure(proto.AgentCoder, errors.New("path escapes workspace root"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, PhaseReviewing, m.Phase())
	assert.Equal(t, proto.AgentReviewer, out[0].To)

	failure, ok := out[0].MetaString(proto.KeyFailure)
	require.True(t, ok)
	assert.Contains(t, failure, "path escapes")

	agent, _ := out[0].MetaString(proto.KeyFailedAgent)
	assert.Equal(t, proto.AgentCoder, agent)
}

func TestObserveFailureInReviewingIsUnrecoverable(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	advanceToReviewing(t, m)

	_, err := m.ObserveFailure(proto.AgentReviewer, errors.New("model unavailable"))
	assert.Error(t, err)
}

func TestFailForcesTerminalFromAnyPhase(t *testing.T) {
	m := NewMachine("task-1", 5, false)
	m.Fail(proto.StatusFatalError, "sandbox unavailable")

	assert.Equal(t, PhaseFailed, m.Phase())
	result := m.Result()
	assert.Equal(t, proto.StatusFatalError, result.Status)
	assert.Contains(t, result.Summary, "sandbox unavailable")
}

func TestIrrelevantMessagesAreIgnored(t *testing.T) {
	m := NewMachine("task-1", 5, false)

	out, err := m.Observe(proto.NewMessage(proto.AgentCoder, proto.AgentOrchestrator, "chatter"))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, PhasePlanning, m.Phase())
}

func TestStateSerializationRoundTrip(t *testing.T) {
	m := NewMachine("task-1", 5, true)
	advanceToReviewing(t, m)
	_, err := m.Observe(reviewDecision(false, "iterate"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	queue := []*proto.Message{coderDone("a.go")}
	snap := &Snapshot{State: m.State(), Queue: queue}
	require.NoError(t, snap.Save(path))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, m.State().Phase, loaded.State.Phase)
	assert.Equal(t, m.State().Iteration, loaded.State.Iteration)
	assert.Equal(t, m.State().Plan, loaded.State.Plan)
	require.Len(t, loaded.Queue, 1)
	assert.Equal(t, queue[0].ID, loaded.Queue[0].ID)

	// Resume reproduces behavior through the same transitions.
	resumed := NewMachineFromState(loaded.State, 5, true)
	assert.Equal(t, PhaseImplementing, resumed.Phase())

	_, err = resumed.Observe(coderDone("a.go"))
	require.NoError(t, err)
	assert.Equal(t, PhaseTesting, resumed.Phase())
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, (&Snapshot{State: State{}}).Save(path))

	_, err := LoadSnapshot(path)
	assert.Error(t, err)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidateTransitionTable(t *testing.T) {
	assert.NoError(t, ValidateTransition(PhasePlanning, PhaseImplementing))
	assert.NoError(t, ValidateTransition(PhaseTesting, PhaseReviewing))
	assert.NoError(t, ValidateTransition(PhaseTesting, PhaseFailed))
	assert.Error(t, ValidateTransition(PhasePlanning, PhaseTesting))
	assert.Error(t, ValidateTransition(PhaseDone, PhaseImplementing))
	assert.Error(t, ValidateTransition(PhaseFailed, PhaseFailed))
}
