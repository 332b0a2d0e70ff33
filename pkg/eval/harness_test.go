package eval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/proto"
)

// scriptedRunner resolves each task by its description.
type scriptedRunner struct {
	statuses map[string]proto.TaskStatus
	errs     map[string]error
	ran      []string
}

func (r *scriptedRunner) RunTask(_ context.Context, task *proto.Task) (*proto.TaskResult, error) {
	r.ran = append(r.ran, task.Description)
	if err, ok := r.errs[task.Description]; ok {
		return nil, err
	}
	status, ok := r.statuses[task.Description]
	if !ok {
		status = proto.StatusCompleted
	}
	return &proto.TaskResult{TaskID: task.ID, Status: status, Iterations: 1}, nil
}

func TestHarnessAggregatesOutcomes(t *testing.T) {
	runner := &scriptedRunner{
		statuses: map[string]proto.TaskStatus{
			"add greeting": proto.StatusCompleted,
			"hopeless":     proto.StatusMaxIterationsExceeded,
			"needs cap":    proto.StatusMaxIterationsExceeded,
		},
	}
	harness := NewHarness(runner)

	summary, err := harness.Run(context.Background(), []Task{
		{ID: "t1", Description: "add greeting", WorkspaceRoot: t.TempDir()},
		{ID: "t2", Description: "hopeless", WorkspaceRoot: t.TempDir()},
		{ID: "t3", Description: "needs cap", WorkspaceRoot: t.TempDir(),
			ExpectedStatus: proto.StatusMaxIterationsExceeded},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)

	assert.True(t, summary.Results[0].Passed)
	assert.Equal(t, proto.StatusCompleted, summary.Results[0].ExpectedStatus)

	assert.False(t, summary.Results[1].Passed)
	assert.Equal(t, proto.StatusMaxIterationsExceeded, summary.Results[1].Status)

	assert.True(t, summary.Results[2].Passed)
	assert.Equal(t, []string{"add greeting", "hopeless", "needs cap"}, runner.ran)
}

func TestHarnessCountsRunnerErrorAsFailure(t *testing.T) {
	runner := &scriptedRunner{
		errs: map[string]error{"broken": errors.New("registry misconfigured")},
	}
	harness := NewHarness(runner)

	summary, err := harness.Run(context.Background(), []Task{
		{ID: "ok", Description: "fine", WorkspaceRoot: t.TempDir()},
		{ID: "bad", Description: "broken", WorkspaceRoot: t.TempDir()},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	require.Error(t, summary.Results[1].Err)
	assert.False(t, summary.Results[1].Passed)
}

func TestHarnessStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	harness := NewHarness(&scriptedRunner{})
	summary, err := harness.Run(ctx, []Task{
		{ID: "t1", Description: "never runs", WorkspaceRoot: t.TempDir()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Results)
}

func TestHarnessGeneratesTaskIDWhenMissing(t *testing.T) {
	runner := &scriptedRunner{}
	harness := NewHarness(runner)

	summary, err := harness.Run(context.Background(), []Task{
		{Description: "anonymous", WorkspaceRoot: t.TempDir()},
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.NotEmpty(t, summary.Results[0].TaskID)
}
