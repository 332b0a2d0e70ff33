// Package eval provides a batch evaluation harness: it drives a suite of
// predefined tasks through a task runner and aggregates pass/fail outcomes
// with durations. Useful for regression-checking agent behavior against a
// fixed task set.
package eval

import (
	"context"
	"fmt"
	"time"

	"devteam/pkg/logx"
	"devteam/pkg/proto"
)

// TaskRunner executes one task to completion. *orch.Orchestrator satisfies it.
type TaskRunner interface {
	RunTask(ctx context.Context, task *proto.Task) (*proto.TaskResult, error)
}

// Task is one evaluation case: a task description plus the terminal status
// it is expected to reach.
type Task struct {
	ID            string
	Description   string
	WorkspaceRoot string
	ExecMode      proto.ExecMode

	// ExpectedStatus defaults to StatusCompleted when empty.
	ExpectedStatus proto.TaskStatus
}

// Result is the outcome of a single evaluation case.
type Result struct {
	TaskID         string
	Status         proto.TaskStatus
	ExpectedStatus proto.TaskStatus
	Passed         bool
	Iterations     int
	Duration       time.Duration
	Err            error
}

// Summary aggregates a whole evaluation run.
type Summary struct {
	Results  []Result
	Passed   int
	Failed   int
	Duration time.Duration
}

// Harness runs evaluation tasks sequentially through a task runner.
type Harness struct {
	runner TaskRunner
	logger *logx.Logger
}

// NewHarness creates an evaluation harness around runner.
func NewHarness(runner TaskRunner) *Harness {
	return &Harness{runner: runner, logger: logx.NewLogger("eval")}
}

// Run executes all tasks and returns the aggregated summary. A runner error
// counts the case as failed rather than aborting the suite; cancellation
// stops the suite and returns the partial summary alongside the context
// error.
func (h *Harness) Run(ctx context.Context, tasks []Task) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("evaluation interrupted: %w", err)
		}

		result := h.runOne(ctx, task)
		summary.Results = append(summary.Results, result)
		if result.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	summary.Duration = time.Since(start)
	h.logger.Info("evaluation finished: %d passed, %d failed in %s",
		summary.Passed, summary.Failed, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func (h *Harness) runOne(ctx context.Context, task Task) Result {
	expected := task.ExpectedStatus
	if expected == "" {
		expected = proto.StatusCompleted
	}

	spec := proto.NewTask(task.Description, task.WorkspaceRoot, execMode(task))
	if task.ID != "" {
		spec.ID = task.ID
	}

	start := time.Now()
	outcome, err := h.runner.RunTask(ctx, spec)
	elapsed := time.Since(start)

	if err != nil {
		h.logger.Warn("evaluation task %s errored after %s: %v", spec.ID, elapsed.Round(time.Millisecond), err)
		return Result{
			TaskID:         spec.ID,
			ExpectedStatus: expected,
			Duration:       elapsed,
			Err:            err,
		}
	}

	passed := outcome.Status == expected
	h.logger.Info("evaluation task %s: %s (expected %s) in %s", spec.ID, outcome.Status, expected, elapsed.Round(time.Millisecond))
	return Result{
		TaskID:         spec.ID,
		Status:         outcome.Status,
		ExpectedStatus: expected,
		Passed:         passed,
		Iterations:     outcome.Iterations,
		Duration:       elapsed,
	}
}

func execMode(task Task) proto.ExecMode {
	if task.ExecMode == "" {
		return proto.ExecModeLocal
	}
	return task.ExecMode
}
