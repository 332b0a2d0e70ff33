package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"time"
)

// LocalExec executes commands directly on the host without sandboxing.
type LocalExec struct{}

// NewLocalExec creates a local executor.
func NewLocalExec() *LocalExec {
	return &LocalExec{}
}

// Name implements Executor.
func (e *LocalExec) Name() string {
	return "local"
}

// Available implements Executor. Local execution is always available.
func (e *LocalExec) Available() bool {
	return true
}

// Run implements Executor.
func (e *LocalExec) Run(ctx context.Context, cmd []string, opts Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := osexec.CommandContext(ctx, cmd[0], cmd[1:]...)

	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); err != nil {
			return Result{}, fmt.Errorf("working directory %s: %w", opts.WorkDir, err)
		}
		execCmd.Dir = opts.WorkDir
	}

	if len(opts.Env) > 0 {
		execCmd.Env = append(os.Environ(), opts.Env...)
	}

	start := time.Now()
	stdout, stderr, exitCode, err := capture(execCmd)
	result := Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w after %s", ErrExecutionTimeout, result.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

// capture runs the command and collects stdout, stderr and the exit code.
// A non-zero exit code is folded into the result, not the error.
func capture(cmd *osexec.Cmd) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return stdout, stderr, exitErr.ExitCode(), nil
		}
		return stdout, stderr, -1, fmt.Errorf("start command: %w", err)
	}
	return stdout, stderr, 0, nil
}
