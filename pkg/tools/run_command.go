package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	execpkg "devteam/pkg/exec"
)

const defaultCommandTimeout = 120 * time.Second

// ExecApprover decides whether a command may run. Used when the approval
// policy requires per-execution sign-off; a nil approver permits everything
// allowExec already permits.
type ExecApprover func(ctx context.Context, command string) (bool, error)

// RunCommandTool executes commands in the task workspace through the
// configured executor. A non-zero exit code is a normal result, not an error.
type RunCommandTool struct {
	executor       execpkg.Executor
	workDir        string
	allowExec      bool
	approve        ExecApprover
	defaultTimeout time.Duration
	env            []string
}

// NewRunCommandTool creates a run_command tool. When allowExec is false every
// invocation is refused with a domain-level error result. A non-positive
// defaultTimeout falls back to the built-in default; env entries are
// KEY=VALUE pairs added to every command's environment.
func NewRunCommandTool(executor execpkg.Executor, workDir string, allowExec bool, approve ExecApprover, defaultTimeout time.Duration, env []string) *RunCommandTool {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultCommandTimeout
	}
	return &RunCommandTool{
		executor:       executor,
		workDir:        workDir,
		allowExec:      allowExec,
		approve:        approve,
		defaultTimeout: defaultTimeout,
		env:            env,
	}
}

// Definition returns the tool definition.
func (t *RunCommandTool) Definition() Definition {
	return Definition{
		Name:        ToolRunCommand,
		Description: "Execute a shell command in the workspace and return stdout, stderr, and the exit code.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {
					Type:        "string",
					Description: "Shell command to execute via sh -c",
				},
				"argv": {
					Type:        "array",
					Description: "Command as an argument vector, executed without shell interpretation. Takes precedence over command.",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Maximum execution time in seconds. Defaults to the configured executor timeout.",
				},
			},
		},
	}
}

// Exec implements Tool.
func (t *RunCommandTool) Exec(ctx context.Context, args map[string]any) (*Result, error) {
	if !t.allowExec {
		return errorResult("command execution is disabled for this task")
	}

	cmd, display, err := commandArgs(args)
	if err != nil {
		return nil, err
	}

	if t.approve != nil {
		approved, err := t.approve(ctx, display)
		if err != nil {
			return nil, fmt.Errorf("execution approval: %w", err)
		}
		if !approved {
			return errorResult("command execution not approved: " + display)
		}
	}

	timeout := t.defaultTimeout
	if secs := intArgOrDefault(args, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	result, err := t.executor.Run(ctx, cmd, execpkg.Opts{
		WorkDir: t.workDir,
		Timeout: timeout,
		Env:     t.env,
	})
	if err != nil {
		if errors.Is(err, execpkg.ErrExecutionTimeout) {
			return errorResult("command timed out after " + timeout.String())
		}
		// Sandbox failures are infrastructure errors and must surface to the
		// orchestrator rather than the agent.
		return nil, err
	}

	return jsonResult(map[string]any{
		"success":   result.ExitCode == 0,
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"duration":  result.Duration.String(),
	})
}

// commandArgs resolves the invocation into an argument vector. An explicit
// argv runs without shell interpretation, so elements containing spaces stay
// single arguments; a command string runs through sh -c.
func commandArgs(args map[string]any) (cmd []string, display string, err error) {
	argv, hasArgv, err := stringSliceArg(args, "argv")
	if err != nil {
		return nil, "", err
	}
	if hasArgv {
		if len(argv) == 0 {
			return nil, "", fmt.Errorf("argv cannot be empty")
		}
		return argv, strings.Join(argv, " "), nil
	}

	command, err := stringArg(args, "command")
	if err != nil {
		return nil, "", fmt.Errorf("command or argv is required")
	}
	return []string{"sh", "-c", command}, command, nil
}
