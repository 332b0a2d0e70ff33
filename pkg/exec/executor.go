// Package exec provides the command-execution capability with local and
// Docker-sandboxed backends. A non-zero exit code is a normal result, never
// an error; errors are reserved for infrastructure failure.
package exec

import (
	"context"
	"errors"
	"time"
)

// ErrExecutionTimeout is returned when a command exceeds its time budget.
var ErrExecutionTimeout = errors.New("command execution timed out")

// ErrSandboxUnavailable is returned when the sandbox backend cannot run at
// all (for example the docker binary is missing). It is fatal to the task.
var ErrSandboxUnavailable = errors.New("execution sandbox unavailable")

// Opts contains options for command execution.
type Opts struct {
	// WorkDir is the working directory for the command.
	WorkDir string

	// Timeout is the maximum duration for command execution.
	Timeout time.Duration

	// Env contains extra environment variables in KEY=VALUE form.
	Env []string
}

// Result contains the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs commands in a specific environment.
type Executor interface {
	// Run executes cmd and returns its captured output. A non-zero exit code
	// is reported in the Result with a nil error.
	Run(ctx context.Context, cmd []string, opts Opts) (Result, error)

	// Name returns the executor type name for logging.
	Name() string

	// Available reports whether this executor can be used right now.
	Available() bool
}
