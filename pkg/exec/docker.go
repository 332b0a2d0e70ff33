package exec

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"time"
)

// containerWorkDir is where the workspace is mounted inside the container.
const containerWorkDir = "/workspace"

// DockerExec executes commands inside a throwaway Docker container with the
// workspace bind-mounted and the network disabled.
type DockerExec struct {
	image     string
	hostRoot  string
	dockerBin string
}

// NewDockerExec creates a Docker-sandboxed executor that mounts hostRoot at
// /workspace inside containers started from image.
func NewDockerExec(image, hostRoot string) *DockerExec {
	return &DockerExec{
		image:     image,
		hostRoot:  hostRoot,
		dockerBin: "docker",
	}
}

// Name implements Executor.
func (e *DockerExec) Name() string {
	return "docker"
}

// Available implements Executor by probing for the docker binary.
func (e *DockerExec) Available() bool {
	_, err := osexec.LookPath(e.dockerBin)
	return err == nil
}

// Run implements Executor.
func (e *DockerExec) Run(ctx context.Context, cmd []string, opts Opts) (Result, error) {
	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	if !e.Available() {
		return Result{}, fmt.Errorf("%w: docker binary not found", ErrSandboxUnavailable)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{
		"run", "--rm",
		"--network", "none",
		"-v", fmt.Sprintf("%s:%s", e.hostRoot, containerWorkDir),
		"-w", containerWorkDir,
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, e.image)
	args = append(args, cmd...)

	execCmd := osexec.CommandContext(ctx, e.dockerBin, args...)

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
		// The daemon refusing to start a container is an infrastructure
		// failure, not a command result.
		return result, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}
	return result, nil
}

// ForMode returns the executor matching the task's execution mode.
func ForMode(sandboxed bool, image, hostRoot string) Executor {
	if sandboxed {
		return NewDockerExec(image, hostRoot)
	}
	return NewLocalExec()
}
