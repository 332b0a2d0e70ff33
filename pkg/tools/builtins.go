package tools

import (
	"time"

	execpkg "devteam/pkg/exec"
	"devteam/pkg/memory"
	"devteam/pkg/workspace"
)

// BuiltinDeps carries the capabilities the built-in tools are wired to.
type BuiltinDeps struct {
	Workspace workspace.Workspace
	Executor  execpkg.Executor
	Store     memory.Store
	WorkDir   string
	AllowExec bool

	// ExecApprover, when set, is consulted before every run_command
	// execution. Nil means no per-command sign-off.
	ExecApprover ExecApprover

	// CommandTimeout is the default run_command time budget. Non-positive
	// falls back to the built-in default.
	CommandTimeout time.Duration

	// Env holds extra KEY=VALUE pairs added to every command's environment.
	Env []string
}

// RegisterBuiltins registers the standard tool set against reg. File writes
// snapshot prior contents into the store so get_diff and reverts work.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	snapshot := func(path, oldContent string) error {
		return deps.Store.SaveNote(memory.SnapshotKey(path), oldContent)
	}

	builtins := []Tool{
		NewReadFileTool(deps.Workspace),
		NewWriteFileTool(deps.Workspace, snapshot),
		NewListFilesTool(deps.Workspace),
		NewFileExistsTool(deps.Workspace),
		NewGetDiffTool(deps.Workspace, deps.Store),
		NewRunCommandTool(deps.Executor, deps.WorkDir, deps.AllowExec, deps.ExecApprover, deps.CommandTimeout, deps.Env),
	}
	for _, tool := range builtins {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
