package proto

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExecMode selects where test and build commands run.
type ExecMode string

const (
	ExecModeLocal     ExecMode = "local"
	ExecModeSandboxed ExecMode = "sandboxed"
)

// ParseExecMode validates and normalizes an execution mode string.
func ParseExecMode(s string) (ExecMode, error) {
	switch ExecMode(strings.ToLower(s)) {
	case ExecModeLocal:
		return ExecModeLocal, nil
	case ExecModeSandboxed:
		return ExecModeSandboxed, nil
	default:
		return "", fmt.Errorf("unknown execution mode: %q (valid: local, sandboxed)", s)
	}
}

// Task is one user-submitted change request plus its workspace and
// permission context. Created once per invocation; immutable.
type Task struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	WorkspaceRoot string   `json:"workspace_root"`
	ExecMode      ExecMode `json:"exec_mode"`
	AllowWrite    bool     `json:"allow_write"`
	AllowExec     bool     `json:"allow_exec"`
}

// NewTask creates a task with a generated ID.
func NewTask(description, workspaceRoot string, mode ExecMode) *Task {
	return &Task{
		ID:            uuid.NewString(),
		Description:   description,
		WorkspaceRoot: workspaceRoot,
		ExecMode:      mode,
		AllowWrite:    true,
		AllowExec:     true,
	}
}

// Validate checks the fields required to start a task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("task description is required")
	}
	if t.WorkspaceRoot == "" {
		return fmt.Errorf("task workspace root is required")
	}
	if _, err := ParseExecMode(string(t.ExecMode)); err != nil {
		return err
	}
	return nil
}

// TaskStatus is the terminal status of a completed workflow.
type TaskStatus string

const (
	StatusCompleted             TaskStatus = "COMPLETED"
	StatusRejected              TaskStatus = "REJECTED"
	StatusMaxIterationsExceeded TaskStatus = "MAX_ITERATIONS_EXCEEDED"
	StatusFatalError            TaskStatus = "FATAL_ERROR"
)

// ExitCode maps a terminal status to a process exit code for the CLI.
func (s TaskStatus) ExitCode() int {
	switch s {
	case StatusCompleted:
		return 0
	case StatusRejected:
		return 1
	case StatusMaxIterationsExceeded:
		return 2
	case StatusFatalError:
		return 3
	default:
		return 3
	}
}

// TaskResult is produced exactly once, at workflow termination.
type TaskResult struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Summary      string     `json:"summary"`
	Iterations   int        `json:"iterations"`
	ChangedFiles []string   `json:"changed_files,omitempty"`
}

// ApprovalDecision is produced by a Reviewer or the human proxy and consumed
// by the workflow state machine to choose the next transition.
type ApprovalDecision struct {
	Approved bool     `json:"approved"`
	Comments []string `json:"comments,omitempty"`
}

// DecisionFromMessage extracts an approval decision from message metadata.
// The second return value reports whether the message carried one.
func DecisionFromMessage(msg *Message) (ApprovalDecision, bool) {
	approved, ok := msg.MetaBool(KeyApproved)
	if !ok {
		return ApprovalDecision{}, false
	}
	comments, _ := msg.MetaStrings(KeyComments)
	return ApprovalDecision{Approved: approved, Comments: comments}, true
}

// Apply stamps the decision onto message metadata.
func (d ApprovalDecision) Apply(msg *Message) {
	msg.SetMeta(KeyApproved, d.Approved)
	if len(d.Comments) > 0 {
		msg.SetMeta(KeyComments, d.Comments)
	}
}
