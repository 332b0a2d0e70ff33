// Package workflow implements the task state machine driving
// plan -> implement -> test -> review -> (iterate | approve | terminate),
// including the iteration cap and the optional human approval gate. Only the
// orchestrator mutates the machine; agents influence it solely through the
// metadata on the messages they return.
package workflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"devteam/pkg/logx"
	"devteam/pkg/proto"
)

// Phase is a workflow state.
type Phase string

const (
	PhasePlanning         Phase = "PLANNING"
	PhaseImplementing     Phase = "IMPLEMENTING"
	PhaseTesting          Phase = "TESTING"
	PhaseReviewing        Phase = "REVIEWING"
	PhaseAwaitingApproval Phase = "AWAITING_APPROVAL"
	PhaseDone             Phase = "DONE"
	PhaseFailed           Phase = "FAILED"
)

// Terminal reports whether the phase ends the workflow.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// validTransitions is the closed transition table. Every phase may
// additionally transition to Failed.
var validTransitions = map[Phase][]Phase{
	PhasePlanning:         {PhaseImplementing, PhaseReviewing},
	PhaseImplementing:     {PhaseTesting, PhaseReviewing},
	PhaseTesting:          {PhaseReviewing},
	PhaseReviewing:        {PhaseDone, PhaseImplementing, PhaseAwaitingApproval},
	PhaseAwaitingApproval: {PhaseDone},
	PhaseDone:             {},
	PhaseFailed:           {},
}

// ValidateTransition reports whether from -> to is legal.
func ValidateTransition(from, to Phase) error {
	if to == PhaseFailed && from != PhaseFailed {
		return nil
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid workflow transition %s -> %s", from, to)
}

// State is the serializable workflow state. Every field is sufficient to
// reconstruct the in-flight workflow after an interruption.
type State struct {
	TaskID          string           `json:"task_id"`
	Phase           Phase            `json:"phase"`
	Iteration       int              `json:"iteration"`
	Plan            []string         `json:"plan,omitempty"`
	PendingApproval string           `json:"pending_approval,omitempty"`
	ChangedFiles    []string         `json:"changed_files,omitempty"`
	TestSummary     string           `json:"test_summary,omitempty"`
	Comments        []string         `json:"comments,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Status          proto.TaskStatus `json:"status,omitempty"`
}

// Machine drives one task's workflow. It is not safe for concurrent use; the
// orchestrator's single event loop is the only caller.
type Machine struct {
	state         State
	maxIterations int
	gateEnabled   bool
	logger        *logx.Logger
}

// NewMachine creates a machine in Planning for the given task.
func NewMachine(taskID string, maxIterations int, gateEnabled bool) *Machine {
	return NewMachineFromState(State{TaskID: taskID, Phase: PhasePlanning}, maxIterations, gateEnabled)
}

// NewMachineFromState reconstructs a machine from a serialized state, used on
// resume. Progress continues through the same code paths as a fresh run.
func NewMachineFromState(state State, maxIterations int, gateEnabled bool) *Machine {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	return &Machine{
		state:         state,
		maxIterations: maxIterations,
		gateEnabled:   gateEnabled,
		logger:        logx.NewLogger("workflow"),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	s := m.state
	s.Plan = append([]string(nil), m.state.Plan...)
	s.ChangedFiles = append([]string(nil), m.state.ChangedFiles...)
	s.Comments = append([]string(nil), m.state.Comments...)
	return s
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.state.Phase }

// Done reports whether the workflow has reached a terminal phase.
func (m *Machine) Done() bool { return m.state.Phase.Terminal() }

func (m *Machine) transition(to Phase) error {
	if err := ValidateTransition(m.state.Phase, to); err != nil {
		return err
	}
	m.logger.Info("task %s: %s -> %s (iteration %d)", m.state.TaskID, m.state.Phase, to, m.state.Iteration)
	m.state.Phase = to
	return nil
}

// Observe feeds one agent-produced message into the machine. It returns the
// follow-up messages a transition requires (e.g. entering Testing enqueues a
// message to the Tester). Messages that do not complete the current phase are
// ignored.
func (m *Machine) Observe(msg *proto.Message) ([]*proto.Message, error) {
	switch m.state.Phase {
	case PhasePlanning:
		return m.observePlanning(msg)
	case PhaseImplementing:
		return m.observeImplementing(msg)
	case PhaseTesting:
		return m.observeTesting(msg)
	case PhaseReviewing:
		return m.observeReviewing(msg)
	case PhaseAwaitingApproval:
		return m.observeAwaitingApproval(msg)
	default:
		return nil, nil
	}
}

func (m *Machine) observePlanning(msg *proto.Message) ([]*proto.Message, error) {
	steps, ok := msg.MetaStrings(proto.KeyPlanSteps)
	if !ok || len(steps) == 0 {
		return nil, nil
	}
	m.state.Plan = steps
	return nil, m.transition(PhaseImplementing)
}

func (m *Machine) observeImplementing(msg *proto.Message) ([]*proto.Message, error) {
	files, ok := msg.MetaStrings(proto.KeyFiles)
	if !ok || msg.From != proto.AgentCoder {
		return nil, nil
	}
	m.mergeChangedFiles(files)
	if err := m.transition(PhaseTesting); err != nil {
		return nil, err
	}

	test := m.followUp(proto.AgentTester, "Run the test suite for the latest changes.", msg)
	test.SetMeta(proto.KeyFiles, files)
	return []*proto.Message{test}, nil
}

func (m *Machine) observeTesting(msg *proto.Message) ([]*proto.Message, error) {
	passed, ok := msg.MetaBool(proto.KeyTestsPassed)
	if !ok {
		return nil, nil
	}
	summary, _ := msg.MetaString(proto.KeyTestSummary)
	m.state.TestSummary = summary
	if err := m.transition(PhaseReviewing); err != nil {
		return nil, err
	}

	verdict := "passed"
	if !passed {
		verdict = "failed"
	}
	review := m.followUp(proto.AgentReviewer, fmt.Sprintf("Review the changes. Tests %s.", verdict), msg)
	review.SetMeta(proto.KeyFiles, m.state.ChangedFiles)
	review.SetMeta(proto.KeyTestSummary, summary)
	return []*proto.Message{review}, nil
}

func (m *Machine) observeReviewing(msg *proto.Message) ([]*proto.Message, error) {
	decision, ok := proto.DecisionFromMessage(msg)
	if !ok {
		return nil, nil
	}

	if decision.Approved {
		if m.gateEnabled {
			return m.requestApproval(msg)
		}
		return nil, m.complete(msg.Content)
	}
	return m.rejected(decision, msg)
}

func (m *Machine) observeAwaitingApproval(msg *proto.Message) ([]*proto.Message, error) {
	decision, ok := proto.DecisionFromMessage(msg)
	if !ok {
		return nil, nil
	}
	if id, _ := msg.MetaString(proto.KeyApprovalID); id != m.state.PendingApproval {
		return nil, nil
	}
	m.state.PendingApproval = ""

	if decision.Approved {
		return nil, m.complete(m.state.Summary)
	}
	m.state.Comments = decision.Comments
	m.fail(proto.StatusRejected, "change rejected at the approval gate: "+strings.Join(decision.Comments, "; "))
	return nil, nil
}

// requestApproval suspends the workflow until the human proxy answers.
func (m *Machine) requestApproval(msg *proto.Message) ([]*proto.Message, error) {
	if err := m.transition(PhaseAwaitingApproval); err != nil {
		return nil, err
	}
	m.state.PendingApproval = uuid.NewString()
	m.state.Summary = msg.Content

	request := m.followUp(proto.AgentUserProxy, "The reviewer approved the changes. Approve completing the task?\n\n"+msg.Content, msg)
	request.SetMeta(proto.KeyApprovalID, m.state.PendingApproval)
	return []*proto.Message{request}, nil
}

// rejected handles a negative review: either iterate or exhaust.
func (m *Machine) rejected(decision proto.ApprovalDecision, msg *proto.Message) ([]*proto.Message, error) {
	m.state.Comments = decision.Comments

	if m.state.Iteration >= m.maxIterations {
		m.fail(proto.StatusMaxIterationsExceeded,
			fmt.Sprintf("iteration limit (%d) reached; last review: %s", m.maxIterations, strings.Join(decision.Comments, "; ")))
		return nil, nil
	}

	m.state.Iteration++
	if err := m.transition(PhaseImplementing); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("Revise the implementation (iteration %d).\nReviewer comments:\n%s\n\nOriginal plan:\n%s",
		m.state.Iteration, strings.Join(decision.Comments, "\n"), strings.Join(m.state.Plan, "\n"))
	revise := m.followUp(proto.AgentCoder, content, msg)
	revise.SetMeta(proto.KeyPlanSteps, m.state.Plan)
	revise.SetMeta(proto.KeyIteration, m.state.Iteration)
	return []*proto.Message{revise}, nil
}

// ObserveFailure folds a recoverable agent failure into the workflow: the
// phase moves to Reviewing and the Reviewer receives a failure-attributed
// message instead of a completion message.
func (m *Machine) ObserveFailure(agentID string, failure error) ([]*proto.Message, error) {
	if m.state.Phase.Terminal() || m.state.Phase == PhaseReviewing {
		return nil, fmt.Errorf("unrecoverable failure in phase %s: %w", m.state.Phase, failure)
	}
	if err := m.transition(PhaseReviewing); err != nil {
		return nil, err
	}

	report := proto.NewMessage(proto.AgentOrchestrator, proto.AgentReviewer,
		fmt.Sprintf("Agent %s failed: %v", agentID, failure))
	report.SetMeta(proto.KeyTaskID, m.state.TaskID)
	report.SetMeta(proto.KeyFailure, failure.Error())
	report.SetMeta(proto.KeyFailedAgent, agentID)
	return []*proto.Message{report}, nil
}

// Fail force-transitions the workflow to Failed with the given terminal
// status and summary. Used for fatal infrastructure errors, cancellation,
// and queue stalls.
func (m *Machine) Fail(status proto.TaskStatus, summary string) {
	m.fail(status, summary)
}

func (m *Machine) fail(status proto.TaskStatus, summary string) {
	m.logger.Warn("task %s: %s -> %s (%s)", m.state.TaskID, m.state.Phase, PhaseFailed, status)
	m.state.Phase = PhaseFailed
	m.state.Status = status
	m.state.Summary = summary
}

func (m *Machine) complete(summary string) error {
	if err := m.transition(PhaseDone); err != nil {
		return err
	}
	m.state.Status = proto.StatusCompleted
	if summary != "" {
		m.state.Summary = summary
	}
	return nil
}

// Result builds the task result for a terminal machine.
func (m *Machine) Result() *proto.TaskResult {
	status := m.state.Status
	if status == "" {
		status = proto.StatusFatalError
	}
	summary := m.state.Summary
	if summary == "" && len(m.state.Comments) > 0 {
		summary = strings.Join(m.state.Comments, "; ")
	}
	return &proto.TaskResult{
		TaskID:       m.state.TaskID,
		Status:       status,
		Summary:      summary,
		Iterations:   m.state.Iteration,
		ChangedFiles: append([]string(nil), m.state.ChangedFiles...),
	}
}

func (m *Machine) mergeChangedFiles(files []string) {
	seen := make(map[string]bool, len(m.state.ChangedFiles))
	for _, f := range m.state.ChangedFiles {
		seen[f] = true
	}
	for _, f := range files {
		if !seen[f] {
			m.state.ChangedFiles = append(m.state.ChangedFiles, f)
			seen[f] = true
		}
	}
}

// followUp creates a transition-driven message carrying task correlation.
func (m *Machine) followUp(to, content string, parent *proto.Message) *proto.Message {
	msg := proto.NewMessage(proto.AgentOrchestrator, to, content)
	msg.ParentID = parent.ID
	msg.SetMeta(proto.KeyTaskID, m.state.TaskID)
	return msg
}
