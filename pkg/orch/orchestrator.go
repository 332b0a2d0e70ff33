// Package orch implements the orchestrator: the agent registry, the FIFO
// message queue, and the event loop that drives one task's workflow from
// Planning to a terminal phase. It is the single entry and exit point for a
// task and the only component that mutates workflow state.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"devteam/pkg/agents"
	"devteam/pkg/eventlog"
	execpkg "devteam/pkg/exec"
	"devteam/pkg/llm"
	"devteam/pkg/logx"
	"devteam/pkg/memory"
	"devteam/pkg/metrics"
	"devteam/pkg/proto"
	"devteam/pkg/workflow"
)

// Orchestrator errors.
var (
	ErrDuplicateAgent = errors.New("agent already registered")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrStalled        = errors.New("orchestration stalled: queue drained before a terminal phase")
	ErrTaskRunning    = errors.New("a task is already running")
)

// Options configures an orchestrator instance.
type Options struct {
	MaxIterations int
	ApprovalGate  bool
	SnapshotPath  string
	Store         memory.Store
	EventLog      *eventlog.Writer
	Recorder      *metrics.Recorder
}

// Orchestrator owns the agent registry, the message queue, and the workflow
// state for the running task. Agents never see it; they communicate only
// through the messages it routes.
type Orchestrator struct {
	mu      sync.Mutex
	agents  map[string]agents.Agent
	queue   []*proto.Message
	running bool

	opts   Options
	logger *logx.Logger
}

// New creates an orchestrator. A nil Store in opts falls back to an
// in-memory store.
func New(opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1
	}
	if opts.Store == nil {
		opts.Store = memory.NewInMemory()
	}
	return &Orchestrator{
		agents: make(map[string]agents.Agent),
		opts:   opts,
		logger: logx.NewLogger("orchestrator"),
	}
}

// RegisterAgent adds an agent to the registry. The registry is immutable
// while a task is running; agents may be added only between tasks.
func (o *Orchestrator) RegisterAgent(agent agents.Agent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("%w: cannot register %s", ErrTaskRunning, agent.ID())
	}
	if _, exists := o.agents[agent.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, agent.ID())
	}
	o.agents[agent.ID()] = agent
	return nil
}

// Agent returns the registered agent for id. Absence is a normal outcome
// here; callers decide whether it is fatal.
func (o *Orchestrator) Agent(id string) (agents.Agent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	agent, ok := o.agents[id]
	return agent, ok
}

// Send appends a message to the tail of the FIFO queue. No reordering, no
// deduplication: a message enqueued twice is delivered twice.
func (o *Orchestrator) Send(msg *proto.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, msg)
	if o.opts.Recorder != nil {
		o.opts.Recorder.SetQueueDepth(len(o.queue))
	}
	return nil
}

func (o *Orchestrator) pop() (*proto.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil, false
	}
	msg := o.queue[0]
	o.queue = o.queue[1:]
	if o.opts.Recorder != nil {
		o.opts.Recorder.SetQueueDepth(len(o.queue))
	}
	return msg, true
}

func (o *Orchestrator) pendingQueue() []*proto.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*proto.Message(nil), o.queue...)
}

func (o *Orchestrator) setRunning(v bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v && o.running {
		return ErrTaskRunning
	}
	o.running = v
	return nil
}

// RunTask executes one task to a terminal phase and returns its result. The
// returned result is always well formed; fatal failures are reported through
// its status, not through the error return.
func (o *Orchestrator) RunTask(ctx context.Context, task *proto.Task) (*proto.TaskResult, error) {
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	machine := workflow.NewMachine(task.ID, o.opts.MaxIterations, o.opts.ApprovalGate)

	seed := proto.NewMessage(proto.AgentOrchestrator, proto.AgentPlanner, task.Description)
	seed.SetMeta(proto.KeyTaskID, task.ID)
	if err := o.Send(seed); err != nil {
		return nil, err
	}

	return o.drain(ctx, task.ID, machine)
}

// Resume re-enters the event loop from a persisted snapshot. Recovery uses
// the same loop as normal progress; there is no special-cased recovery path.
func (o *Orchestrator) Resume(ctx context.Context, snap *workflow.Snapshot) (*proto.TaskResult, error) {
	machine := workflow.NewMachineFromState(snap.State, o.opts.MaxIterations, o.opts.ApprovalGate)
	for _, msg := range snap.Queue {
		if err := o.Send(msg); err != nil {
			return nil, fmt.Errorf("restore queue: %w", err)
		}
	}
	return o.drain(ctx, snap.State.TaskID, machine)
}

// drain is the event loop: pop, dispatch, enqueue outputs, evaluate
// transitions, repeat until a terminal phase.
func (o *Orchestrator) drain(ctx context.Context, taskID string, machine *workflow.Machine) (*proto.TaskResult, error) {
	if err := o.setRunning(true); err != nil {
		return nil, err
	}
	defer func() { _ = o.setRunning(false) }()

	for !machine.Done() {
		if err := ctx.Err(); err != nil {
			machine.Fail(proto.StatusFatalError, "cancelled: "+err.Error())
			break
		}

		msg, ok := o.pop()
		if !ok {
			// A drained queue with incomplete work is an invariant
			// violation, not success.
			machine.Fail(proto.StatusFatalError, ErrStalled.Error())
			break
		}

		o.record(taskID, msg)

		if msg.To == proto.AgentOrchestrator {
			// Outcome messages addressed to the orchestrator were already
			// observed at production time; nothing to dispatch.
			continue
		}

		agent, found := o.Agent(msg.To)
		if !found {
			machine.Fail(proto.StatusFatalError, fmt.Sprintf("%v: message addressed to %q", ErrAgentNotFound, msg.To))
			break
		}

		outputs, err := agent.Handle(ctx, msg.Clone())
		if err != nil {
			o.handleAgentFailure(machine, msg.To, err)
			o.snapshot(machine)
			continue
		}

		for _, out := range outputs {
			if err := o.routeOutput(taskID, machine, out); err != nil {
				machine.Fail(proto.StatusFatalError, err.Error())
				break
			}
		}
		o.snapshot(machine)
	}

	result := machine.Result()
	if o.opts.Recorder != nil {
		o.opts.Recorder.ObserveTaskResult(string(result.Status), result.Iterations)
	}
	o.snapshot(machine)
	o.logger.Info("task %s finished: %s after %d iteration(s)", result.TaskID, result.Status, result.Iterations)
	return result, nil
}

// routeOutput enqueues an agent output, feeds it to the state machine, and
// enqueues any transition-driven follow-ups.
func (o *Orchestrator) routeOutput(taskID string, machine *workflow.Machine, out *proto.Message) error {
	if out.To != proto.AgentOrchestrator {
		if err := o.Send(out); err != nil {
			return fmt.Errorf("route output from %s: %w", out.From, err)
		}
	} else {
		o.record(taskID, out)
	}

	followUps, err := machine.Observe(out)
	if err != nil {
		return fmt.Errorf("workflow transition: %w", err)
	}
	for _, follow := range followUps {
		if err := o.Send(follow); err != nil {
			return fmt.Errorf("enqueue transition message: %w", err)
		}
	}
	return nil
}

// handleAgentFailure classifies a dispatch error: fatal infrastructure
// failures abort the task; anything else becomes a failure-attributed
// message to the Reviewer.
func (o *Orchestrator) handleAgentFailure(machine *workflow.Machine, agentID string, err error) {
	if isFatal(err) {
		o.logger.Error("agent %s fatal failure: %v", agentID, err)
		machine.Fail(proto.StatusFatalError, fmt.Sprintf("agent %s: %v", agentID, err))
		return
	}

	o.logger.Warn("agent %s recoverable failure: %v", agentID, err)
	followUps, ferr := machine.ObserveFailure(agentID, err)
	if ferr != nil {
		machine.Fail(proto.StatusFatalError, ferr.Error())
		return
	}
	for _, follow := range followUps {
		if serr := o.Send(follow); serr != nil {
			machine.Fail(proto.StatusFatalError, serr.Error())
			return
		}
	}
}

// isFatal reports whether a dispatch error must abort the task instead of
// being folded into the review loop.
func isFatal(err error) bool {
	return errors.Is(err, execpkg.ErrSandboxUnavailable) || llm.IsFatal(err)
}

// record logs and persists one routed message.
func (o *Orchestrator) record(taskID string, msg *proto.Message) {
	o.logger.Debug("message %s: %s -> %s", msg.ID, msg.From, msg.To)
	if o.opts.Recorder != nil {
		o.opts.Recorder.ObserveMessage(msg.From, msg.To)
	}
	if o.opts.EventLog != nil {
		if err := o.opts.EventLog.Append(msg); err != nil {
			o.logger.Warn("event log append failed: %v", err)
		}
	}
	if err := o.opts.Store.AppendMessage(taskID, msg); err != nil {
		o.logger.Warn("memory append failed: %v", err)
	}
}

// snapshot persists workflow state plus the pending queue so the process can
// stop and later resume from exactly this point.
func (o *Orchestrator) snapshot(machine *workflow.Machine) {
	if o.opts.SnapshotPath == "" {
		return
	}
	snap := &workflow.Snapshot{State: machine.State(), Queue: o.pendingQueue()}
	if err := snap.Save(o.opts.SnapshotPath); err != nil {
		o.logger.Warn("snapshot save failed: %v", err)
	}
}
