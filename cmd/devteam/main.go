// Command devteam runs a multi-agent software-change task against a
// workspace: a Planner decomposes the task, a Coder applies edits, a Tester
// runs the configured commands, and a Reviewer iterates until approval or a
// termination condition.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"gopkg.in/yaml.v3"

	"devteam/pkg/agents"
	"devteam/pkg/config"
	"devteam/pkg/eval"
	"devteam/pkg/eventlog"
	execpkg "devteam/pkg/exec"
	"devteam/pkg/llm"
	"devteam/pkg/logx"
	"devteam/pkg/memory"
	"devteam/pkg/metrics"
	"devteam/pkg/orch"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
	"devteam/pkg/workflow"
	"devteam/pkg/workspace"
)

// promptTokenBudget caps a single request's prompt size.
const promptTokenBudget = 100_000

func main() {
	os.Exit(run())
}

func run() int {
	var (
		taskDesc      string
		workspaceRoot string
		mode          string
		allowWrite    bool
		allowExec     bool
		configPath    string
		resumePath    string
		evalPath      string
		maxIterations int
	)
	flag.StringVar(&taskDesc, "task", "", "Natural-language description of the change to make")
	flag.StringVar(&workspaceRoot, "workspace", "", "Workspace directory (default: from config, else current directory)")
	flag.StringVar(&mode, "mode", "", "Execution mode: local or sandboxed (default: from config)")
	flag.BoolVar(&allowWrite, "allow-write", true, "Permit the coder to write files")
	flag.BoolVar(&allowExec, "allow-exec", true, "Permit the tester to execute commands")
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&resumePath, "resume", "", "Path to a workflow snapshot to resume")
	flag.StringVar(&evalPath, "eval", "", "Path to a YAML evaluation suite to run instead of a single task")
	flag.IntVar(&maxIterations, "max-iterations", 0, "Override the review iteration cap")
	flag.Parse()

	logger := logx.NewLogger("devteam")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return proto.StatusFatalError.ExitCode()
	}
	if workspaceRoot != "" {
		cfg.WorkspaceRoot = workspaceRoot
	}
	if mode != "" {
		parsed, err := proto.ParseExecMode(mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return proto.StatusFatalError.ExitCode()
		}
		cfg.Executor.Mode = parsed
	}
	if maxIterations > 0 {
		cfg.MaxIterations = maxIterations
	}

	if taskDesc == "" && resumePath == "" && evalPath == "" {
		fmt.Fprintln(os.Stderr, "error: -task, -resume or -eval is required")
		flag.Usage()
		return proto.StatusFatalError.ExitCode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if evalPath != "" {
		code, err := runEval(ctx, cfg, evalPath, allowWrite, allowExec, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return proto.StatusFatalError.ExitCode()
		}
		return code
	}

	result, err := execute(ctx, cfg, taskDesc, resumePath, allowWrite, allowExec, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return proto.StatusFatalError.ExitCode()
	}

	printResult(result)
	return result.Status.ExitCode()
}

// engine bundles a fully wired orchestrator with its workspace root and the
// resources to release when done.
type engine struct {
	orch    *orch.Orchestrator
	root    string
	cleanup func()
}

func buildEngine(ctx context.Context, cfg *config.Config, allowWrite, allowExec bool) (*engine, error) {
	client, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.NewDir(cfg.WorkspaceRoot, allowWrite)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	executor := execpkg.ForMode(cfg.Executor.Mode == proto.ExecModeSandboxed, cfg.Executor.DockerImage, ws.Root())
	if !executor.Available() {
		closeStore()
		return nil, fmt.Errorf("executor %s: %w", executor.Name(), execpkg.ErrSandboxUnavailable)
	}

	recorder := metrics.NewRecorder()
	registry := tools.NewRegistry(recorder)
	if err := tools.RegisterBuiltins(registry, tools.BuiltinDeps{
		Workspace:      ws,
		Executor:       executor,
		Store:          store,
		WorkDir:        ws.Root(),
		AllowExec:      allowExec,
		ExecApprover:   execApprover(cfg),
		CommandTimeout: time.Duration(cfg.Executor.TimeoutSec) * time.Second,
		Env:            envList(cfg.Executor.Env),
	}); err != nil {
		closeStore()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	var events *eventlog.Writer
	if cfg.EventLogDir != "" {
		events, err = eventlog.NewWriter(cfg.EventLogDir)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("open event log: %w", err)
		}
	}

	orchestrator := orch.New(orch.Options{
		MaxIterations: cfg.MaxIterations,
		ApprovalGate:  cfg.Approvals.GateEnabled(),
		SnapshotPath:  cfg.SnapshotPath,
		Store:         store,
		EventLog:      events,
		Recorder:      recorder,
	})

	opts := llm.Options{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}
	if err := registerAgents(orchestrator, cfg, client, registry, store, opts); err != nil {
		if events != nil {
			_ = events.Close()
		}
		closeStore()
		return nil, err
	}

	cleanup := func() {
		if events != nil {
			_ = events.Close()
		}
		closeStore()
	}
	return &engine{orch: orchestrator, root: ws.Root(), cleanup: cleanup}, nil
}

func execute(ctx context.Context, cfg *config.Config, taskDesc, resumePath string, allowWrite, allowExec bool, logger *logx.Logger) (*proto.TaskResult, error) {
	eng, err := buildEngine(ctx, cfg, allowWrite, allowExec)
	if err != nil {
		return nil, err
	}
	defer eng.cleanup()

	if resumePath != "" {
		snap, err := workflow.LoadSnapshot(resumePath)
		if err != nil {
			return nil, err
		}
		logger.Info("resuming task %s from %s (phase %s)", snap.State.TaskID, resumePath, snap.State.Phase)
		return eng.orch.Resume(ctx, snap)
	}

	task := proto.NewTask(taskDesc, eng.root, cfg.Executor.Mode)
	task.AllowWrite = allowWrite
	task.AllowExec = allowExec
	logger.Info("running task %s in %s (%s mode)", task.ID, eng.root, task.ExecMode)
	return eng.orch.RunTask(ctx, task)
}

// evalSuite is the on-disk YAML format for -eval.
type evalSuite struct {
	Tasks []struct {
		ID             string `yaml:"id"`
		Description    string `yaml:"description"`
		ExpectedStatus string `yaml:"expected_status"`
	} `yaml:"tasks"`
}

func loadSuite(path string) (*evalSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evaluation suite %s: %w", path, err)
	}
	suite := &evalSuite{}
	if err := yaml.Unmarshal(data, suite); err != nil {
		return nil, fmt.Errorf("parse evaluation suite %s: %w", path, err)
	}
	if len(suite.Tasks) == 0 {
		return nil, fmt.Errorf("evaluation suite %s contains no tasks", path)
	}
	return suite, nil
}

// runEval executes an evaluation suite against the configured workspace and
// returns the process exit code: 0 when every case passed, 1 otherwise.
func runEval(ctx context.Context, cfg *config.Config, path string, allowWrite, allowExec bool, logger *logx.Logger) (int, error) {
	suite, err := loadSuite(path)
	if err != nil {
		return 0, err
	}

	eng, err := buildEngine(ctx, cfg, allowWrite, allowExec)
	if err != nil {
		return 0, err
	}
	defer eng.cleanup()

	tasks := make([]eval.Task, len(suite.Tasks))
	for i, tc := range suite.Tasks {
		tasks[i] = eval.Task{
			ID:             tc.ID,
			Description:    tc.Description,
			WorkspaceRoot:  eng.root,
			ExecMode:       cfg.Executor.Mode,
			ExpectedStatus: proto.TaskStatus(tc.ExpectedStatus),
		}
	}

	logger.Info("running evaluation suite %s (%d tasks)", path, len(tasks))
	summary, err := eval.NewHarness(eng.orch).Run(ctx, tasks)
	if err != nil {
		return 0, err
	}

	printEvalSummary(summary)
	if summary.Failed > 0 {
		return 1, nil
	}
	return 0, nil
}

func printEvalSummary(summary *eval.Summary) {
	fmt.Println()
	for _, r := range summary.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("FAIL  %s: error: %v (%s)\n", r.TaskID, r.Err, r.Duration.Round(time.Millisecond))
		case r.Passed:
			fmt.Printf("PASS  %s: %s (%s)\n", r.TaskID, r.Status, r.Duration.Round(time.Millisecond))
		default:
			fmt.Printf("FAIL  %s: %s, expected %s (%s)\n", r.TaskID, r.Status, r.ExpectedStatus, r.Duration.Round(time.Millisecond))
		}
	}
	fmt.Printf("\n%d passed, %d failed in %s\n", summary.Passed, summary.Failed, summary.Duration.Round(time.Millisecond))
}

func registerAgents(engine *orch.Orchestrator, cfg *config.Config, client llm.Client, registry *tools.Registry, store memory.Store, opts llm.Options) error {
	for _, ac := range cfg.Agents {
		var agent agents.Agent
		switch ac.Type {
		case "planner":
			agent = agents.NewPlanner(client, registry, store, opts)
		case "coder":
			agent = agents.NewCoder(client, registry, store, opts)
		case "tester":
			agent = agents.NewTester(client, registry, store, opts, cfg.TestCommands)
		case "reviewer":
			agent = agents.NewReviewer(client, registry, store, opts)
		case "user_proxy":
			agent = agents.NewUserProxy(client, registry, store, decisionSource(cfg))
		default:
			return fmt.Errorf("unknown agent type %q for agent %q", ac.Type, ac.ID)
		}
		if err := engine.RegisterAgent(agent); err != nil {
			return err
		}
	}
	return nil
}

func buildLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var base llm.Client
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		base = llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model)
	case config.ProviderOpenAI:
		base = llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model)
	case config.ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		base = client
	case config.ProviderMock:
		base = llm.NewMockClient()
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLM.Provider)
	}

	counter, err := llm.NewTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}

	retryCfg := llm.DefaultRetryConfig
	if cfg.LLM.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.LLM.MaxRetries
	}

	// Timeout sits inside retry so every attempt gets a fresh deadline.
	client := llm.NewBudgetClient(base, counter, promptTokenBudget)
	timed := llm.NewTimeoutClient(client, time.Duration(cfg.LLM.TimeoutSec)*time.Second)
	return llm.NewRetryClient(timed, retryCfg), nil
}

func buildStore(cfg *config.Config) (memory.Store, func(), error) {
	if cfg.MemoryDBPath == "" {
		return memory.NewInMemory(), func() {}, nil
	}
	store, err := memory.OpenSQLite(cfg.MemoryDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory db: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// envList flattens the configured executor environment into KEY=VALUE pairs,
// sorted for deterministic command environments.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}

// execApprover returns the per-command sign-off source for run_command, or
// nil when the policy does not require one. Without a terminal a required
// approval cannot be granted, so commands are refused rather than run.
func execApprover(cfg *config.Config) tools.ExecApprover {
	if !cfg.Approvals.Required(tools.ToolRunCommand) {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return func(context.Context, string) (bool, error) { return false, nil }
	}

	reader := bufio.NewReader(os.Stdin)
	return func(_ context.Context, command string) (bool, error) {
		fmt.Printf("\nRun command? %s [y/N]: ", command)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("read execution approval: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

// decisionSource returns the approval source for the human proxy: an
// interactive terminal prompt when one is attached and the policy requires
// it, otherwise an explicit auto-approval.
func decisionSource(cfg *config.Config) agents.DecisionFunc {
	if cfg.Approvals.Mode != config.ApprovalModeRequired || !term.IsTerminal(int(os.Stdin.Fd())) {
		return agents.AutoApprove
	}

	reader := bufio.NewReader(os.Stdin)
	return func(_ context.Context, msg *proto.Message) (proto.ApprovalDecision, error) {
		fmt.Println()
		fmt.Println(msg.Content)
		fmt.Print("Approve? [y/N, or comments to reject]: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return proto.ApprovalDecision{}, fmt.Errorf("read approval: %w", err)
		}
		answer := strings.TrimSpace(line)
		switch strings.ToLower(answer) {
		case "y", "yes":
			return proto.ApprovalDecision{Approved: true}, nil
		case "", "n", "no":
			return proto.ApprovalDecision{Approved: false, Comments: []string{"rejected by user"}}, nil
		default:
			return proto.ApprovalDecision{Approved: false, Comments: []string{answer}}, nil
		}
	}
}

func printResult(result *proto.TaskResult) {
	fmt.Println()
	fmt.Printf("Task:       %s\n", result.TaskID)
	fmt.Printf("Status:     %s\n", result.Status)
	fmt.Printf("Iterations: %d\n", result.Iterations)
	if len(result.ChangedFiles) > 0 {
		fmt.Printf("Changed:    %s\n", strings.Join(result.ChangedFiles, ", "))
	}
	if result.Summary != "" {
		fmt.Printf("Summary:\n%s\n", indent(result.Summary))
	}
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
