// Package config provides configuration loading and validation for the
// orchestrator. Configuration is read from a YAML file with ${ENV_VAR}
// substitution for secrets, and defaults applied for anything omitted.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"devteam/pkg/proto"
)

// Approval policy modes.
const (
	ApprovalModeAutonomous = "autonomous"
	ApprovalModeRequired   = "approval-required"
)

// LLM provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// DefaultMaxIterations bounds the improve-and-review loop.
const DefaultMaxIterations = 5

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxRetries  int     `yaml:"max_retries"`
}

// ExecutorConfig configures the command execution sandbox.
type ExecutorConfig struct {
	Mode        proto.ExecMode    `yaml:"mode"`
	DockerImage string            `yaml:"docker_image"`
	TimeoutSec  int               `yaml:"timeout_sec"`
	Env         map[string]string `yaml:"env"`
}

// ApprovalConfig configures human-in-the-loop checkpoints.
type ApprovalConfig struct {
	Mode                     string `yaml:"mode"`
	RequireExecutionApproval bool   `yaml:"require_execution_approval"`
	RequireReviewApproval    bool   `yaml:"require_review_approval"`
}

// Required reports whether the named tool needs an approval under this
// policy.
func (a *ApprovalConfig) Required(toolName string) bool {
	if a.Mode != ApprovalModeRequired {
		return false
	}
	if toolName == "run_command" {
		return a.RequireExecutionApproval
	}
	return false
}

// GateEnabled reports whether the workflow must suspend in AwaitingApproval
// before a Reviewing -> Done transition.
func (a *ApprovalConfig) GateEnabled() bool {
	return a.Mode == ApprovalModeRequired && a.RequireReviewApproval
}

// AgentConfig describes a single agent registration.
type AgentConfig struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
	Type string `yaml:"type"`
}

// Config is the top-level orchestrator configuration.
type Config struct {
	WorkspaceRoot string         `yaml:"workspace_root"`
	MaxIterations int            `yaml:"max_iterations"`
	TestCommands  [][]string     `yaml:"test_commands"`
	LLM           LLMConfig      `yaml:"llm"`
	Executor      ExecutorConfig `yaml:"executor"`
	Approvals     ApprovalConfig `yaml:"approvals"`
	Agents        []AgentConfig  `yaml:"agents"`
	SnapshotPath  string         `yaml:"snapshot_path"`
	EventLogDir   string         `yaml:"event_log_dir"`
	MemoryDBPath  string         `yaml:"memory_db_path"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if len(c.TestCommands) == 0 {
		c.TestCommands = [][]string{{"go", "test", "./..."}}
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderAnthropic
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	} else if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.Executor.Mode == "" {
		c.Executor.Mode = proto.ExecModeLocal
	}
	if c.Executor.DockerImage == "" {
		c.Executor.DockerImage = "golang:1.24-alpine"
	}
	if c.Executor.TimeoutSec <= 0 {
		c.Executor.TimeoutSec = 300
	}
	if c.Approvals.Mode == "" {
		c.Approvals.Mode = ApprovalModeAutonomous
	}
	if len(c.Agents) == 0 {
		c.Agents = DefaultAgents()
	}
}

// DefaultAgents returns the standard workflow agent set.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{ID: proto.AgentPlanner, Role: "Planning agent", Type: "planner"},
		{ID: proto.AgentCoder, Role: "Coding agent", Type: "coder"},
		{ID: proto.AgentTester, Role: "Testing agent", Type: "tester"},
		{ID: proto.AgentReviewer, Role: "Review agent", Type: "reviewer"},
		{ID: proto.AgentUserProxy, Role: "Human proxy agent", Type: "user_proxy"},
	}
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if _, err := proto.ParseExecMode(string(c.Executor.Mode)); err != nil {
		return fmt.Errorf("executor config: %w", err)
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	switch c.Approvals.Mode {
	case ApprovalModeAutonomous, ApprovalModeRequired:
	default:
		return fmt.Errorf("unknown approval mode: %q", c.Approvals.Mode)
	}
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.ID == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id in config: %q", a.ID)
		}
		seen[a.ID] = true
	}
	for i, cmd := range c.TestCommands {
		if len(cmd) == 0 {
			return fmt.Errorf("test command %d is empty", i)
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv replaces ${VAR} placeholders with environment values.
// Unset variables expand to the empty string so a missing API key fails at
// validation time, not with a cryptic YAML error.
func substituteEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads a YAML configuration file, applies env substitution and
// defaults, and validates the result. An empty path returns defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(substituteEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
