package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devteam/pkg/proto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devteam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, proto.ExecModeLocal, cfg.Executor.Mode)
	assert.Equal(t, ApprovalModeAutonomous, cfg.Approvals.Mode)
	assert.Equal(t, [][]string{{"go", "test", "./..."}}, cfg.TestCommands)
	assert.Len(t, cfg.Agents, 5)
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	path := writeConfig(t, `
workspace_root: /tmp/project
llm:
  provider: openai
  model: gpt-4o
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/project", cfg.WorkspaceRoot)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("DEVTEAM_TEST_KEY", "sk-secret")

	path := writeConfig(t, `
llm:
  provider: anthropic
  api_key: ${DEVTEAM_TEST_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestLoadUnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: ${DEVTEAM_DEFINITELY_UNSET_VAR}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "watson" }},
		{"bad exec mode", func(c *Config) { c.Executor.Mode = "remote" }},
		{"bad approval mode", func(c *Config) { c.Approvals.Mode = "sometimes" }},
		{"duplicate agent", func(c *Config) { c.Agents = append(c.Agents, AgentConfig{ID: proto.AgentCoder}) }},
		{"empty test command", func(c *Config) { c.TestCommands = [][]string{{}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApprovalPolicy(t *testing.T) {
	policy := ApprovalConfig{Mode: ApprovalModeAutonomous, RequireExecutionApproval: true}
	assert.False(t, policy.Required("run_command"))

	policy.Mode = ApprovalModeRequired
	assert.True(t, policy.Required("run_command"))
	assert.False(t, policy.Required("read_file"))

	assert.False(t, policy.GateEnabled())
	policy.RequireReviewApproval = true
	assert.True(t, policy.GateEnabled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
