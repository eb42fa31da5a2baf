package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeProject(t *testing.T, dir, content string) {
	t.Helper()
	// Keep the test hermetic: point the global config somewhere empty.
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "claude", cfg.Agent)
	assert.Equal(t, 2, cfg.MaxRevisions)
	assert.Equal(t, 0, cfg.MaxIterations)
	assert.NotEmpty(t, cfg.Paths.Database)
}

func TestLoadProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, `
agent: opencode
model: sonnet
critic:
  agent: gemini
  model: gemini-2.5-pro
max_iterations: 5
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "opencode", cfg.ActorAgent())
	assert.Equal(t, "sonnet", cfg.ActorModel())
	assert.Equal(t, "gemini", cfg.CriticAgent())
	assert.Equal(t, "gemini-2.5-pro", cfg.CriticModel())
	assert.Equal(t, 5, cfg.MaxIterations)
}

func TestRoleFallback(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("agent: cursor\nmodel: opus\n"), &cfg))

	assert.Equal(t, "cursor", cfg.ActorAgent())
	assert.Equal(t, "cursor", cfg.CriticAgent())
	assert.Equal(t, "opus", cfg.ActorModel())
	assert.Equal(t, "opus", cfg.CriticModel())
}

func TestLoadRejectsUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "agent: copilot\n")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "unknown agent type")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "agent: [unterminated\n")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "parse")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "agent: claude\n")

	t.Setenv("CODELOOPS_AGENT", "cursor")
	t.Setenv("CODELOOPS_CRITIC_AGENT", "gemini")
	t.Setenv("CODELOOPS_MAX_ITERATIONS", "7")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "cursor", cfg.ActorAgent())
	assert.Equal(t, "gemini", cfg.CriticAgent())
	assert.Equal(t, 7, cfg.MaxIterations)
}

func TestWriteStarter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, WriteStarter(path, false))

	// The starter parses back into a valid config.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "claude", cfg.Agent)
	assert.Equal(t, 2, cfg.MaxRevisions)

	// Refuses to clobber.
	assert.Error(t, WriteStarter(path, false))
}

func TestWriteStarterOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: cursor\n"), 0o644))

	require.NoError(t, WriteStarter(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "claude", cfg.Agent)
}
