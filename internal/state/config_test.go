package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRoutingConfig_ProjectWinsOverUser(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "user", "config.json")
	projectPath := filepath.Join(dir, "project", "config.json")

	writeFile(t, userPath, `{
		"default_target": "ollama/llama3",
		"fallback_enabled": true,
		"agent_models": {"debugger": "ollama/llama3"}
	}`)
	writeFile(t, projectPath, `{
		"default_target": "openrouter/gpt-4o",
		"agent_models": {"reviewer": "openrouter/gpt-4o"}
	}`)

	cfg := LoadRoutingConfig(userPath, projectPath)
	require.Equal(t, "openrouter/gpt-4o", cfg.DefaultTarget)
	require.True(t, cfg.FallbackEnabled)
	require.Equal(t, "ollama/llama3", cfg.AgentModels["debugger"])
	require.Equal(t, "openrouter/gpt-4o", cfg.AgentModels["reviewer"])
}

func TestLoadRoutingConfig_MissingFilesYieldEmptyConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := LoadRoutingConfig(filepath.Join(dir, "absent-user.json"), filepath.Join(dir, "absent-project.json"))
	require.Empty(t, cfg.DefaultTarget)
	require.False(t, cfg.FallbackEnabled)
}

func TestLoadRoutingConfig_MalformedFileIsTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	writeFile(t, userPath, `not json at all`)

	cfg := LoadRoutingConfig(userPath, filepath.Join(dir, "absent-project.json"))
	require.Empty(t, cfg.DefaultTarget)
}

func TestLoadRoutingConfig_EnvOverridesAPIKeys(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "config.json")
	writeFile(t, userPath, `{"api_keys": {"openai": "file-key"}}`)

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OPENROUTER_API_KEY", "router-key")

	cfg := LoadRoutingConfig(userPath, filepath.Join(dir, "absent-project.json"))
	require.Equal(t, "env-key", cfg.APIKeys["openai"])
	require.Equal(t, "router-key", cfg.APIKeys["openrouter"])
}
