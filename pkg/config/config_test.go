package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{
		"llm": [{"type": "openai", "models": ["gpt-4o-mini"]}],
		"agents": [{"name": "calc", "system_prompt": "You do math.", "tools": ["addition"]}],
		"tools": {"weapons_url": "http://catalog/weapons", "validate_args": true},
		"server": {"addr": ":9000"}
	}`)
	sys := writeFile(t, dir, "system.json", `{"max_turns": 7, "log_level": "debug"}`)

	cfg, sysCfg, err := Load(app, sys)
	require.NoError(t, err)

	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "calc", cfg.Agents[0].Name)
	assert.Equal(t, []string{"addition"}, cfg.Agents[0].Tools)
	assert.True(t, cfg.Tools.ValidateArgs)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 7, sysCfg.MaxTurns)
	assert.Equal(t, "debug", sysCfg.LogLevel)
	// untouched fields keep defaults
	assert.Equal(t, 3, sysCfg.MaxRetries)
	assert.True(t, sysCfg.EnableTools)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing llm", `{"agents":[{"name":"a"}]}`, "'llm'"},
		{"no agents", `{"llm":[{"type":"openai"}]}`, "at least one agent"},
		{"unnamed agent", `{"llm":[{}],"agents":[{"name":" "}]}`, "has no name"},
		{"duplicate agent", `{"llm":[{}],"agents":[{"name":"a"},{"name":"a"}]}`, "duplicate agent"},
		{"bad json", `{"llm":`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := writeFile(t, t.TempDir(), "config.json", tt.content)
			_, _, err := Load(app, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSystemConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(filepath.Join(dir, "missing.json")))

	corrupt := writeFile(t, dir, "system.json", `{"max_turns": "many"`)
	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(corrupt))
}

func TestResolvePrompt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "calc.txt", "  From file.\n")
	cfg := &Config{PromptDir: dir}

	got, err := cfg.ResolvePrompt(AgentConfig{Name: "a", SystemPrompt: "Inline."})
	require.NoError(t, err)
	assert.Equal(t, "Inline.", got)

	got, err = cfg.ResolvePrompt(AgentConfig{Name: "a", SystemPrompt: "Inline.", PromptFile: "calc.txt"})
	require.NoError(t, err)
	assert.Equal(t, "From file.", got)

	_, err = cfg.ResolvePrompt(AgentConfig{Name: "a", PromptFile: "missing.txt"})
	assert.Error(t, err)
}

func TestWatchConfigSignalsOnWrite(t *testing.T) {
	old := ReloadDebounce
	ReloadDebounce = 20 * time.Millisecond
	t.Cleanup(func() { ReloadDebounce = old })

	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := WatchConfig(ctx, path)

	writeFile(t, dir, "config.json", `{"changed": true}`)

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
