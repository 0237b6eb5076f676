package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonx "hermes/internal/shared/json"
)

func TestScriptName(t *testing.T) {
	assert.Equal(t, "post_tool_use.sh", scriptName("PostToolUse"))
	assert.Equal(t, "task_complete.sh", scriptName("TaskComplete"))
	assert.Equal(t, "pre_task_validation.sh", scriptName("PreTaskValidation"))
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator(filepath.Join(dir, "hooks.log"), nil)
	require.NoError(t, g.Generate(dir))

	data, err := os.ReadFile(filepath.Join(dir, "hooks.json"))
	require.NoError(t, err)

	var schema struct {
		Version int `json:"version"`
		Hooks   map[string]struct {
			Command        string `json:"command"`
			TimeoutSeconds int    `json:"timeout_seconds"`
		} `json:"hooks"`
	}
	require.NoError(t, jsonx.Unmarshal(data, &schema))
	assert.Equal(t, 1, schema.Version)
	require.Len(t, schema.Hooks, 4)
	for _, event := range Events {
		hook, ok := schema.Hooks[event]
		require.True(t, ok, event)
		info, err := os.Stat(hook.Command)
		require.NoError(t, err, event)
		assert.NotZero(t, info.Mode()&0o100, "script should be executable")
	}

	script, err := os.ReadFile(filepath.Join(dir, "scripts", "task_complete.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "#!/bin/sh")
	assert.Contains(t, string(script), "TaskComplete")
	assert.Contains(t, string(script), "hooks.log")
}

func TestGenerateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator("/tmp/hooks.log", nil)
	require.NoError(t, g.Generate(dir))
	require.NoError(t, g.Generate(dir))
}
