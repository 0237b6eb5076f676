package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/state"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "tasks")
	assert.Contains(t, names, "cleanup")
	assert.Contains(t, names, "version")
}

func TestVersionCommandRuns(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
}

func writeTaskDoc(t *testing.T, dir, name, taskID string) {
	t.Helper()
	content := "# Task " + taskID + "\n\n## Metadata\n\n- **Status:** completed\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFindTaskDoc(t *testing.T) {
	root := t.TempDir()
	tasksDir := filepath.Join(root, "tasks")
	require.NoError(t, os.MkdirAll(tasksDir, 0o755))
	writeTaskDoc(t, tasksDir, "task_20250101_001.md", "tg_alpha")
	writeTaskDoc(t, tasksDir, "task_20250101_002.md", "tg_beta")
	writeTaskDoc(t, tasksDir, "task_20250102_001.md", "tg_alpha")

	doc, err := findTaskDoc(root, "tg_beta")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tasksDir, "task_20250101_002.md"), doc)

	// A re-run of the same id resolves to the newest document.
	doc, err = findTaskDoc(root, "tg_alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tasksDir, "task_20250102_001.md"), doc)

	_, err = findTaskDoc(root, "tg_missing")
	assert.Error(t, err)
}

func TestFindTaskDocWithoutReports(t *testing.T) {
	_, err := findTaskDoc(t.TempDir(), "tg_any")
	assert.Error(t, err)
}

func TestTruncatePrompt(t *testing.T) {
	assert.Equal(t, "short", truncatePrompt("short", 10))
	assert.Equal(t, "exactlyten", truncatePrompt("exactlyten", 10))
	assert.Equal(t, "0123456789…", truncatePrompt("0123456789abc", 10))
	assert.Equal(t, "修改配置…", truncatePrompt("修改配置文件里的端口", 4))
}

func TestColorStatusCoversAllStates(t *testing.T) {
	for _, status := range []state.EngineStatus{state.StatusIdle, state.StatusRunning, state.StatusError} {
		assert.Contains(t, colorStatus(status), string(status))
	}
}
