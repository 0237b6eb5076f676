package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/executor"
	"hermes/internal/state"
	"hermes/internal/supervisor"
)

func monitored(res executor.Result) *supervisor.MonitoredResult {
	return &supervisor.MonitoredResult{Result: &res}
}

func TestFormatReplySuccess(t *testing.T) {
	reply := FormatReply(monitored(executor.Result{
		Success:         true,
		Stdout:          "All done.",
		DurationSeconds: 12.4,
		ModifiedFiles:   []string{"main.go"},
	}), nil, true)
	assert.Contains(t, reply, "✅ Task completed in 12s")
	assert.Contains(t, reply, "All done.")
	assert.Contains(t, reply, "~ main.go")
}

func TestFormatReplyFailureTruncatesDetail(t *testing.T) {
	reply := FormatReply(monitored(executor.Result{
		ExitCode: 2,
		Error:    strings.Repeat("x", 600),
	}), nil, true)
	assert.Contains(t, reply, "❌ Task failed (exit code 2)")
	assert.Contains(t, reply, strings.Repeat("x", 500)+"...")
	assert.NotContains(t, reply, strings.Repeat("x", 501))
}

func TestFormatReplyPartial(t *testing.T) {
	result := monitored(executor.Result{Stdout: "step 1 ok\nstep 2 running"})
	result.TimedOut = true
	result.InactiveSeconds = 125
	reply := FormatReply(result, nil, true)
	assert.Contains(t, reply, "⚠️ Task interrupted (partial results)")
	assert.Contains(t, reply, "no output for 125 seconds")
	assert.Contains(t, reply, "step 2 running")
}

func TestFormatReplyValidationFailure(t *testing.T) {
	outcomes := []supervisor.Outcome{
		{Name: "keyword", Passed: false, Detail: `missing required keyword "done"`},
		{Name: "json", Passed: true},
	}
	reply := FormatReply(monitored(executor.Result{Success: true, Stdout: "finished"}), outcomes, false)
	assert.Contains(t, reply, "validation did not pass")
	assert.Contains(t, reply, "- keyword: missing")
	assert.NotContains(t, reply, "- json")
}

func TestTruncateReplyFooter(t *testing.T) {
	long := strings.Repeat("a", 4000)
	reply := truncateReply(long)
	assert.LessOrEqual(t, len([]rune(reply)), maxReplyLen)
	assert.Contains(t, reply, "output truncated")
}

func TestFormatPreviewShowsDiff(t *testing.T) {
	preview := FormatPreview("fix the bug", "Fix the null-pointer bug in login handler", []string{"reproduce", "patch", "test"})
	assert.Contains(t, preview, "📋 About to execute:")
	assert.Contains(t, preview, "Fix the null-pointer bug")
	assert.Contains(t, preview, "1. reproduce")
	assert.Contains(t, preview, "Changes from your request:")
	assert.Contains(t, preview, "*")
}

func TestFormatPreviewNoDiffWhenUnchanged(t *testing.T) {
	preview := FormatPreview("same text", "same text", nil)
	assert.NotContains(t, preview, "Changes from your request")
}

func sampleTask() *state.TaskInfo {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &state.TaskInfo{
		TaskID:         "tg_20260314_100000",
		OriginalPrompt: "fix the flaky test",
		RefinedPrompt:  "Fix the flaky TestLogin race in auth_test.go",
		Status:         state.TaskCompleted,
		Sender:         "alice",
		Channel:        "chat",
		IntentType:     "new_task",
		Confidence:     0.9,
		CreatedAt:      started,
		StartedAt:      &started,
	}
}

func TestArtifactWriterCreatesDocAndIndex(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root, nil)
	w.clock = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	result := monitored(executor.Result{
		Success:         true,
		Stdout:          "patched the race",
		DurationSeconds: 30,
		ModifiedFiles:   []string{"auth_test.go"},
	})
	outcomes := []supervisor.Outcome{{Name: "file_exists", Passed: true}}

	steps := []string{"reproduce the race", "add a lock around the session map"}
	rel, err := w.Write(sampleTask(), result, outcomes, steps)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("tasks", "task_20260314_001.md"), rel)

	doc, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	text := string(doc)
	assert.Contains(t, text, "# Task tg_20260314_100000")
	assert.Contains(t, text, "## Original Request")
	assert.Contains(t, text, "## Refined Prompt")
	assert.Contains(t, text, "patched the race")
	assert.Contains(t, text, "- modified `auth_test.go`")
	assert.Contains(t, text, "## Plan")
	assert.Contains(t, text, "1. reproduce the race")
	assert.Contains(t, text, "2. add a lock around the session map")
	assert.Contains(t, text, "✅ file_exists")

	index, err := os.ReadFile(filepath.Join(root, taskLogName))
	require.NoError(t, err)
	assert.Contains(t, string(index), "| Date | Status | Task | Description |")
	assert.Contains(t, string(index), "| completed | [tg_20260314_100000]("+rel+") | fix the flaky test |")
}

func TestIndexDescriptionFirstLineAndEscape(t *testing.T) {
	assert.Equal(t, "swap a \\| b", indexDescription("swap a | b\nsecond line"))
	long := strings.Repeat("x", 70)
	assert.Equal(t, strings.Repeat("x", 60)+"…", indexDescription(long))
}

func TestArtifactWriterPerDayCounter(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root, nil)
	w.clock = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	first, err := w.Write(sampleTask(), monitored(executor.Result{Success: true}), nil, nil)
	require.NoError(t, err)
	second := sampleTask()
	second.TaskID = "tg_20260314_110000"
	secondRel, err := w.Write(second, monitored(executor.Result{Success: true}), nil, nil)
	require.NoError(t, err)

	assert.Contains(t, first, "task_20260314_001.md")
	assert.Contains(t, secondRel, "task_20260314_002.md")
}

func TestArtifactIndexDedupesTaskID(t *testing.T) {
	root := t.TempDir()
	w := NewArtifactWriter(root, nil)

	task := sampleTask()
	_, err := w.Write(task, monitored(executor.Result{Success: true}), nil, nil)
	require.NoError(t, err)
	_, err = w.Write(task, monitored(executor.Result{Success: true}), nil, nil)
	require.NoError(t, err)

	index, err := os.ReadFile(filepath.Join(root, taskLogName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(index), task.TaskID))
}
