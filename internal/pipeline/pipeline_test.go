package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/agent"
	"hermes/internal/channels"
	"hermes/internal/executor"
	"hermes/internal/llm"
	"hermes/internal/memory"
	"hermes/internal/report"
	"hermes/internal/session"
	"hermes/internal/skills"
	"hermes/internal/state"
	"hermes/internal/supervisor"
)

// recordingAdapter captures outbound messages for assertions.
type recordingAdapter struct {
	mu   sync.Mutex
	sent []channels.Message
}

func (a *recordingAdapter) ChannelType() string                         { return "chat" }
func (a *recordingAdapter) Connect(ctx context.Context) error           { return nil }
func (a *recordingAdapter) Disconnect()                                 {}
func (a *recordingAdapter) MarkProcessed(context.Context, string) error { return nil }
func (a *recordingAdapter) Receive(context.Context, int) ([]channels.Message, error) {
	return nil, nil
}

func (a *recordingAdapter) Send(ctx context.Context, msg channels.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	return nil
}

func (a *recordingAdapter) messages() []channels.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]channels.Message(nil), a.sent...)
}

type fixture struct {
	pipeline  *Pipeline
	store     *state.Store
	adapter   *recordingAdapter
	memory    *memory.Store
	workDir   string
	reportDir string
}

// fakeCLI writes a shell script standing in for the coding CLI.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts need a unix shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newFixture(t *testing.T, cliBody string, refinerClient llm.Client) *fixture {
	t.Helper()
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	require.NoError(t, os.Mkdir(workDir, 0o755))

	store := state.NewStore(filepath.Join(root, "state.json"), nil)
	require.NoError(t, store.Load())

	sessions, err := session.NewManager(filepath.Join(root, "sessions"), nil)
	require.NoError(t, err)
	mem, err := memory.NewStore(filepath.Join(root, "memory"), nil)
	require.NoError(t, err)
	retriever, err := memory.NewRetriever(mem, nil, nil)
	require.NoError(t, err)

	registry := skills.NewRegistry(nil)
	require.NoError(t, skills.RegisterBuiltins(registry, workDir))

	exec := executor.New(executor.Config{CLIPath: fakeCLI(t, cliBody)}, nil)
	adapter := &recordingAdapter{}

	deps := Deps{
		Store:        store,
		Understander: agent.NewUnderstander(nil, nil),
		Refiner:      agent.NewRefiner(refinerClient, nil),
		Executor:     exec,
		Monitor:      supervisor.NewMonitor(supervisor.Config{}, nil),
		Skills:       registry,
		Sessions:     sessions,
		Memory:       mem,
		Retriever:    retriever,
		Artifacts:    report.NewArtifactWriter(filepath.Join(root, "reports"), nil),
		Adapters:     map[string]channels.Adapter{"chat": adapter},
	}
	p := New(deps, Config{WorkDir: workDir, PreviewPause: 10 * time.Millisecond})
	return &fixture{
		pipeline:  p,
		store:     store,
		adapter:   adapter,
		memory:    mem,
		workDir:   workDir,
		reportDir: filepath.Join(root, "reports"),
	}
}

func enqueue(t *testing.T, store *state.Store, prompt string) *state.TaskInfo {
	t.Helper()
	task := &state.TaskInfo{
		TaskID:         fmt.Sprintf("task_%d", time.Now().UnixNano()),
		OriginalPrompt: prompt,
		Sender:         "alice",
		Channel:        "chat",
		Metadata:       map[string]string{state.MetaChatID: "42"},
	}
	require.NoError(t, store.AddTask(task))
	return task
}

func TestProcessNextEmptyQueue(t *testing.T) {
	f := newFixture(t, `echo unused`, nil)

	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Empty(t, f.adapter.messages())
}

func TestSkillAnswersFileSearch(t *testing.T) {
	f := newFixture(t, `echo unused`, nil)
	for _, name := range []string{"main.py", "util.py", "test_util.py"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.workDir, name), []byte("pass\n"), 0o644))
	}

	enqueue(t, f.store, "搜索 *.py")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "找到 3 个文件")
	assert.Equal(t, "42", sent[0].Recipient)

	view := f.store.View()
	assert.Equal(t, 1, view.CompletedTasksCount)
	assert.Empty(t, view.TaskQueue)
}

func TestCancelIntentAcknowledges(t *testing.T) {
	f := newFixture(t, `echo unused`, nil)

	task := enqueue(t, f.store, "cancel that")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "🚫")

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, task.TaskID, recent[0].TaskID)
	assert.Equal(t, state.TaskCancelled, recent[0].Status)
	assert.Equal(t, 0, f.store.View().CompletedTasksCount)
}

func TestQuestionGetsClarificationReply(t *testing.T) {
	f := newFixture(t, `echo unused`, nil)

	enqueue(t, f.store, "what does the build do?")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 1)
	assert.NotEmpty(t, sent[0].Content)

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, state.TaskCompleted, recent[0].Status)
}

func TestExecutePathReportsAndArchives(t *testing.T) {
	f := newFixture(t, `echo "Created: hello.py"; echo "done"`, nil)

	task := enqueue(t, f.store, "write a hello world script in python")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 2, "preview then final report")
	assert.Contains(t, sent[0].Content, "📋 About to execute:")
	assert.Contains(t, sent[1].Content, "✅")
	assert.Contains(t, sent[1].Content, "hello.py")
	assert.Contains(t, sent[1].Content, "📄 Full report:")

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, task.TaskID, recent[0].TaskID)
	assert.Equal(t, state.TaskCompleted, recent[0].Status)
	assert.Equal(t, []string{"hello.py"}, recent[0].CreatedFiles)
	assert.NotEmpty(t, recent[0].ReportURL)

	view := f.store.View()
	require.NotEmpty(t, view.ModifiedFiles)
	assert.Equal(t, "hello.py", view.ModifiedFiles[len(view.ModifiedFiles)-1].FilePath)

	// The interaction reached long-term memory.
	history := f.memory.RecentInteractions("alice", 1)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	// And the outcome was remembered for later retrieval.
	entries := f.memory.Entries("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, memory.KindTaskOutcome, entries[0].Kind)
	assert.Contains(t, entries[0].Content, "1 files touched")
}

func TestExecuteFailureReportsError(t *testing.T) {
	f := newFixture(t, `echo "boom" >&2; exit 3`, nil)

	enqueue(t, f.store, "write a hello world script in python")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Content, "❌")

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, state.TaskFailed, recent[0].Status)
	assert.Equal(t, 1, f.store.View().FailedTasksCount)
}

func TestClarificationEscalationSkipsExecutor(t *testing.T) {
	mock := llm.NewMockClient(`{
		"refined_prompt": "update the configuration file",
		"clarifications": ["Which config file should I change?", "What value do you want?"],
		"suggested_steps": [],
		"confidence": 0.4,
		"intent_type": "file_operation",
		"reasoning": "the request names no file"
	}`)
	f := newFixture(t, `echo "must never run"; exit 0`, mock)

	enqueue(t, f.store, "update the config")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 1, "questions only, no preview, no report")
	assert.Contains(t, sent[0].Content, "1. Which config file should I change?")
	assert.Contains(t, sent[0].Content, "2. What value do you want?")

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, state.TaskCompleted, recent[0].Status)
	assert.Equal(t, "update the configuration file", recent[0].RefinedPrompt)
	assert.Equal(t, "file_operation", recent[0].IntentType)
}

func TestConfirmReusesPriorRefinedPrompt(t *testing.T) {
	f := newFixture(t, `echo "ran: $2"`, nil)

	prior := enqueue(t, f.store, "write a hello world script in python")
	require.NotNil(t, f.store.NextTask())
	require.NoError(t, f.store.FinishTask(prior.TaskID, state.TaskCompleted, state.TaskUpdate{
		RefinedPrompt: "create hello.py that prints hello world",
	}))

	enqueue(t, f.store, "go ahead")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	// Confirm skips preview and jumps straight to execution.
	sent := f.adapter.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "✅")
	assert.Contains(t, sent[0].Content, "ran: create hello.py that prints hello world")
}

func TestConfirmWithoutPriorFallsThrough(t *testing.T) {
	f := newFixture(t, `echo "ran: $2"`, nil)

	enqueue(t, f.store, "okay")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	// Nothing to confirm, so it becomes a normal task with a preview.
	sent := f.adapter.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Content, "📋 About to execute:")
}

func TestPromoteTimeoutCoversMonitorKillAndCLIError(t *testing.T) {
	mk := func(success, timedOut bool, stdout, errText string) *supervisor.MonitoredResult {
		return &supervisor.MonitoredResult{
			Result:   &executor.Result{Success: success, Stdout: stdout, Error: errText},
			TimedOut: timedOut,
		}
	}

	assert.True(t, promoteTimeout(mk(false, true, "partial output", "no activity for 120 seconds")))
	assert.True(t, promoteTimeout(mk(false, false, "partial output", "request timed out after 300s")))
	assert.True(t, promoteTimeout(mk(false, false, "partial output", "context deadline exceeded")))

	// No output, real failure, or an already successful run: no promotion.
	assert.False(t, promoteTimeout(mk(false, true, "   ", "no activity for 120 seconds")))
	assert.False(t, promoteTimeout(mk(false, false, "partial output", "exit status 3")))
	assert.False(t, promoteTimeout(mk(true, false, "done", "")))
}

func TestArtifactIncludesPlanSteps(t *testing.T) {
	mock := llm.NewMockClient(`{
		"refined_prompt": "create hello.py printing hello world",
		"clarifications": [],
		"suggested_steps": ["create the file", "run it once"],
		"confidence": 0.9,
		"intent_type": "code_generation",
		"reasoning": "clear request"
	}`)
	f := newFixture(t, `echo "done"`, mock)

	enqueue(t, f.store, "write a hello world script in python")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	require.NotEmpty(t, recent[0].ReportURL)

	doc, err := os.ReadFile(filepath.Join(f.reportDir, recent[0].ReportURL))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "## Plan")
	assert.Contains(t, string(doc), "1. create the file")
	assert.Contains(t, string(doc), "2. run it once")
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t, `echo unused`, nil)
	f.pipeline.deps.Understander = nil // first nil deref inside the task

	task := enqueue(t, f.store, "write a hello world script in python")
	processed, err := f.pipeline.ProcessNext(context.Background())
	require.Error(t, err)
	assert.True(t, processed)

	sent := f.adapter.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "😥")

	recent := f.store.RecentTasks(1)
	require.Len(t, recent, 1)
	assert.Equal(t, task.TaskID, recent[0].TaskID)
	assert.Equal(t, state.TaskFailed, recent[0].Status)
	assert.NotEmpty(t, f.store.View().LastError)

	// The loop keeps serving later tasks.
	f.pipeline.deps.Understander = agent.NewUnderstander(nil, nil)
	enqueue(t, f.store, "cancel that")
	processed, err = f.pipeline.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
}
