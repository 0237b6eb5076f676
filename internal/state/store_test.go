package state

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonx "hermes/internal/shared/json"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, store.Load())
	return store
}

func TestLoadMissingFileYieldsZeroSnapshot(t *testing.T) {
	store := newTestStore(t)
	view := store.View()
	assert.Equal(t, StatusIdle, view.LastStatus)
	assert.Empty(t, view.TaskQueue)
	assert.Equal(t, "1.0", view.Version)
}

func TestTaskLifecycle(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AddTask(&TaskInfo{
		TaskID:         "tg_20250101_120000",
		OriginalPrompt: "list py files",
		Sender:         "42",
		Channel:        "chat",
		Metadata:       map[string]string{MetaChatID: "42"},
	}))

	task := store.NextTask()
	require.NotNil(t, task)
	assert.Equal(t, TaskProcessing, task.Status)
	require.NotNil(t, task.StartedAt)

	// Second call returns the same in-flight task.
	again := store.NextTask()
	require.NotNil(t, again)
	assert.Equal(t, task.TaskID, again.TaskID)

	require.NoError(t, store.FinishTask(task.TaskID, TaskCompleted, TaskUpdate{
		CreatedFiles: []string{"a.py"},
	}))

	view := store.View()
	assert.Equal(t, 1, view.CompletedTasksCount)
	assert.Empty(t, view.TaskQueue)

	recent := store.RecentTasks(5)
	require.Len(t, recent, 1)
	assert.Equal(t, TaskCompleted, recent[0].Status)
	require.NotNil(t, recent[0].CompletedAt)
	assert.False(t, recent[0].CompletedAt.Before(*recent[0].StartedAt))
}

func TestTerminalTasksStayTerminal(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "t1", OriginalPrompt: "x"}))
	store.NextTask()
	require.NoError(t, store.FinishTask("t1", TaskFailed, TaskUpdate{Error: "boom"}))

	// No transition back: the task is gone from the queue.
	assert.Error(t, store.FinishTask("t1", TaskCompleted, TaskUpdate{}))
	assert.Error(t, store.UpdateTask("t1", TaskUpdate{RefinedPrompt: "y"}))

	// Report-url attachment remains allowed.
	require.NoError(t, store.AttachReportURL("t1", "tasks/task_20250101_001.md"))
	recent := store.RecentTasks(1)
	assert.Equal(t, "tasks/task_20250101_001.md", recent[0].ReportURL)
}

func TestPriorityOrdering(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "low", Priority: 5}))
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "high", Priority: 1}))
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "mid", Priority: 3}))

	assert.Equal(t, "high", store.NextTask().TaskID)
}

func TestDuplicateTaskIDRejected(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "t1"}))
	assert.Error(t, store.AddTask(&TaskInfo{TaskID: "t1"}))
}

func TestRestartDemotesProcessingTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(path, nil)
	require.NoError(t, store.Load())
	store.UpdateStatus(StatusRunning)
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "t1", OriginalPrompt: "x"}))
	store.NextTask() // now processing
	require.NoError(t, store.Persist())

	restarted := NewStore(path, nil)
	require.NoError(t, restarted.Load())

	view := restarted.View()
	assert.Equal(t, StatusRunning, view.LastStatus)
	require.Len(t, view.TaskQueue, 1)
	assert.Equal(t, TaskPending, view.TaskQueue[0].Status)
	assert.Nil(t, view.TaskQueue[0].StartedAt)
}

func TestFileChangeRingIsBounded(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < maxFileChanges+50; i++ {
		store.AddFileChange("file.go", "modified", "codegen")
	}
	view := store.View()
	assert.Len(t, view.ModifiedFiles, maxFileChanges)
}

func TestSnapshotFileIsNeverTorn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(path, nil)
	require.NoError(t, store.Load())
	require.NoError(t, store.AddTask(&TaskInfo{TaskID: "seed"}))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			store.AddFileChange("f.go", "modified", "codegen")
		}
	}()

	// Concurrent readers must always see complete JSON.
	for i := 0; i < 50; i++ {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var snapshot Snapshot
		require.NoError(t, jsonx.Unmarshal(data, &snapshot), "torn snapshot read")
	}

	close(stop)
	wg.Wait()
}

func TestRecordError(t *testing.T) {
	store := newTestStore(t)
	ts := time.Now()
	store.RecordError("imap: connection reset", ts)

	view := store.View()
	assert.Equal(t, "imap: connection reset", view.LastError)
	require.NotNil(t, view.LastErrorTimestamp)
}

func TestReplyHandle(t *testing.T) {
	chat := &TaskInfo{Metadata: map[string]string{MetaChatID: "42"}}
	assert.Equal(t, "42", chat.ReplyHandle())

	mail := &TaskInfo{Metadata: map[string]string{MetaMailFrom: "user@example.com", MetaMailUID: "17"}}
	assert.Equal(t, "user@example.com", mail.ReplyHandle())

	assert.Empty(t, (&TaskInfo{}).ReplyHandle())
}
