package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonx "hermes/internal/shared/json"
	"hermes/internal/logging"
)

const (
	maxFileChanges = 500
	maxRecentTasks = 20
)

// Store is the single owner of the durable snapshot and the open-task queue.
// Channel routers append tasks concurrently; the pipeline is the only
// consumer. Writes are atomic (temp file + rename) so readers never observe a
// torn snapshot.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger logging.Logger

	snapshot Snapshot
	// recent holds terminal tasks for understanding context. It is in-memory
	// only: the snapshot's task_queue carries open tasks exclusively.
	recent        []*TaskInfo
	writeFailures int
}

// NewStore creates a store persisting to path. Call Load before use.
func NewStore(path string, logger logging.Logger) *Store {
	return &Store{
		path:     path,
		logger:   logging.OrNop(logger),
		snapshot: zeroSnapshot(),
	}
}

// Load reads the snapshot from disk. A missing file yields a zero snapshot.
// Tasks persisted mid-flight as processing are demoted to pending so a
// restart re-runs them.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.snapshot = zeroSnapshot()
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}

	var snapshot Snapshot
	if err := jsonx.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	if snapshot.Version == "" {
		snapshot.Version = "1.0"
	}
	if snapshot.ProjectContext == nil {
		snapshot.ProjectContext = map[string]any{}
	}

	queue := snapshot.TaskQueue[:0]
	for _, task := range snapshot.TaskQueue {
		if task == nil {
			continue
		}
		if task.Status.IsTerminal() {
			continue
		}
		if task.Status == TaskProcessing {
			s.logger.Info("demoting in-flight task %s to pending after restart", task.TaskID)
			task.Status = TaskPending
			task.StartedAt = nil
		}
		queue = append(queue, task)
	}
	snapshot.TaskQueue = queue

	s.snapshot = snapshot
	return nil
}

// Persist serializes the current state to disk atomically.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := jsonx.MarshalIndent(&s.snapshot, "", "  ")
	if err != nil {
		s.writeFailures++
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.writeFailures++
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.writeFailures++
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.writeFailures++
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// persistBestEffort logs instead of failing: disk errors are never fatal to
// the pipeline, the next successful snapshot supersedes.
func (s *Store) persistBestEffort() {
	if err := s.persistLocked(); err != nil {
		s.logger.Error("snapshot write failed (%d failures so far): %v", s.writeFailures, err)
	}
}

// WriteFailures returns the count of failed snapshot writes.
func (s *Store) WriteFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeFailures
}

// UpdateStatus sets the engine-level status.
func (s *Store) UpdateStatus(status EngineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastStatus = status
	s.persistBestEffort()
}

// RecordError stores the most recent engine error.
func (s *Store) RecordError(message string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = message
	s.snapshot.LastErrorTimestamp = &ts
	s.persistBestEffort()
}

// AddFileChange appends to the bounded file-change ring.
func (s *Store) AddFileChange(path, changeType, actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.ModifiedFiles = append(s.snapshot.ModifiedFiles, FileChange{
		FilePath:   path,
		ChangeType: changeType,
		Actor:      actor,
		Timestamp:  time.Now(),
	})
	if overflow := len(s.snapshot.ModifiedFiles) - maxFileChanges; overflow > 0 {
		s.snapshot.ModifiedFiles = s.snapshot.ModifiedFiles[overflow:]
	}
	s.persistBestEffort()
}

// RecentFileChanges returns the newest n entries of the ring, newest last.
func (s *Store) RecentFileChanges(n int) []FileChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	changes := s.snapshot.ModifiedFiles
	if n > 0 && len(changes) > n {
		changes = changes[len(changes)-n:]
	}
	return append([]FileChange(nil), changes...)
}

// AddTask enqueues a new task, keeping the queue sorted by priority (lower
// first) with FIFO order inside one priority class.
func (s *Store) AddTask(task *TaskInfo) error {
	if task == nil || task.TaskID == "" {
		return fmt.Errorf("task must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshot.TaskQueue {
		if existing.TaskID == task.TaskID {
			return fmt.Errorf("task %s already queued", task.TaskID)
		}
	}

	if task.Status == "" {
		task.Status = TaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	insertAt := len(s.snapshot.TaskQueue)
	for i, existing := range s.snapshot.TaskQueue {
		if task.Priority < existing.Priority {
			insertAt = i
			break
		}
	}
	s.snapshot.TaskQueue = append(s.snapshot.TaskQueue, nil)
	copy(s.snapshot.TaskQueue[insertAt+1:], s.snapshot.TaskQueue[insertAt:])
	s.snapshot.TaskQueue[insertAt] = task

	s.persistBestEffort()
	return nil
}

// NextTask returns the task to run: the in-flight processing task if one
// exists, otherwise the queue head promoted to processing. Returns nil when
// the queue is empty.
func (s *Store) NextTask() *TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.snapshot.TaskQueue {
		if task.Status == TaskProcessing {
			return task.Clone()
		}
	}
	for _, task := range s.snapshot.TaskQueue {
		if task.Status == TaskPending {
			now := time.Now()
			task.Status = TaskProcessing
			task.StartedAt = &now
			s.persistBestEffort()
			return task.Clone()
		}
	}
	return nil
}

// CurrentTask returns the processing task, or nil.
func (s *Store) CurrentTask() *TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, task := range s.snapshot.TaskQueue {
		if task.Status == TaskProcessing {
			return task.Clone()
		}
	}
	return nil
}

// TaskUpdate carries optional field updates; zero values are left untouched.
type TaskUpdate struct {
	RefinedPrompt string
	IntentType    string
	Confidence    *float64
	Error         string
	CreatedFiles  []string
	ModifiedFiles []string
	DeletedFiles  []string
}

func (u TaskUpdate) apply(task *TaskInfo) {
	if u.RefinedPrompt != "" {
		task.RefinedPrompt = u.RefinedPrompt
	}
	if u.IntentType != "" {
		task.IntentType = u.IntentType
	}
	if u.Confidence != nil {
		task.Confidence = *u.Confidence
	}
	if u.Error != "" {
		task.Error = u.Error
	}
	if len(u.CreatedFiles) > 0 {
		task.CreatedFiles = append([]string(nil), u.CreatedFiles...)
	}
	if len(u.ModifiedFiles) > 0 {
		task.ModifiedFiles = append([]string(nil), u.ModifiedFiles...)
	}
	if len(u.DeletedFiles) > 0 {
		task.DeletedFiles = append([]string(nil), u.DeletedFiles...)
	}
}

// UpdateTask applies field updates to an open task.
func (s *Store) UpdateTask(taskID string, update TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.findQueuedLocked(taskID)
	if task == nil {
		return fmt.Errorf("task %s not in queue", taskID)
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("task %s is terminal", taskID)
	}
	update.apply(task)
	s.persistBestEffort()
	return nil
}

// FinishTask moves an open task to a terminal status, removes it from the
// queue, and updates the counters. Transitioning an already terminal task is
// an error: terminal states are final.
func (s *Store) FinishTask(taskID string, status TaskStatus, update TaskUpdate) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for i, task := range s.snapshot.TaskQueue {
		if task.TaskID == taskID {
			index = i
			break
		}
	}
	if index == -1 {
		return fmt.Errorf("task %s not in queue", taskID)
	}

	task := s.snapshot.TaskQueue[index]
	if task.Status.IsTerminal() {
		return fmt.Errorf("task %s already terminal (%s)", taskID, task.Status)
	}

	now := time.Now()
	update.apply(task)
	task.Status = status
	task.CompletedAt = &now
	if task.StartedAt == nil {
		task.StartedAt = &task.CreatedAt
	}

	s.snapshot.TaskQueue = append(s.snapshot.TaskQueue[:index], s.snapshot.TaskQueue[index+1:]...)
	s.recent = append(s.recent, task)
	if len(s.recent) > maxRecentTasks {
		s.recent = s.recent[len(s.recent)-maxRecentTasks:]
	}

	switch status {
	case TaskCompleted:
		s.snapshot.CompletedTasksCount++
	case TaskFailed:
		s.snapshot.FailedTasksCount++
	}
	s.snapshot.LastTaskTimestamp = &now

	s.persistBestEffort()
	return nil
}

// AttachReportURL records the report artifact location. This is the only
// mutation allowed on a terminal task.
func (s *Store) AttachReportURL(taskID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task := s.findQueuedLocked(taskID); task != nil {
		task.ReportURL = url
		s.persistBestEffort()
		return nil
	}
	for _, task := range s.recent {
		if task.TaskID == taskID {
			task.ReportURL = url
			return nil
		}
	}
	return fmt.Errorf("task %s not found", taskID)
}

// RecentTasks returns up to n most recently finished tasks, newest first.
func (s *Store) RecentTasks(n int) []*TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := len(s.recent)
	if n > 0 && count > n {
		count = n
	}
	out := make([]*TaskInfo, 0, count)
	for i := len(s.recent) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, s.recent[i].Clone())
	}
	return out
}

// QueueLength returns the number of open tasks.
func (s *Store) QueueLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot.TaskQueue)
}

// View returns a deep copy of the snapshot for rendering.
func (s *Store) View() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := s.snapshot
	view.ModifiedFiles = append([]FileChange(nil), s.snapshot.ModifiedFiles...)
	view.TaskQueue = make([]*TaskInfo, 0, len(s.snapshot.TaskQueue))
	for _, task := range s.snapshot.TaskQueue {
		view.TaskQueue = append(view.TaskQueue, task.Clone())
	}
	view.ProjectContext = make(map[string]any, len(s.snapshot.ProjectContext))
	for k, v := range s.snapshot.ProjectContext {
		view.ProjectContext[k] = v
	}
	return view
}

func (s *Store) findQueuedLocked(taskID string) *TaskInfo {
	for _, task := range s.snapshot.TaskQueue {
		if task.TaskID == taskID {
			return task
		}
	}
	return nil
}
