package state

import "time"

// EngineStatus is the externally visible status of the whole engine.
type EngineStatus string

const (
	StatusIdle    EngineStatus = "idle"
	StatusRunning EngineStatus = "running"
	StatusError   EngineStatus = "error"
)

// FileChange is one entry in the bounded file-change ring.
type FileChange struct {
	FilePath   string    `json:"file_path"`
	ChangeType string    `json:"change_type"` // created, modified, deleted
	Actor      string    `json:"actor"`
	Timestamp  time.Time `json:"timestamp"`
}

// Snapshot is the durable on-disk shape. Key names are part of the external
// contract and must not change.
type Snapshot struct {
	Version             string         `json:"version"`
	LastStatus          EngineStatus   `json:"last_status"`
	LastError           string         `json:"last_error"`
	LastErrorTimestamp  *time.Time     `json:"last_error_timestamp"`
	ModifiedFiles       []FileChange   `json:"modified_files"`
	CompletedTasksCount int            `json:"completed_tasks_count"`
	FailedTasksCount    int            `json:"failed_tasks_count"`
	LastTaskTimestamp   *time.Time     `json:"last_task_timestamp"`
	ProjectContext      map[string]any `json:"project_context"`
	TaskQueue           []*TaskInfo    `json:"task_queue"`
}

func zeroSnapshot() Snapshot {
	return Snapshot{
		Version:        "1.0",
		LastStatus:     StatusIdle,
		ModifiedFiles:  []FileChange{},
		ProjectContext: map[string]any{},
		TaskQueue:      []*TaskInfo{},
	}
}
