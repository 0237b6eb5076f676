package state

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Metadata keys for channel reply routing. The reply handle captured at
// ingress must survive verbatim until the reporter uses it.
const (
	MetaChatID    = "chat_id"
	MetaUsername  = "username"
	MetaMailFrom  = "mail_from"
	MetaMailUID   = "mail_uid"
	MetaSubject   = "subject"
	MetaMessageID = "message_id"
)

// TaskInfo is a task's canonical record.
type TaskInfo struct {
	TaskID         string            `json:"task_id"`
	OriginalPrompt string            `json:"original_prompt"`
	RefinedPrompt  string            `json:"refined_prompt,omitempty"`
	Status         TaskStatus        `json:"status"`
	Sender         string            `json:"sender"`
	Channel        string            `json:"channel"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Confidence     float64           `json:"confidence"`
	IntentType     string            `json:"intent_type,omitempty"`
	CreatedFiles   []string          `json:"created_files,omitempty"`
	ModifiedFiles  []string          `json:"modified_files,omitempty"`
	DeletedFiles   []string          `json:"deleted_files,omitempty"`
	Error          string            `json:"error,omitempty"`
	ReportURL      string            `json:"report_url,omitempty"`
	Priority       int               `json:"priority,omitempty"` // lower runs first
	RetryCount     int               `json:"retry_count,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ReplyHandle returns the channel routing token captured at ingress.
func (t *TaskInfo) ReplyHandle() string {
	if t.Metadata == nil {
		return ""
	}
	if chatID, ok := t.Metadata[MetaChatID]; ok {
		return chatID
	}
	return t.Metadata[MetaMailFrom]
}

// Clone returns a deep copy so callers cannot mutate store-owned records.
func (t *TaskInfo) Clone() *TaskInfo {
	if t == nil {
		return nil
	}
	clone := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	clone.CreatedFiles = append([]string(nil), t.CreatedFiles...)
	clone.ModifiedFiles = append([]string(nil), t.ModifiedFiles...)
	clone.DeletedFiles = append([]string(nil), t.DeletedFiles...)
	if t.Metadata != nil {
		clone.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
