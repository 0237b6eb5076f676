// Package memory keeps long-lived per-user knowledge: stated preferences,
// interaction history, and free-form memory entries with a TTL. Entries can
// be retrieved semantically when an embedder is configured, falling back to
// keyword overlap otherwise.
package memory

import "time"

// Kind classifies a memory entry.
type Kind string

const (
	KindFact        Kind = "fact"
	KindPreference  Kind = "preference"
	KindTaskOutcome Kind = "task_outcome"
	KindCorrection  Kind = "correction"
)

// DefaultTTL is how long an entry lives unless given an explicit expiry.
const DefaultTTL = 90 * 24 * time.Hour

// Entry is one remembered item about a user.
type Entry struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Kind         Kind       `json:"kind"`
	Content      string     `json:"content"`
	Importance   float64    `json:"importance"`
	AccessCount  int        `json:"access_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Embedding    []float32  `json:"embedding,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// UserPreference is an explicit key/value the user has stated, like
// preferred language or default work directory.
type UserPreference struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interaction records one completed task exchange for history context.
type Interaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}
