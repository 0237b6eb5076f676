package session

import (
	"fmt"
	"time"
)

// Status tracks a session's lifecycle.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultMaxMessages bounds a session's history. The system prompt does
// not count against the bound and is never evicted.
const DefaultMaxMessages = 100

// Session is one user's conversation state on one channel. Not safe for
// concurrent use; the Manager serializes access.
type Session struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Channel     string            `json:"channel"`
	Status      Status            `json:"status"`
	Messages    []Message         `json:"messages"`
	ContextVars map[string]string `json:"context_vars,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	MaxMessages int `json:"max_messages,omitempty"`
}

func (s *Session) maxMessages() int {
	if s.MaxMessages > 0 {
		return s.MaxMessages
	}
	return DefaultMaxMessages
}

// SetSystemPrompt installs or replaces the system prompt at index 0.
func (s *Session) SetSystemPrompt(content string) {
	msg := Message{Role: "system", Content: content, Timestamp: time.Now()}
	if len(s.Messages) > 0 && s.Messages[0].Role == "system" {
		s.Messages[0] = msg
	} else {
		s.Messages = append([]Message{msg}, s.Messages...)
	}
	s.UpdatedAt = time.Now()
}

// AddMessage appends a turn, evicting the oldest non-system messages once
// the bound is exceeded.
func (s *Session) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: time.Now()})
	s.UpdatedAt = time.Now()

	limit := s.maxMessages()
	hasSystem := len(s.Messages) > 0 && s.Messages[0].Role == "system"
	if hasSystem {
		limit++
	}
	if len(s.Messages) <= limit {
		return
	}
	overflow := len(s.Messages) - limit
	if hasSystem {
		s.Messages = append(s.Messages[:1], s.Messages[1+overflow:]...)
	} else {
		s.Messages = s.Messages[overflow:]
	}
}

// SetVar records a context variable carried across tasks in this session.
func (s *Session) SetVar(key, value string) {
	if s.ContextVars == nil {
		s.ContextVars = make(map[string]string)
	}
	s.ContextVars[key] = value
	s.UpdatedAt = time.Now()
}

// Var looks up a context variable.
func (s *Session) Var(key string) (string, bool) {
	v, ok := s.ContextVars[key]
	return v, ok
}

// Stats produces a one-line summary suitable for prompt context.
func (s *Session) Stats() string {
	n := len(s.Messages)
	if n > 0 && s.Messages[0].Role == "system" {
		n--
	}
	if n == 0 {
		return "new session"
	}
	return fmt.Sprintf("%d messages, last at %s", n, s.UpdatedAt.Format(time.RFC3339))
}
