package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hermes/internal/logging"
	jsonx "hermes/internal/shared/json"
)

// Manager owns every session and persists each one to its own JSON file
// under the root directory. The same user on the same channel always gets
// the same active session back.
type Manager struct {
	mu       sync.Mutex
	root     string
	logger   logging.Logger
	sessions map[string]*Session // keyed by ID
	active   map[string]string   // userID|channel -> ID
}

func NewManager(root string, logger logging.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	m := &Manager{
		root:     root,
		logger:   logging.OrNop(logger),
		sessions: make(map[string]*Session),
		active:   make(map[string]string),
	}
	if err := m.loadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

func activeKey(userID, channel string) string {
	return userID + "|" + channel
}

func (m *Manager) loadAll() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("read session root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Warn("session: skipping unreadable %s: %v", entry.Name(), err)
			continue
		}
		var s Session
		if err := jsonx.Unmarshal(data, &s); err != nil || s.ID == "" {
			m.logger.Warn("session: skipping malformed %s", entry.Name())
			continue
		}
		m.sessions[s.ID] = &s
		if s.Status == StatusActive {
			m.active[activeKey(s.UserID, s.Channel)] = s.ID
		}
	}
	m.logger.Info("session: loaded %d sessions", len(m.sessions))
	return nil
}

// GetOrCreate returns the user's active session on the channel, creating
// and persisting a fresh one when none exists.
func (m *Manager) GetOrCreate(userID, channel string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[activeKey(userID, channel)]; ok {
		if s, ok := m.sessions[id]; ok {
			return s
		}
	}
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Channel:   channel,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[s.ID] = s
	m.active[activeKey(userID, channel)] = s.ID
	m.persistLocked(s)
	return s
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Save persists the session's current state.
func (m *Manager) Save(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(s)
}

// Archive marks a session inactive; the next GetOrCreate for that user
// starts fresh. The file is kept for history.
func (m *Manager) Archive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	s.Status = StatusArchived
	s.UpdatedAt = time.Now()
	delete(m.active, activeKey(s.UserID, s.Channel))
	m.persistLocked(s)
	return nil
}

// Delete removes a session and its file.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	delete(m.sessions, id)
	if m.active[activeKey(s.UserID, s.Channel)] == id {
		delete(m.active, activeKey(s.UserID, s.Channel))
	}
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup deletes archived sessions untouched for longer than maxAge and
// returns how many were removed.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	var stale []string
	cutoff := time.Now().Add(-maxAge)
	for id, s := range m.sessions {
		if s.Status == StatusArchived && s.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, id := range stale {
		if err := m.Delete(id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("session: cleaned up %d archived sessions", removed)
	}
	return removed
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.root, id+".json")
}

func (m *Manager) persistLocked(s *Session) {
	data, err := jsonx.MarshalIndent(s, "", "  ")
	if err != nil {
		m.logger.Error("session: marshal %s: %v", s.ID, err)
		return
	}
	tmp := m.path(s.ID) + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.logger.Error("session: write %s: %v", s.ID, err)
		return
	}
	if err := os.Rename(tmp, m.path(s.ID)); err != nil {
		m.logger.Error("session: rename %s: %v", s.ID, err)
		os.Remove(tmp)
	}
}
