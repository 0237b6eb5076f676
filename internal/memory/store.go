package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hermes/internal/logging"
	jsonx "hermes/internal/shared/json"
)

// Store persists memory records as one JSON file per record under
// preferences/, history/, and entries/ subdirectories. Everything is also
// held in memory; files exist so state survives restarts.
type Store struct {
	mu     sync.RWMutex
	root   string
	logger logging.Logger

	preferences map[string]map[string]*UserPreference // userID -> key -> pref
	history     []*Interaction
	entries     map[string]*Entry
}

func NewStore(root string, logger logging.Logger) (*Store, error) {
	s := &Store{
		root:        root,
		logger:      logging.OrNop(logger),
		preferences: make(map[string]map[string]*UserPreference),
		entries:     make(map[string]*Entry),
	}
	for _, sub := range []string{"preferences", "history", "entries"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir %s: %w", sub, err)
		}
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	loadDir(s, "preferences", func(data []byte) {
		var p UserPreference
		if jsonx.Unmarshal(data, &p) == nil && p.UserID != "" {
			if s.preferences[p.UserID] == nil {
				s.preferences[p.UserID] = make(map[string]*UserPreference)
			}
			s.preferences[p.UserID][p.Key] = &p
		}
	})
	loadDir(s, "history", func(data []byte) {
		var h Interaction
		if jsonx.Unmarshal(data, &h) == nil && h.ID != "" {
			s.history = append(s.history, &h)
		}
	})
	loadDir(s, "entries", func(data []byte) {
		var e Entry
		if jsonx.Unmarshal(data, &e) == nil && e.ID != "" {
			s.entries[e.ID] = &e
		}
	})
	sort.Slice(s.history, func(i, j int) bool {
		return s.history[i].Timestamp.Before(s.history[j].Timestamp)
	})
	s.logger.Info("memory: loaded %d entries, %d history records", len(s.entries), len(s.history))
	return nil
}

func loadDir(s *Store, sub string, apply func([]byte)) {
	dir := filepath.Join(s.root, sub)
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			s.logger.Warn("memory: unreadable %s/%s: %v", sub, f.Name(), err)
			continue
		}
		apply(data)
	}
}

func (s *Store) write(sub, id string, record any) {
	data, err := jsonx.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Error("memory: marshal %s/%s: %v", sub, id, err)
		return
	}
	path := filepath.Join(s.root, sub, id+".json")
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("memory: write %s/%s: %v", sub, id, err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Error("memory: rename %s/%s: %v", sub, id, err)
		os.Remove(tmp)
	}
}

// SetPreference records or updates an explicit user preference.
func (s *Store) SetPreference(userID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preferences[userID] == nil {
		s.preferences[userID] = make(map[string]*UserPreference)
	}
	pref := &UserPreference{UserID: userID, Key: key, Value: value, UpdatedAt: time.Now()}
	s.preferences[userID][key] = pref
	s.write("preferences", userID+"_"+key, pref)
}

// Preferences returns a copy of the user's preference map.
func (s *Store) Preferences(userID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.preferences[userID]))
	for k, p := range s.preferences[userID] {
		out[k] = p.Value
	}
	return out
}

// AddInteraction appends a completed exchange to the user's history.
func (s *Store) AddInteraction(userID, prompt, response string, success bool) *Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &Interaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    prompt,
		Response:  response,
		Success:   success,
		Timestamp: time.Now(),
	}
	s.history = append(s.history, h)
	s.write("history", h.ID, h)
	return h
}

// RecentInteractions returns up to n of the user's latest exchanges,
// newest first.
func (s *Store) RecentInteractions(userID string, n int) []*Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Interaction
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		if s.history[i].UserID == userID {
			out = append(out, s.history[i])
		}
	}
	return out
}

// AddEntry stores a memory entry, assigning ID, timestamps, and the default
// TTL when missing.
func (s *Store) AddEntry(e *Entry) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastAccessed.IsZero() {
		e.LastAccessed = now
	}
	if e.ExpiresAt == nil {
		expires := e.CreatedAt.Add(DefaultTTL)
		e.ExpiresAt = &expires
	}
	s.entries[e.ID] = e
	s.write("entries", e.ID, e)
	return e
}

// Entries returns the user's live (non-expired) entries.
func (s *Store) Entries(userID string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*Entry
	for _, e := range s.entries {
		if e.UserID == userID && !e.Expired(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Touch bumps an entry's access count and timestamp.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.AccessCount++
	e.LastAccessed = time.Now()
	s.write("entries", e.ID, e)
}

// PurgeExpired drops entries past their TTL, removing their files, and
// returns how many were purged.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	purged := 0
	for id, e := range s.entries {
		if !e.Expired(now) {
			continue
		}
		delete(s.entries, id)
		os.Remove(filepath.Join(s.root, "entries", id+".json"))
		purged++
	}
	if purged > 0 {
		s.logger.Info("memory: purged %d expired entries", purged)
	}
	return purged
}
