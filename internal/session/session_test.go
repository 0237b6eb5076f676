package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMessageEvictsOldestButKeepsSystemPrompt(t *testing.T) {
	s := &Session{MaxMessages: 3}
	s.SetSystemPrompt("you are a task assistant")
	for i := 0; i < 5; i++ {
		s.AddMessage("user", fmt.Sprintf("msg %d", i))
	}

	require.Len(t, s.Messages, 4) // system + 3
	assert.Equal(t, "system", s.Messages[0].Role)
	assert.Equal(t, "msg 2", s.Messages[1].Content)
	assert.Equal(t, "msg 4", s.Messages[3].Content)
}

func TestAddMessageWithoutSystemPrompt(t *testing.T) {
	s := &Session{MaxMessages: 2}
	s.AddMessage("user", "a")
	s.AddMessage("user", "b")
	s.AddMessage("user", "c")
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "b", s.Messages[0].Content)
}

func TestSetSystemPromptReplaces(t *testing.T) {
	s := &Session{}
	s.SetSystemPrompt("v1")
	s.AddMessage("user", "hi")
	s.SetSystemPrompt("v2")
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "v2", s.Messages[0].Content)
}

func TestContextVars(t *testing.T) {
	s := &Session{}
	s.SetVar("work_dir", "/srv/repo")
	v, ok := s.Var("work_dir")
	assert.True(t, ok)
	assert.Equal(t, "/srv/repo", v)
	_, ok = s.Var("missing")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	s := &Session{}
	assert.Equal(t, "new session", s.Stats())
	s.SetSystemPrompt("sys")
	assert.Equal(t, "new session", s.Stats())
	s.AddMessage("user", "hello")
	assert.Contains(t, s.Stats(), "1 messages")
}

func TestManagerGetOrCreateIsStablePerUser(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	a := m.GetOrCreate("alice", "chat")
	b := m.GetOrCreate("alice", "chat")
	c := m.GetOrCreate("alice", "mail")
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestManagerPersistAndReload(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, nil)
	require.NoError(t, err)

	s := m.GetOrCreate("bob", "chat")
	s.AddMessage("user", "fix the tests")
	m.Save(s)

	reloaded, err := NewManager(root, nil)
	require.NoError(t, err)
	got := reloaded.GetOrCreate("bob", "chat")
	assert.Equal(t, s.ID, got.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "fix the tests", got.Messages[0].Content)
}

func TestManagerArchiveStartsFreshSession(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	old := m.GetOrCreate("carol", "chat")
	require.NoError(t, m.Archive(old.ID))
	fresh := m.GetOrCreate("carol", "chat")
	assert.NotEqual(t, old.ID, fresh.ID)

	kept, ok := m.Get(old.ID)
	require.True(t, ok)
	assert.Equal(t, StatusArchived, kept.Status)
}

func TestManagerCleanup(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, nil)
	require.NoError(t, err)

	old := m.GetOrCreate("dave", "chat")
	require.NoError(t, m.Archive(old.ID))
	// Age it past the cutoff.
	s, _ := m.Get(old.ID)
	s.UpdatedAt = time.Now().Add(-48 * time.Hour)

	removed := m.Cleanup(24 * time.Hour)
	assert.Equal(t, 1, removed)
	_, ok := m.Get(old.ID)
	assert.False(t, ok)
}
