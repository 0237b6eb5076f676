package router

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/channels"
	"hermes/internal/state"
)

func newTestRouter(t *testing.T) (*Router, *state.Store) {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), nil)
	require.NoError(t, store.Load())
	return New(store, nil), store
}

func TestRouteChatMessage(t *testing.T) {
	router, store := newTestRouter(t)
	router.clock = func() time.Time {
		return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}

	task, err := router.Route(channels.Message{
		ID:      "chat_100",
		Channel: channels.TypeChat,
		Sender:  "42",
		Content: "搜索 *.py",
		Metadata: map[string]string{
			"chat_id":  "42",
			"username": "kai",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "tg_20250101_120000", task.TaskID)
	assert.Equal(t, state.TaskPending, task.Status)
	assert.Equal(t, "42", task.Metadata[state.MetaChatID])
	assert.Equal(t, "chat_100", task.Metadata[state.MetaMessageID])
	assert.Equal(t, "42", task.ReplyHandle())
	assert.Equal(t, 1, store.QueueLength())
}

func TestRouteMailMessageUsesUID(t *testing.T) {
	router, _ := newTestRouter(t)

	task, err := router.Route(channels.Message{
		ID:      "mail_17",
		Channel: channels.TypeMail,
		Sender:  "user@example.com",
		Subject: "Review code",
		Content: "Review code\n\nplease look at the parser module for leaks",
		Metadata: map[string]string{
			"mail_from": "user@example.com",
			"mail_uid":  "17",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "mail_17", task.TaskID)
	assert.Equal(t, "user@example.com", task.ReplyHandle())
}

func TestRouteRejectsEmptyContent(t *testing.T) {
	router, _ := newTestRouter(t)
	_, err := router.Route(channels.Message{ID: "x", Channel: channels.TypeChat, Content: "   "})
	require.Error(t, err)
}

func TestRouteCollisionGetsSuffix(t *testing.T) {
	router, store := newTestRouter(t)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	router.clock = func() time.Time { return fixed }

	first, err := router.Route(channels.Message{ID: "a", Channel: channels.TypeChat, Content: "one", Metadata: map[string]string{"chat_id": "1"}})
	require.NoError(t, err)
	second, err := router.Route(channels.Message{ID: "b", Channel: channels.TypeChat, Content: "two", Metadata: map[string]string{"chat_id": "1"}})
	require.NoError(t, err)

	assert.NotEqual(t, first.TaskID, second.TaskID)
	assert.Equal(t, 2, store.QueueLength())
}
