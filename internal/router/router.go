// Package router converts raw inbound messages into task records, capturing
// the channel-specific reply handle so the reporter can route the outcome
// back to its origin.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hermes/internal/channels"
	"hermes/internal/logging"
	"hermes/internal/state"
)

// Router builds TaskInfo records and enqueues them in the state store.
type Router struct {
	store  *state.Store
	logger logging.Logger
	clock  func() time.Time
}

// New creates a router writing to store.
func New(store *state.Store, logger logging.Logger) *Router {
	return &Router{store: store, logger: logging.OrNop(logger), clock: time.Now}
}

// Route converts msg into a pending task and enqueues it. Returns the created
// task. The original message metadata rides along verbatim so the reply
// handle is never lost.
func (r *Router) Route(msg channels.Message) (*state.TaskInfo, error) {
	prompt := strings.TrimSpace(msg.Content)
	if prompt == "" {
		return nil, fmt.Errorf("message %s has no content", msg.ID)
	}

	metadata := make(map[string]string, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata[state.MetaMessageID] = msg.ID

	task := &state.TaskInfo{
		TaskID:         r.taskID(msg),
		OriginalPrompt: prompt,
		Status:         state.TaskPending,
		Sender:         msg.Sender,
		Channel:        msg.Channel,
		CreatedAt:      r.clock(),
		Metadata:       metadata,
	}

	if err := r.store.AddTask(task); err != nil {
		// Timestamp-derived chat ids can collide inside one second.
		task.TaskID = task.TaskID + "_" + uuid.NewString()[:8]
		if err := r.store.AddTask(task); err != nil {
			return nil, fmt.Errorf("enqueue task for message %s: %w", msg.ID, err)
		}
	}
	r.logger.Info("routed %s message %s into task %s", msg.Channel, msg.ID, task.TaskID)
	return task.Clone(), nil
}

// taskID derives a stable identifier: channel-prefixed timestamp for chat,
// provider UID (else a random UUID) for mail.
func (r *Router) taskID(msg channels.Message) string {
	switch msg.Channel {
	case channels.TypeChat:
		return "tg_" + r.clock().Format("20060102_150405")
	case channels.TypeMail:
		if uid := msg.Metadata[state.MetaMailUID]; uid != "" {
			return "mail_" + uid
		}
		return "mail_" + uuid.NewString()
	default:
		return msg.Channel + "_" + uuid.NewString()
	}
}
