// Package channels defines the transport-independent inbound/outbound message
// contract. Each adapter owns one transport; receive is non-destructive until
// MarkProcessed is called for a message id.
package channels

import (
	"context"
	"time"
)

// Channel type tags.
const (
	TypeChat = "chat"
	TypeMail = "mail"
)

// Message is one raw inbound or outbound unit. Inbound messages are immutable
// once returned by an adapter.
type Message struct {
	ID         string
	Channel    string
	Sender     string
	Recipient  string
	Subject    string
	Content    string
	RawContent string
	Timestamp  time.Time
	Metadata   map[string]string
}

// Adapter is the capability set every transport exposes.
type Adapter interface {
	ChannelType() string
	Connect(ctx context.Context) error
	Disconnect()
	// Receive returns up to limit new messages. Transient transport failures
	// surface as an empty slice plus an error; they are never fatal.
	Receive(ctx context.Context, limit int) ([]Message, error)
	Send(ctx context.Context, msg Message) error
	// MarkProcessed acknowledges a message id; subsequent Receive calls must
	// not return it again.
	MarkProcessed(ctx context.Context, id string) error
}
