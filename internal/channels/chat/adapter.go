// Package chat implements the long-poll bot-API adapter. The wire protocol is
// the Telegram bot HTTP API: getMe on connect, getUpdates with an offset and a
// server-side timeout, sendMessage for replies.
package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"hermes/internal/channels"
	hermeserrors "hermes/internal/errors"
	jsonx "hermes/internal/shared/json"
	"hermes/internal/logging"
)

// Metadata keys attached to inbound chat messages.
const (
	MetaChatID    = "chat_id"
	MetaUsername  = "username"
	MetaParseMode = "parse_mode"
)

// Config configures the adapter.
type Config struct {
	Token        string
	BaseURL      string // default https://api.telegram.org
	PollTimeout  int    // server-side long-poll seconds, default 30
	AllowedUsers []int64
}

// Adapter is the chat channel adapter.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     logging.Logger
	dedup      *channels.Dedup

	mu      sync.Mutex
	offset  int64            // next update id to request
	pending map[string]int64 // message id -> update id awaiting ack
	botName string
}

// New creates a chat adapter. Token must be non-empty.
func New(cfg Config, logger logging.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			// The long poll holds the connection open for PollTimeout; leave
			// headroom on top of it.
			Timeout: time.Duration(cfg.PollTimeout+15) * time.Second,
		},
		logger:  logging.OrNop(logger),
		dedup:   channels.NewDedup(),
		pending: map[string]int64{},
	}
}

func (a *Adapter) ChannelType() string { return channels.TypeChat }

type apiResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      jsonx.RawMessage `json:"result"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		From      *struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Date int64  `json:"date"`
		Text string `json:"text"`
	} `json:"message"`
}

// Connect verifies the token by fetching the bot identity.
func (a *Adapter) Connect(ctx context.Context) error {
	result, err := a.call(ctx, "getMe", nil)
	if err != nil {
		return fmt.Errorf("chat connect: %w", err)
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := jsonx.Unmarshal(result, &me); err != nil {
		return fmt.Errorf("chat connect: decode identity: %w", err)
	}
	a.mu.Lock()
	a.botName = me.Username
	a.mu.Unlock()
	a.logger.Info("chat adapter connected as @%s", me.Username)
	return nil
}

// Disconnect is a no-op; the bot API is stateless.
func (a *Adapter) Disconnect() {}

// Receive long-polls for updates newer than the current offset. Command
// messages (leading "/") and senders outside the allow-list are dropped.
func (a *Adapter) Receive(ctx context.Context, limit int) ([]channels.Message, error) {
	a.mu.Lock()
	offset := a.offset
	a.mu.Unlock()

	params := url.Values{}
	params.Set("timeout", strconv.Itoa(a.cfg.PollTimeout))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	result, err := a.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := jsonx.Unmarshal(result, &updates); err != nil {
		return nil, hermeserrors.NewPermanentError(err, "decode updates")
	}

	messages := make([]channels.Message, 0, len(updates))
	for _, upd := range updates {
		if upd.Message == nil || upd.Message.Text == "" {
			a.ack(upd.UpdateID) // nothing to process, skip past it
			continue
		}
		msg := upd.Message

		if strings.HasPrefix(msg.Text, "/") {
			a.logger.Debug("skipping command message: %s", msg.Text)
			a.ack(upd.UpdateID)
			continue
		}
		if msg.From != nil && !a.allowed(msg.From.ID) {
			a.logger.Warn("dropping message from unauthorized user %d", msg.From.ID)
			a.ack(upd.UpdateID)
			continue
		}

		id := fmt.Sprintf("chat_%d", msg.MessageID)
		if a.dedup.Contains(id) {
			// Already processed on an earlier cycle; step past it.
			a.ack(upd.UpdateID)
			continue
		}

		metadata := map[string]string{
			MetaChatID: strconv.FormatInt(msg.Chat.ID, 10),
		}
		sender := strconv.FormatInt(msg.Chat.ID, 10)
		if msg.From != nil {
			sender = strconv.FormatInt(msg.From.ID, 10)
			if msg.From.Username != "" {
				metadata[MetaUsername] = msg.From.Username
			}
		}

		a.mu.Lock()
		a.pending[id] = upd.UpdateID
		a.mu.Unlock()

		messages = append(messages, channels.Message{
			ID:         id,
			Channel:    channels.TypeChat,
			Sender:     sender,
			Content:    msg.Text,
			RawContent: msg.Text,
			Timestamp:  time.Unix(msg.Date, 0),
			Metadata:   metadata,
		})
	}
	return messages, nil
}

// Send posts a message to the chat referenced by msg.Metadata[MetaChatID].
// When parse mode is MarkdownV2 the text is escaped so send never fails on
// formatting.
func (a *Adapter) Send(ctx context.Context, msg channels.Message) error {
	chatID := msg.Metadata[MetaChatID]
	if chatID == "" {
		chatID = msg.Recipient
	}
	if chatID == "" {
		return hermeserrors.NewPermanentError(fmt.Errorf("missing chat id"), "chat send: no reply handle")
	}

	text := msg.Content
	params := url.Values{}
	params.Set("chat_id", chatID)

	switch msg.Metadata[MetaParseMode] {
	case "MarkdownV2":
		params.Set("parse_mode", "MarkdownV2")
		text = EscapeMarkdownV2(text)
	case "Markdown":
		params.Set("parse_mode", "Markdown")
	}
	params.Set("text", text)

	if _, err := a.call(ctx, "sendMessage", params); err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	return nil
}

// MarkProcessed advances the poll offset past the update carrying id and
// records the id in the dedup window. Until then a re-polled update is
// returned again, so a failed hand-off is retried instead of lost.
func (a *Adapter) MarkProcessed(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	updateID, ok := a.pending[id]
	if !ok {
		return nil
	}
	delete(a.pending, id)
	a.dedup.Mark(id)
	if updateID >= a.offset {
		a.offset = updateID + 1
	}
	return nil
}

func (a *Adapter) ack(updateID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if updateID >= a.offset {
		a.offset = updateID + 1
	}
}

func (a *Adapter) allowed(userID int64) bool {
	if len(a.cfg.AllowedUsers) == 0 {
		return true
	}
	for _, allowed := range a.cfg.AllowedUsers {
		if allowed == userID {
			return true
		}
	}
	return false
}

func (a *Adapter) call(ctx context.Context, method string, params url.Values) (jsonx.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", a.cfg.BaseURL, a.cfg.Token, method)

	var body io.Reader
	if params != nil {
		body = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, hermeserrors.NewPermanentError(err, "build request")
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, hermeserrors.NewTransientError(err, "")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, hermeserrors.NewTransientError(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, hermeserrors.FromHTTPStatus(resp.StatusCode, string(data))
	}

	var parsed apiResponse
	if err := jsonx.Unmarshal(data, &parsed); err != nil {
		return nil, hermeserrors.NewPermanentError(err, "decode response")
	}
	if !parsed.OK {
		return nil, hermeserrors.NewPermanentError(fmt.Errorf("api error: %s", parsed.Description), "")
	}
	return parsed.Result, nil
}
