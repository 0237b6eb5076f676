// Package mail implements the IMAP/SMTP channel adapter. Inbound tasks are
// unseen messages whose subject starts with a configured tag; replies go out
// over SMTP submission with STARTTLS.
package mail

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	gomail "github.com/wneessen/go-mail"

	"hermes/internal/channels"
	hermeserrors "hermes/internal/errors"
	"hermes/internal/logging"
)

// Metadata keys attached to inbound mail messages.
const (
	MetaMailFrom = "mail_from"
	MetaMailUID  = "mail_uid"
	MetaSubject  = "subject"
)

// Config configures the adapter.
type Config struct {
	IMAPHost   string
	IMAPPort   int
	SMTPHost   string
	SMTPPort   int
	Username   string
	Password   string
	SubjectTag string // default "[Task]"
}

// Adapter is the mail channel adapter.
type Adapter struct {
	cfg    Config
	logger logging.Logger
	dedup  *channels.Dedup

	mu           sync.Mutex
	client       *imapclient.Client
	pendingUIDs  map[string]uint32 // message id -> imap uid awaiting \Seen
	failureCount int
}

// New creates a mail adapter.
func New(cfg Config, logger logging.Logger) *Adapter {
	if cfg.IMAPPort == 0 {
		cfg.IMAPPort = 993
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.SubjectTag == "" {
		cfg.SubjectTag = "[Task]"
	}
	return &Adapter{
		cfg:         cfg,
		logger:      logging.OrNop(logger),
		dedup:       channels.NewDedup(),
		pendingUIDs: map[string]uint32{},
	}
}

func (a *Adapter) ChannelType() string { return channels.TypeMail }

// Connect dials the IMAP server over TLS and authenticates.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked()
}

func (a *Adapter) connectLocked() error {
	if a.client != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.IMAPHost, a.cfg.IMAPPort)
	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		a.failureCount++
		return hermeserrors.NewTransientError(err, fmt.Sprintf("imap dial %s", addr))
	}
	if err := client.Login(a.cfg.Username, a.cfg.Password); err != nil {
		_ = client.Logout()
		return hermeserrors.NewPermanentError(err, "imap login")
	}
	a.client = client
	a.failureCount = 0
	a.logger.Info("mail adapter connected to %s", addr)
	return nil
}

// Disconnect logs out of the inbox.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectLocked()
}

func (a *Adapter) disconnectLocked() {
	if a.client != nil {
		_ = a.client.Logout()
		a.client = nil
	}
}

// FailureCount returns the consecutive transient-failure counter; the poll
// loop uses it to back off.
func (a *Adapter) FailureCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failureCount
}

// Receive fetches unseen messages whose subject begins with the configured
// tag. Transient connection errors (EOF, TLS, socket) disconnect the client
// so the next poll reconnects.
func (a *Adapter) Receive(ctx context.Context, limit int) ([]channels.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(); err != nil {
		return nil, err
	}

	messages, err := a.fetchLocked(ctx, limit)
	if err != nil {
		a.failureCount++
		a.disconnectLocked()
		return nil, hermeserrors.NewTransientError(err, "imap receive")
	}
	a.failureCount = 0
	return messages, nil
}

func (a *Adapter) fetchLocked(ctx context.Context, limit int) ([]channels.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := a.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("Subject", a.cfg.SubjectTag)

	uids, err := a.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- a.client.UidFetch(seqset, items, fetched)
	}()

	var out []channels.Message
	for msg := range fetched {
		if ctx.Err() != nil {
			// Drain the fetch so its goroutine can finish before we bail.
			for range fetched {
			}
			<-done
			return nil, ctx.Err()
		}
		converted, err := a.convert(msg, section)
		if err != nil {
			a.logger.Warn("skipping unparseable message uid=%d: %v", msg.Uid, err)
			continue
		}
		if converted == nil {
			continue
		}
		out = append(out, *converted)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	return out, nil
}

func (a *Adapter) convert(msg *imap.Message, section *imap.BodySectionName) (*channels.Message, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("missing envelope")
	}

	subject := msg.Envelope.Subject
	if !strings.HasPrefix(subject, a.cfg.SubjectTag) {
		return nil, nil
	}

	id := fmt.Sprintf("mail_%d", msg.Uid)
	if a.dedup.Contains(id) {
		return nil, nil
	}

	var sender string
	if len(msg.Envelope.From) > 0 {
		sender = msg.Envelope.From[0].Address()
	}

	raw := ""
	body := ""
	if literal := msg.GetBody(section); literal != nil {
		parsed, rawText, err := extractBody(literal)
		if err != nil {
			return nil, err
		}
		body = parsed
		raw = rawText
	}

	cleanSubject := strings.TrimSpace(strings.TrimPrefix(subject, a.cfg.SubjectTag))
	content := ComposePrompt(cleanSubject, CleanBody(body))

	timestamp := msg.Envelope.Date
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	a.pendingUIDs[id] = msg.Uid

	return &channels.Message{
		ID:         id,
		Channel:    channels.TypeMail,
		Sender:     sender,
		Recipient:  a.cfg.Username,
		Subject:    cleanSubject,
		Content:    content,
		RawContent: raw,
		Timestamp:  timestamp,
		Metadata: map[string]string{
			MetaMailFrom: sender,
			MetaMailUID:  strconv.FormatUint(uint64(msg.Uid), 10),
			MetaSubject:  cleanSubject,
		},
	}, nil
}

// Send replies over SMTP submission with STARTTLS, plain-text body, subject
// derived from the original.
func (a *Adapter) Send(ctx context.Context, msg channels.Message) error {
	to := msg.Metadata[MetaMailFrom]
	if to == "" {
		to = msg.Recipient
	}
	if to == "" {
		return hermeserrors.NewPermanentError(fmt.Errorf("missing recipient"), "mail send: no reply handle")
	}

	subject := msg.Subject
	if subject == "" {
		subject = "Task result"
	}
	if !strings.HasPrefix(subject, "Re:") {
		subject = "Re: " + subject
	}

	m := gomail.NewMsg()
	if err := m.From(a.cfg.Username); err != nil {
		return hermeserrors.NewPermanentError(err, "mail send: invalid from address")
	}
	if err := m.To(to); err != nil {
		return hermeserrors.NewPermanentError(err, "mail send: invalid to address")
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Content)

	client, err := gomail.NewClient(a.cfg.SMTPHost,
		gomail.WithPort(a.cfg.SMTPPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(a.cfg.Username),
		gomail.WithPassword(a.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return hermeserrors.NewPermanentError(err, "smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return hermeserrors.NewTransientError(err, "smtp send")
	}
	return nil
}

// MarkProcessed flags the message as \Seen so later searches skip it.
func (a *Adapter) MarkProcessed(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	uid, ok := a.pendingUIDs[id]
	if !ok {
		return nil
	}
	if err := a.connectLocked(); err != nil {
		return err
	}
	if _, err := a.client.Select("INBOX", false); err != nil {
		a.disconnectLocked()
		return hermeserrors.NewTransientError(err, "select inbox")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := a.client.UidStore(seqset, item, flags, nil); err != nil {
		a.disconnectLocked()
		return hermeserrors.NewTransientError(err, "mark seen")
	}
	delete(a.pendingUIDs, id)
	a.dedup.Mark(id)
	return nil
}
