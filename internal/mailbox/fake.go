package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"smart-mail-responder/internal/models"
)

// Fake is an in-memory Client. The cursor is the number of messages already
// listed; Redeliver re-lists that many earlier messages to model an
// at-least-once provider.
type Fake struct {
	Redeliver int

	// SendFunc overrides the default send behavior when set.
	SendFunc func(ctx context.Context, reply Reply) (string, error)
	// ListFunc overrides the default list behavior when set.
	ListFunc func(ctx context.Context, cursor string) ([]models.RawMessage, string, error)

	mu       sync.Mutex
	messages []models.RawMessage
	sent     []Reply
	lists    int
}

// NewFake creates a fake mailbox holding messages.
func NewFake(messages ...models.RawMessage) *Fake {
	return &Fake{messages: append([]models.RawMessage(nil), messages...)}
}

func (f *Fake) Name() string { return "fake" }

// Deliver appends messages to the inbox.
func (f *Fake) Deliver(messages ...models.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages...)
}

func (f *Fake) ListNewMessages(ctx context.Context, cursor string) ([]models.RawMessage, string, error) {
	f.mu.Lock()
	f.lists++
	listFunc := f.ListFunc
	f.mu.Unlock()
	if listFunc != nil {
		return listFunc(ctx, cursor)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, cursor, fmt.Errorf("invalid fake cursor %q", cursor)
		}
		start = n
	}
	start -= f.Redeliver
	if start < 0 {
		start = 0
	}
	if start > len(f.messages) {
		start = len(f.messages)
	}

	out := append([]models.RawMessage(nil), f.messages[start:]...)
	return out, strconv.Itoa(len(f.messages)), nil
}

func (f *Fake) SendReply(ctx context.Context, reply Reply) (string, error) {
	if f.SendFunc != nil {
		id, err := f.SendFunc(ctx, reply)
		if err != nil {
			return "", err
		}
		f.record(reply)
		return id, nil
	}
	n := f.record(reply)
	return fmt.Sprintf("sent-%d", n), nil
}

func (f *Fake) record(reply Reply) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, reply)
	return len(f.sent)
}

func (f *Fake) Close() error { return nil }

// Sent returns a copy of every reply sent.
func (f *Fake) Sent() []Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reply(nil), f.sent...)
}

// SentCount returns how many replies were sent for a source message.
func (f *Fake) SentCount(messageID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.sent {
		if r.SourceMessageID == messageID {
			n++
		}
	}
	return n
}

// ListCalls returns how many times ListNewMessages ran.
func (f *Fake) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}
