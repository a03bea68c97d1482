package mailbox

import (
	"context"
	"fmt"
	"strings"

	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/models"
)

// Client is the mailbox capability consumed by the pipeline.
//
// ListNewMessages is resumable through cursor and may return messages that
// were already returned before; callers dedupe. SendReply is not idempotent.
type Client interface {
	// Name identifies the mailbox; it keys the persisted fetch cursor.
	Name() string
	ListNewMessages(ctx context.Context, cursor string) ([]models.RawMessage, string, error)
	SendReply(ctx context.Context, reply Reply) (string, error)
	Close() error
}

// Reply is an outgoing answer to one inbound message.
type Reply struct {
	SourceMessageID string
	ThreadID        string
	InReplyTo       string
	To              string
	Subject         string
	Body            string
	HTMLBody        string
}

// New creates the configured mailbox client.
func New(ctx context.Context, cfg config.MailboxConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gmail":
		return NewGmailClient(ctx, cfg)
	case "imap":
		return NewIMAPClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox provider %q", cfg.Provider)
	}
}

// ReplySubject prefixes subject with "Re:" unless it already has one.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re: your message"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// angleAddr wraps a message id in angle brackets as required by
// In-Reply-To and References.
func angleAddr(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id += ">"
	}
	return id
}
