package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/models"
)

// cursorOverlap is subtracted from the cursor on every query. Gmail's
// after: filter has second granularity, so without it a message stamped in
// the same second as the cursor could be missed.
const cursorOverlap = time.Minute

// GmailClient lists and replies to messages through the Gmail API.
// The cursor is the newest internalDate seen, in unix seconds.
type GmailClient struct {
	service    *gmail.Service
	userEmail  string
	query      string
	maxResults int64
	lookback   time.Duration
	now        func() time.Time
}

// NewGmailClient creates a Gmail client from a stored refresh token.
func NewGmailClient(ctx context.Context, cfg config.MailboxConfig) (*GmailClient, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope, gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.Gmail.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return newGmailClient(service, cfg), nil
}

func newGmailClient(service *gmail.Service, cfg config.MailboxConfig) *GmailClient {
	user := cfg.Gmail.UserEmail
	if user == "" {
		user = "me"
	}
	return &GmailClient{
		service:    service,
		userEmail:  user,
		query:      cfg.Gmail.Query,
		maxResults: cfg.Gmail.MaxResults,
		lookback:   cfg.InitialLookback,
		now:        time.Now,
	}
}

func (g *GmailClient) Name() string {
	return "gmail:" + g.userEmail
}

// ListNewMessages returns messages received after cursor, oldest first.
func (g *GmailClient) ListNewMessages(ctx context.Context, cursor string) ([]models.RawMessage, string, error) {
	since := g.now().Add(-g.lookback).Unix()
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, cursor, fmt.Errorf("invalid gmail cursor %q: %w", cursor, err)
		}
		since = parsed
	}
	newest := since

	query := strings.TrimSpace(fmt.Sprintf("%s after:%d", g.query, since-int64(cursorOverlap.Seconds())))

	var ids []string
	call := g.service.Users.Messages.List(g.userEmail).Q(query)
	if g.maxResults > 0 {
		call = call.MaxResults(g.maxResults)
	}
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		return nil
	})
	if err != nil {
		return nil, cursor, classifyGoogleError("list messages", err)
	}

	messages := make([]models.RawMessage, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		message, err := g.service.Users.Messages.Get(g.userEmail, ids[i]).Format("full").Context(ctx).Do()
		if err != nil {
			classified := classifyGoogleError("get message", err)
			if apperrors.IsTransient(classified) {
				return nil, cursor, classified
			}
			logrus.WithError(err).WithField("message_id", ids[i]).Warn("Skipping unreadable message")
			continue
		}

		raw, err := parseGmailMessage(message)
		if err != nil {
			logrus.WithError(err).WithField("message_id", ids[i]).Warn("Failed to parse message")
			continue
		}
		messages = append(messages, raw)

		if sec := message.InternalDate / 1000; sec > newest {
			newest = sec
		}
	}

	return messages, strconv.FormatInt(newest, 10), nil
}

// parseGmailMessage parses a Gmail API message into a RawMessage
func parseGmailMessage(msg *gmail.Message) (models.RawMessage, error) {
	raw := models.RawMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return raw, fmt.Errorf("message %s has no payload", msg.Id)
	}

	for _, header := range msg.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			raw.Subject = header.Value
		case "from":
			raw.Sender = header.Value
		case "message-id":
			raw.InternetMessageID = header.Value
		}
	}

	var plain, html string
	if err := collectGmailBody(msg.Payload, &plain, &html); err != nil {
		return raw, err
	}
	raw.Body = plain
	if raw.Body == "" {
		raw.Body = html
	}
	return raw, nil
}

// collectGmailBody recursively collects the first text and html parts
func collectGmailBody(part *gmail.MessagePart, plain, html *string) error {
	if part.Body != nil && part.Body.Data != "" {
		data, err := decodeBase64URL(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}

		switch part.MimeType {
		case "text/plain":
			if *plain == "" {
				*plain = string(data)
			}
		case "text/html":
			if *html == "" {
				*html = string(data)
			}
		}
	}

	for _, sub := range part.Parts {
		if err := collectGmailBody(sub, plain, html); err != nil {
			return err
		}
	}
	return nil
}

func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// SendReply sends reply into the source thread and returns the Gmail id of
// the sent message.
func (g *GmailClient) SendReply(ctx context.Context, reply Reply) (string, error) {
	from := ""
	if strings.Contains(g.userEmail, "@") {
		from = g.userEmail
	}

	raw, err := buildReplyMIME(from, reply, newMessageID(from), g.now())
	if err != nil {
		return "", apperrors.Fatal("build reply", err)
	}

	message := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: reply.ThreadID,
	}

	sent, err := g.service.Users.Messages.Send(g.userEmail, message).Context(ctx).Do()
	if err != nil {
		return "", classifyGoogleError("send reply", err)
	}
	return sent.Id, nil
}

// Close is a no-op; the Gmail service holds no connection.
func (g *GmailClient) Close() error {
	return nil
}

// classifyGoogleError maps Gmail API failures onto the error taxonomy.
func classifyGoogleError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return apperrors.FromHTTPStatus(op, gerr.Code, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Transient(op, err)
}
