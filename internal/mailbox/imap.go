package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/models"
)

// IMAPClient reads an IMAP mailbox and replies over SMTP. The cursor is
// "uidvalidity:uid" of the newest message seen.
type IMAPClient struct {
	imapCfg  config.IMAPConfig
	smtpCfg  config.SMTPConfig
	lookback time.Duration
	now      func() time.Time
	dial     func() (*client.Client, error)
	send     func(ctx context.Context, m ...*gomail.Message) error
}

// NewIMAPClient creates an IMAP/SMTP mailbox client. Connections are opened
// per call.
func NewIMAPClient(cfg config.MailboxConfig) *IMAPClient {
	c := &IMAPClient{
		imapCfg:  cfg.IMAP,
		smtpCfg:  cfg.SMTP,
		lookback: cfg.InitialLookback,
		now:      time.Now,
	}
	c.dial = c.dialTLS

	if c.smtpCfg.User == "" {
		c.smtpCfg.User, c.smtpCfg.Password = cfg.IMAP.User, cfg.IMAP.Password
	}
	c.send = c.sendSMTP
	return c
}

func (c *IMAPClient) dialTLS() (*client.Client, error) {
	conn, err := client.DialTLS(fmt.Sprintf("%s:%d", c.imapCfg.Host, c.imapCfg.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := conn.Login(c.imapCfg.User, c.imapCfg.Password); err != nil {
		conn.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	return conn, nil
}

func (c *IMAPClient) Name() string {
	return fmt.Sprintf("imap:%s/%s", c.imapCfg.User, c.mailboxName())
}

func (c *IMAPClient) mailboxName() string {
	if c.imapCfg.Mailbox == "" {
		return "INBOX"
	}
	return c.imapCfg.Mailbox
}

func (c *IMAPClient) fromAddress() string {
	if c.smtpCfg.From != "" {
		return c.smtpCfg.From
	}
	return c.imapCfg.User
}

// ListNewMessages returns messages with a UID above the cursor. A changed
// UIDVALIDITY invalidates the cursor and the lookback window is scanned again.
func (c *IMAPClient) ListNewMessages(ctx context.Context, cursor string) ([]models.RawMessage, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, cursor, err
	}

	conn, err := c.dial()
	if err != nil {
		return nil, cursor, apperrors.Transient("imap connect", err)
	}
	defer conn.Logout()

	status, err := conn.Select(c.mailboxName(), true)
	if err != nil {
		return nil, cursor, apperrors.Transient("imap select", err)
	}

	validity, lastUID := parseIMAPCursor(cursor)
	if validity != status.UidValidity {
		if cursor != "" {
			logrus.WithField("mailbox", c.Name()).Warn("UIDVALIDITY changed, rescanning lookback window")
		}
		lastUID = 0
	}

	criteria := imap.NewSearchCriteria()
	if lastUID > 0 {
		uids := new(imap.SeqSet)
		uids.AddRange(lastUID+1, 0)
		criteria.Uid = uids
	} else {
		criteria.Since = c.now().Add(-c.lookback)
	}

	found, err := conn.UidSearch(criteria)
	if err != nil {
		return nil, cursor, apperrors.Transient("imap search", err)
	}

	newest := lastUID
	seqset := new(imap.SeqSet)
	for _, uid := range found {
		// "n:*" always matches the last message, even when it is below n.
		if uid > lastUID {
			seqset.AddNum(uid)
		}
	}
	next := formatIMAPCursor(status.UidValidity, newest)
	if seqset.Empty() {
		return nil, next, nil
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqset, items, fetched)
	}()

	self := strings.ToLower(c.fromAddress())
	var messages []models.RawMessage
	for msg := range fetched {
		if msg.Uid > newest {
			newest = msg.Uid
		}
		raw, err := parseIMAPMessage(msg, section, status.UidValidity)
		if err != nil {
			logrus.WithError(err).WithField("uid", msg.Uid).Warn("Failed to parse IMAP message")
			continue
		}
		if self != "" && strings.Contains(strings.ToLower(raw.Sender), self) {
			continue
		}
		messages = append(messages, raw)
	}

	if err := <-done; err != nil {
		return nil, cursor, apperrors.Transient("imap fetch", err)
	}

	return messages, formatIMAPCursor(status.UidValidity, newest), nil
}

// parseIMAPMessage parses an IMAP message into a RawMessage. The RFC 5322
// Message-ID is the stable id when present, since UIDs change with
// UIDVALIDITY.
func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName, validity uint32) (models.RawMessage, error) {
	raw := models.RawMessage{
		ID:         fmt.Sprintf("%d:%d", validity, msg.Uid),
		ReceivedAt: msg.InternalDate,
	}

	if env := msg.Envelope; env != nil {
		raw.Subject = env.Subject
		if len(env.From) > 0 {
			raw.Sender = env.From[0].Address()
			if name := env.From[0].PersonalName; name != "" {
				raw.Sender = fmt.Sprintf("%s <%s>", name, env.From[0].Address())
			}
		}
		if env.MessageId != "" {
			raw.ID = env.MessageId
			raw.InternetMessageID = env.MessageId
		}
	}
	raw.ThreadID = raw.InternetMessageID

	r := msg.GetBody(section)
	if r == nil {
		return raw, fmt.Errorf("server did not return a message body")
	}
	body, err := readTextBody(r)
	if err != nil {
		return raw, err
	}
	raw.Body = body
	return raw, nil
}

func parseIMAPCursor(cursor string) (uint32, uint32) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	validity, err1 := strconv.ParseUint(parts[0], 10, 32)
	uid, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return uint32(validity), uint32(uid)
}

func formatIMAPCursor(validity, uid uint32) string {
	return fmt.Sprintf("%d:%d", validity, uid)
}

// SendReply sends reply over SMTP and returns the generated Message-ID.
func (c *IMAPClient) SendReply(ctx context.Context, reply Reply) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	from := c.fromAddress()
	messageID := newMessageID(from)

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", reply.To)
	m.SetHeader("Subject", reply.Subject)
	m.SetHeader("Message-ID", messageID)
	if ref := angleAddr(reply.InReplyTo); ref != "" {
		m.SetHeader("In-Reply-To", ref)
		m.SetHeader("References", ref)
	}
	m.SetDateHeader("Date", c.now())
	m.SetBody("text/plain", reply.Body)
	if reply.HTMLBody != "" {
		m.AddAlternative("text/html", reply.HTMLBody)
	}

	if err := c.send(ctx, m); err != nil {
		return "", classifySMTPError(err)
	}
	return messageID, nil
}

// Close is a no-op; connections are opened per call.
func (c *IMAPClient) Close() error {
	return nil
}

// classifySMTPError treats 4xx replies and connection failures as transient
// and 5xx replies as permanent.
func classifySMTPError(err error) error {
	if apperrors.IsFatal(err) {
		return err
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return apperrors.Fatal("smtp send", err)
		}
		return apperrors.Transient("smtp send", err)
	}
	return apperrors.Transient("smtp send", err)
}
