package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"smart-mail-responder/internal/apperrors"
)

// sendSMTP delivers msgs over one SMTP session bound to ctx. The connection
// deadline follows ctx, so a stalled server cannot hold a send past it.
func (c *IMAPClient) sendSMTP(ctx context.Context, msgs ...*gomail.Message) error {
	host := c.smtpCfg.Host
	addr := net.JoinHostPort(host, strconv.Itoa(c.smtpCfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	tlsConfig := &tls.Config{ServerName: host}
	if c.smtpCfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	sc, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer sc.Close()

	if c.smtpCfg.Port != 465 {
		if ok, _ := sc.Extension("STARTTLS"); ok {
			if err := sc.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS failed: %w", err)
			}
		}
	}
	if c.smtpCfg.User != "" {
		if ok, _ := sc.Extension("AUTH"); ok {
			if err := sc.Auth(smtp.PlainAuth("", c.smtpCfg.User, c.smtpCfg.Password, host)); err != nil {
				return fmt.Errorf("SMTP auth failed: %w", err)
			}
		}
	}

	// gomail.Send flattens errors into text; keep the SMTP reply so its code
	// can be classified.
	var smtpErr error
	send := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		smtpErr = deliver(sc, from, to, msg)
		return smtpErr
	})
	if err := gomail.Send(send, msgs...); err != nil {
		if smtpErr != nil {
			return smtpErr
		}
		return apperrors.Fatal("build reply", err)
	}

	// The server accepted the message at the end of DATA; a failed QUIT must
	// not turn into a retry.
	if err := sc.Quit(); err != nil {
		logrus.WithError(err).Debug("SMTP QUIT failed after delivery")
	}
	return nil
}

func deliver(sc *smtp.Client, from string, to []string, msg io.WriterTo) error {
	if err := sc.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := sc.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := sc.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
