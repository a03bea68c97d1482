package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// newMessageID returns an angle-bracketed Message-ID in domain.
func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = strings.Trim(from[i+1:], "> ")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// buildReplyMIME renders reply as an RFC 5322 message with a text part and,
// when present, an HTML alternative.
func buildReplyMIME(from string, reply Reply, messageID string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	if strings.Contains(from, "@") {
		h.SetAddressList("From", []*mail.Address{{Address: from}})
	}

	to, err := mail.ParseAddressList(reply.To)
	if err != nil || len(to) == 0 {
		return nil, fmt.Errorf("invalid recipient %q: %w", reply.To, err)
	}
	h.SetAddressList("To", to)
	h.SetSubject(reply.Subject)
	h.Set("Message-Id", messageID)
	if ref := angleAddr(reply.InReplyTo); ref != "" {
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}
	if err := writePart(tw, "text/plain", reply.Body); err != nil {
		return nil, err
	}
	if reply.HTMLBody != "" {
		if err := writePart(tw, "text/html", reply.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

// readTextBody extracts the text/plain body of a message, falling back to
// the first text/html part.
func readTextBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read part body: %w", err)
		}

		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(content)
		case contentType == "text/html" && html == "":
			html = string(content)
		}
	}

	if plain != "" {
		return plain, nil
	}
	return html, nil
}
