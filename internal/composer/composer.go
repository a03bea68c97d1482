package composer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/models"
)

// ComposeContext carries optional per-message data available to templates
// as {{.SenderName}}, {{.SenderAddress}} and {{.Subject}}.
type ComposeContext struct {
	SenderName    string
	SenderAddress string
	Subject       string
}

// ContextFor derives a ComposeContext from an inbound message.
func ContextFor(msg models.RawMessage) *ComposeContext {
	ctx := &ComposeContext{Subject: msg.Subject}

	if addr, err := mail.ParseAddress(msg.Sender); err == nil {
		ctx.SenderName = strings.TrimSpace(addr.Name)
		ctx.SenderAddress = addr.Address
	} else {
		ctx.SenderAddress = strings.TrimSpace(msg.Sender)
	}
	if ctx.SenderName == "" && ctx.SenderAddress != "" {
		local := ctx.SenderAddress
		if i := strings.Index(local, "@"); i > 0 {
			local = local[:i]
		}
		ctx.SenderName = local
	}
	return ctx
}

// Composer renders the reply template configured for a category.
type Composer struct {
	templates map[models.Category]*template.Template
	markdown  goldmark.Markdown
}

// New parses one template per category. Unknown category keys and
// unparsable templates are configuration errors; missing categories are
// reported by Validate and Compose.
func New(templates map[string]string) (*Composer, error) {
	c := &Composer{
		templates: make(map[models.Category]*template.Template, len(templates)),
		markdown:  goldmark.New(),
	}
	for key, text := range templates {
		category, err := models.ParseCategory(key)
		if err != nil {
			return nil, apperrors.Configuration("replies.templates."+key, "unknown category")
		}
		tmpl, err := template.New(string(category)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, apperrors.Configuration("replies.templates."+key, "invalid template: %v", err)
		}
		c.templates[category] = tmpl
	}
	return c, nil
}

// Validate checks that every category has a template that renders to
// non-empty text.
func (c *Composer) Validate() error {
	sample := &ComposeContext{SenderName: "there", SenderAddress: "someone@example.com", Subject: "Hello"}
	for _, category := range models.Categories() {
		if _, err := c.Compose(category, sample); err != nil {
			return err
		}
	}
	return nil
}

// Compose renders the reply body for category. It fails with a
// ConfigurationError when the category has no template or the template
// renders to blank text.
func (c *Composer) Compose(category models.Category, ctx *ComposeContext) (string, error) {
	tmpl, ok := c.templates[category]
	if !ok {
		return "", apperrors.Configuration("replies.templates."+string(category), "template is missing")
	}

	data := ComposeContext{SenderName: "there"}
	if ctx != nil {
		data = *ctx
		if strings.TrimSpace(data.SenderName) == "" {
			data.SenderName = "there"
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", apperrors.Configuration("replies.templates."+string(category), "template failed to render: %v", err)
	}

	body := strings.TrimSpace(buf.String())
	if body == "" {
		return "", apperrors.Configuration("replies.templates."+string(category), "template renders to empty text")
	}
	return body, nil
}

// RenderHTML converts a markdown reply body to HTML for the alternative part.
func (c *Composer) RenderHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := c.markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("failed to render reply html: %w", err)
	}
	return buf.String(), nil
}
