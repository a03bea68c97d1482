package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/models"
)

func TestComposeConfiguredCategories(t *testing.T) {
	c, err := New(map[string]string{
		"interested":       "Great to hear from you, {{.SenderName}}!",
		"more_information": "Here are the course details.",
		"not_interested":   "Thanks, we won't follow up.",
	})
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	body, err := c.Compose(models.CategoryInterested, &ComposeContext{SenderName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "Great to hear from you, Jane!", body)

	body, err = c.Compose(models.CategoryInterested, nil)
	require.NoError(t, err)
	assert.Equal(t, "Great to hear from you, there!", body)

	body, err = c.Compose(models.CategoryMoreInformation, nil)
	require.NoError(t, err)
	assert.Equal(t, "Here are the course details.", body)
}

func TestComposeUnconfiguredCategory(t *testing.T) {
	c, err := New(map[string]string{"interested": "Hi"})
	require.NoError(t, err)

	body, err := c.Compose(models.CategoryNotInterested, nil)
	assert.Empty(t, body)
	assert.True(t, apperrors.IsConfiguration(err))

	assert.True(t, apperrors.IsConfiguration(c.Validate()))
}

func TestComposeRejectsBlankTemplate(t *testing.T) {
	c, err := New(map[string]string{
		"interested":       "{{if false}}never{{end}}  ",
		"more_information": "info",
		"not_interested":   "bye",
	})
	require.NoError(t, err)

	_, err = c.Compose(models.CategoryInterested, nil)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestNewRejectsBadTemplates(t *testing.T) {
	_, err := New(map[string]string{"spam": "x"})
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = New(map[string]string{"interested": "{{.SenderName"})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestDefaultTemplatesValidate(t *testing.T) {
	c, err := New(config.DefaultTemplates)
	require.NoError(t, err)
	assert.NoError(t, c.Validate())
}

func TestContextFor(t *testing.T) {
	ctx := ContextFor(models.RawMessage{Sender: "Jane Doe <jane@example.com>", Subject: "Hi"})
	assert.Equal(t, "Jane Doe", ctx.SenderName)
	assert.Equal(t, "jane@example.com", ctx.SenderAddress)
	assert.Equal(t, "Hi", ctx.Subject)

	ctx = ContextFor(models.RawMessage{Sender: "bob@example.com"})
	assert.Equal(t, "bob", ctx.SenderName)

	ctx = ContextFor(models.RawMessage{Sender: "not an address"})
	assert.Equal(t, "not an address", ctx.SenderAddress)
}

func TestRenderHTML(t *testing.T) {
	c, err := New(config.DefaultTemplates)
	require.NoError(t, err)

	html, err := c.RenderHTML("Hi **Jane**,\n\nSee you soon.")
	require.NoError(t, err)
	assert.Contains(t, html, "<strong>Jane</strong>")
	assert.Contains(t, html, "<p>See you soon.</p>")
}
