package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	transient := Transient("send", base)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.ErrorIs(t, transient, base)

	wrapped := fmt.Errorf("worker: %w", Fatal("malformed message", base))
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsTransient(wrapped))

	cfg := Configuration("replies.templates.interested", "template is missing")
	assert.True(t, IsConfiguration(cfg))
	assert.True(t, IsFatal(cfg))
	assert.Contains(t, cfg.Error(), "replies.templates.interested")

	assert.Nil(t, Transient("noop", nil))
}

func TestFromHTTPStatus(t *testing.T) {
	base := errors.New("provider")

	assert.True(t, IsTransient(FromHTTPStatus("send", 429, base)))
	assert.True(t, IsTransient(FromHTTPStatus("send", 503, base)))
	assert.True(t, IsFatal(FromHTTPStatus("send", 400, base)))
	assert.True(t, IsFatal(FromHTTPStatus("send", 404, base)))
}

func TestIsNetwork(t *testing.T) {
	assert.True(t, IsNetwork(context.DeadlineExceeded))
	assert.True(t, IsNetwork(fmt.Errorf("dial: %w", context.DeadlineExceeded)))
	assert.False(t, IsNetwork(errors.New("bad request")))
}
