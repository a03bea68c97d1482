package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
)

func TestCompleteReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  interested \n"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{APIKey: "secret", BaseURL: srv.URL + "/", Model: "test-model"})
	out, err := client.Complete(context.Background(), "classify", "hello")
	require.NoError(t, err)
	assert.Equal(t, "interested", out)
}

func TestCompleteClassifiesStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{APIKey: "secret", BaseURL: srv.URL, Model: "m"})

	_, err := client.Complete(context.Background(), "s", "p")
	assert.True(t, apperrors.IsTransient(err))

	status.Store(http.StatusUnauthorized)
	_, err = client.Complete(context.Background(), "s", "p")
	assert.True(t, apperrors.IsFatal(err))
}
