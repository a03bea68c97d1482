package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"interested":       CategoryInterested,
		"Interested":       CategoryInterested,
		"MoreInformation":  CategoryMoreInformation,
		"more information": CategoryMoreInformation,
		"not-interested":   CategoryNotInterested,
	}
	for in, want := range cases {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCategory("spam")
	assert.Error(t, err)
}

func TestReplyJobSnapshot(t *testing.T) {
	msg := RawMessage{
		ID:                "m-1",
		ThreadID:          "t-1",
		InternetMessageID: "<abc@example.com>",
		Sender:            "Jane <jane@example.com>",
		Subject:           "Hello",
		Body:              "looking to connect",
		ReceivedAt:        time.Unix(1700000000, 0),
	}

	job := NewReplyJob("job-1", msg)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, msg, job.Message())
}
