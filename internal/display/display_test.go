package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"smart-mail-responder/internal/models"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel...", Truncate("hello world", 6))
	assert.Equal(t, "he", Truncate("hello", 2))
	assert.Equal(t, "héé...", Truncate("hééééééé", 6))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "", TimeAgo(time.Time{}, now))
	assert.Equal(t, "just now", TimeAgo(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", TimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", TimeAgo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", TimeAgo(now.Add(-48*time.Hour), now))
	assert.Equal(t, "Jan 1", TimeAgo(now.Add(-14*24*time.Hour), now))
}

func TestJobTable(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	jobs := []models.ReplyJob{
		{ID: "0123456789", Sender: "jane@example.com", Subject: "Hello", Status: models.JobDone, EnqueuedAt: now.Add(-time.Hour)},
		{ID: "abc", Sender: "joe@example.com", Subject: "Question", Status: models.JobFailed, Attempt: 3, LastError: "550 mailbox unavailable"},
	}

	var buf bytes.Buffer
	JobTable(&buf, jobs, now)
	out := buf.String()

	assert.Contains(t, out, "DONE")
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "jane@example.com")
	assert.Contains(t, out, "attempt 3")
	assert.Contains(t, out, "550 mailbox unavailable")
	assert.Contains(t, out, "1h ago")

	buf.Reset()
	JobTable(&buf, nil, now)
	assert.Contains(t, buf.String(), "No jobs")
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	Stats(&buf, models.QueueStats{Pending: 2, Done: 7, Failed: 1})
	assert.Contains(t, buf.String(), "Pending")
	assert.Contains(t, buf.String(), "7")
}
