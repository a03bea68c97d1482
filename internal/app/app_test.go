package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: "0", ReadTimeout: time.Second, WriteTimeout: time.Second},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "app.db")},
		Mailbox: config.MailboxConfig{
			Provider: "imap",
			IMAP:     config.IMAPConfig{Host: "imap.example.com", Port: 993, User: "me@example.com", Password: "secret"},
			SMTP:     config.SMTPConfig{Host: "smtp.example.com", Port: 587, User: "me@example.com", Password: "secret"},
		},
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
		Worker: config.WorkerConfig{
			Count:             2,
			MaxAttempts:       3,
			BackoffBase:       time.Second,
			BackoffMax:        time.Minute,
			VisibilityTimeout: time.Minute,
			ClaimTTL:          5 * time.Minute,
			SendTimeout:       time.Minute,
			PollInterval:      10 * time.Millisecond,
			ShutdownTimeout:   time.Second,
		},
		Classifier: config.ClassifierConfig{
			Provider: "keyword",
			Keywords: config.KeywordsConfig{
				Interested:      config.DefaultInterestedKeywords,
				MoreInformation: config.DefaultMoreInformationKeywords,
			},
		},
		Replies: config.RepliesConfig{Templates: config.DefaultTemplates},
		Log:     config.LogConfig{Level: "warn"},
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	SetupLogging(config.LogConfig{Level: "debug"})
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	SetupLogging(config.LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestNewResponderFailsFast(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	_, _, err := NewResponder(cfg)
	require.NoError(t, err)

	cfg.Replies.Templates = map[string]string{"interested": "Hi"}
	_, _, err = NewResponder(cfg)
	assert.True(t, apperrors.IsConfiguration(err))

	cfg = testConfig(t)
	cfg.Classifier.Keywords.MoreInformation = nil
	_, _, err = NewResponder(cfg)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	SetupLogging(config.LogConfig{Level: "warn"})
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return a.Pool.IsRunning() && a.Scheduler.IsRunning()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, a.Pool.IsRunning())
	assert.False(t, a.Scheduler.IsRunning())
}
