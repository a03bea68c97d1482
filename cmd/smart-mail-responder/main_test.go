package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/models"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
log:
  level: error
replies:
  templates:
    interested: "Great to hear from you, {{.SenderName}}."
    more_information: "Details are on their way, {{.SenderName}}."
    not_interested: "Thanks for letting us know."
`, filepath.Join(dir, "cli.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "classify", "--config", cfg, "--json=false", "--sender", "Jane Doe <jane@example.com>",
		"Do you offer a course for beginners?")
	require.NoError(t, err)
	assert.Contains(t, out, "more info")
	assert.Contains(t, out, "Details are on their way, Jane Doe.")

	out, err = run(t, "classify", "--config", cfg, "--json", "Not relevant to me")
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, string(models.CategoryNotInterested), resp["category"])
}

func TestStatsAndJobsCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "stats", "--config", cfg, "--json")
	require.NoError(t, err)
	var stats models.QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.Pending)

	out, err = run(t, "jobs", "--config", cfg, "--json=false", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs")

	_, err = run(t, "requeue", "--config", cfg, "missing")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "smart-mail-responder version dev")
}

func TestAuthCommand(t *testing.T) {
	cfg := writeConfig(t)
	t.Setenv("GMAIL_CLIENT_ID", "")
	t.Setenv("GMAIL_CLIENT_SECRET", "")

	_, err := run(t, "auth", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GMAIL_CLIENT_ID")

	t.Setenv("GMAIL_CLIENT_ID", "client-id")
	t.Setenv("GMAIL_CLIENT_SECRET", "client-secret")
	rootCmd.SetIn(strings.NewReader(""))
	defer rootCmd.SetIn(nil)

	out, err := run(t, "auth", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, out, "accounts.google.com")
	assert.Contains(t, out, "client_id=client-id")
}
