// Package display formats pipeline state for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"smart-mail-responder/internal/models"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warning  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// StatusLabel returns a padded, colored job status.
func StatusLabel(status models.JobStatus) string {
	label := fmt.Sprintf("%-9s", strings.ToUpper(string(status)))
	switch status {
	case models.JobDone:
		return Success.Render(label)
	case models.JobInFlight:
		return Warning.Render(label)
	case models.JobFailed:
		return ErrStyle.Render(label)
	default:
		return Dim.Render(label)
	}
}

// CategoryLabel returns a short label for a category.
func CategoryLabel(category models.Category) string {
	switch category {
	case models.CategoryInterested:
		return Success.Render("interested")
	case models.CategoryMoreInformation:
		return Warning.Render("more info")
	case models.CategoryNotInterested:
		return Muted.Render("not interested")
	default:
		return Dim.Render("-")
	}
}

// Header prints a bold section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// JobTable prints one line per job.
func JobTable(w io.Writer, jobs []models.ReplyJob, now time.Time) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, Muted.Render("  No jobs"))
		return
	}
	for _, job := range jobs {
		line := fmt.Sprintf("  %s %s  %-24s %-28s attempt %d  %s",
			StatusLabel(job.Status),
			Dim.Render(job.ID[:min(8, len(job.ID))]),
			Truncate(job.Sender, 24),
			Truncate(job.Subject, 28),
			job.Attempt,
			Muted.Render(TimeAgo(job.EnqueuedAt, now)),
		)
		fmt.Fprintln(w, line)
		if job.Status == models.JobFailed && job.LastError != "" {
			fmt.Fprintf(w, "      %s\n", ErrStyle.Render(Truncate(job.LastError, 90)))
		}
	}
}

// Stats prints queue counts.
func Stats(w io.Writer, stats models.QueueStats) {
	Header(w, "Reply Jobs")
	fmt.Fprintf(w, "    Pending    %4d\n", stats.Pending)
	fmt.Fprintf(w, "    In flight  %4d\n", stats.InFlight)
	fmt.Fprintf(w, "    Done       %4d\n", stats.Done)
	fmt.Fprintf(w, "    Failed     %4d\n", stats.Failed)
}

// TimeAgo formats t relative to now.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
