package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/repository"
)

// Reporter is told about jobs that failed permanently.
type Reporter interface {
	Report(ctx context.Context, job models.ReplyJob, err error)
}

// LogReporter logs failures and keeps a failed entry in the reply log.
type LogReporter struct {
	repo *repository.Repository
}

// NewLogReporter creates the default reporter. repo may be nil.
func NewLogReporter(repo *repository.Repository) *LogReporter {
	return &LogReporter{repo: repo}
}

func (r *LogReporter) Report(ctx context.Context, job models.ReplyJob, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"job_id":     job.ID,
		"message_id": job.MessageID,
		"attempt":    job.Attempt,
		"sender":     job.Sender,
	}).Error("Reply job failed permanently")

	if r.repo == nil {
		return
	}
	entry := models.ReplyLog{
		MessageID: job.MessageID,
		JobID:     job.ID,
		Status:    models.LogFailed,
		Attempt:   job.Attempt,
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	if logErr := r.repo.LogReplyAttempt(context.WithoutCancel(ctx), entry); logErr != nil {
		logrus.WithError(logErr).Warn("Failed to write reply log")
	}
}
