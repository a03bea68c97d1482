package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"smart-mail-responder/internal/mailbox"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
)

// Fetcher turns new mailbox messages into reply jobs.
type Fetcher struct {
	mailbox mailbox.Client
	repo    *repository.Repository
	queue   *queue.Queue
	metrics *metrics.Metrics
	group   singleflight.Group
}

// New creates a fetcher. metrics may be nil.
func New(client mailbox.Client, repo *repository.Repository, q *queue.Queue, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		mailbox: client,
		repo:    repo,
		queue:   q,
		metrics: m,
	}
}

// RunCycle lists messages past the stored cursor and enqueues a job for each
// one that has not been handled. Concurrent callers share one cycle.
// The cursor only advances when every message was enqueued or skipped, so a
// failed cycle is retried from the same position.
func (f *Fetcher) RunCycle(ctx context.Context) (models.FetchResult, error) {
	v, err, shared := f.group.Do(f.mailbox.Name(), func() (interface{}, error) {
		return f.runCycle(ctx)
	})
	if shared {
		logrus.Debug("Joined a fetch cycle already in progress")
	}
	result, _ := v.(models.FetchResult)
	return result, err
}

func (f *Fetcher) runCycle(ctx context.Context) (models.FetchResult, error) {
	start := time.Now()
	name := f.mailbox.Name()
	var result models.FetchResult

	if f.metrics != nil {
		f.metrics.FetchCycles.Inc()
		defer func() {
			f.metrics.FetchTime.Observe(time.Since(start).Seconds())
		}()
	}

	cursor, err := f.repo.GetCursor(ctx, name)
	if err != nil {
		f.countFailure()
		return result, fmt.Errorf("failed to load cursor: %w", err)
	}

	messages, next, err := f.mailbox.ListNewMessages(ctx, cursor)
	if err != nil {
		f.countFailure()
		return result, fmt.Errorf("failed to list messages: %w", err)
	}
	result.Listed = len(messages)
	result.Cursor = cursor
	if f.metrics != nil {
		f.metrics.MessagesListed.Add(float64(len(messages)))
	}

	for _, msg := range messages {
		if msg.ID == "" {
			logrus.Warn("Skipping message without an id")
			result.Skipped++
			continue
		}

		handled, err := f.repo.IsHandled(ctx, msg.ID)
		if err != nil {
			f.countFailure()
			return result, fmt.Errorf("failed to check message %s: %w", msg.ID, err)
		}
		if handled {
			result.Skipped++
			continue
		}

		job := models.NewReplyJob("", msg)
		enqueued, err := f.queue.Enqueue(ctx, &job)
		if err != nil {
			f.countFailure()
			return result, err
		}
		if !enqueued {
			result.Duplicates++
			if f.metrics != nil {
				f.metrics.DuplicateJobs.Inc()
			}
			continue
		}

		result.Enqueued++
		if f.metrics != nil {
			f.metrics.JobsEnqueued.Inc()
		}
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"job_id":     job.ID,
			"sender":     msg.Sender,
		}).Debug("Enqueued reply job")
	}

	if next != "" && next != cursor {
		if err := f.repo.SaveCursor(ctx, name, next); err != nil {
			f.countFailure()
			return result, fmt.Errorf("failed to save cursor: %w", err)
		}
		result.Cursor = next
	}

	logrus.WithFields(logrus.Fields{
		"mailbox":    name,
		"listed":     result.Listed,
		"enqueued":   result.Enqueued,
		"skipped":    result.Skipped,
		"duplicates": result.Duplicates,
		"duration":   time.Since(start).String(),
	}).Info("Fetch cycle completed")

	return result, nil
}

func (f *Fetcher) countFailure() {
	if f.metrics != nil {
		f.metrics.FetchFailures.Inc()
	}
}
