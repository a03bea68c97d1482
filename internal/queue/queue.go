package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-mail-responder/internal/models"
)

var (
	// ErrLeaseLost is returned when a job was redelivered to another worker
	// after its visibility timeout, or otherwise changed under the caller.
	ErrLeaseLost = errors.New("job lease lost")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotRequeueable is returned when requeueing a job that is not failed.
	ErrNotRequeueable = errors.New("only failed jobs can be requeued")
)

// claimBatch bounds how many candidates a single dequeue pass inspects.
const claimBatch = 10

// Options configures a Queue.
type Options struct {
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	Now               func() time.Time
}

// Queue is a durable reply job queue stored in the reply_jobs table.
// Delivery is at-least-once: a dequeued job that is not acknowledged within
// the visibility timeout is handed to the next Dequeue call.
type Queue struct {
	db   *gorm.DB
	opts Options

	mu   sync.Mutex
	wake chan struct{}
}

// New creates a queue over db.
func New(db *gorm.DB, opts Options) *Queue {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{db: db, opts: opts, wake: make(chan struct{})}
}

func (q *Queue) now() time.Time {
	return q.opts.Now()
}

// Enqueue stores job as pending. It returns false when the message already
// has a pending or in-flight job.
func (q *Queue) Enqueue(ctx context.Context, job *models.ReplyJob) (bool, error) {
	if job.MessageID == "" {
		return false, fmt.Errorf("job has no message id")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	now := q.now()
	key := job.MessageID
	job.ActiveKey = &key
	job.Status = models.JobPending
	job.LeaseToken = ""
	job.VisibleAt = now.UnixMilli()
	job.EnqueuedAt = now
	job.FinishedAt = 0

	result := q.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "active_key"}}, DoNothing: true}).
		Create(job)
	if result.Error != nil {
		return false, fmt.Errorf("failed to enqueue job for %s: %w", job.MessageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	q.broadcast()
	return true, nil
}

// Dequeue blocks until a job is available or ctx is done. The returned job
// is in flight and carries a fresh lease token.
func (q *Queue) Dequeue(ctx context.Context) (*models.ReplyJob, error) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		wake := q.waitChan()

		job, err := q.TryDequeue(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// TryDequeue claims the oldest visible job without blocking. It returns nil
// when nothing is available.
func (q *Queue) TryDequeue(ctx context.Context) (*models.ReplyJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := q.now().UnixMilli()
	active := []models.JobStatus{models.JobPending, models.JobInFlight}

	var candidates []models.ReplyJob
	result := q.db.WithContext(ctx).
		Where("status IN ? AND visible_at <= ?", active, now).
		Order("visible_at ASC").
		Limit(claimBatch).
		Find(&candidates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load visible jobs: %w", result.Error)
	}

	for _, candidate := range candidates {
		token := uuid.NewString()
		visibleAt := now + q.opts.VisibilityTimeout.Milliseconds()

		result := q.db.WithContext(ctx).Model(&models.ReplyJob{}).
			Where("id = ? AND lease_token = ? AND status IN ? AND visible_at <= ?",
				candidate.ID, candidate.LeaseToken, active, now).
			Updates(map[string]interface{}{
				"status":      models.JobInFlight,
				"lease_token": token,
				"visible_at":  visibleAt,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", candidate.ID, result.Error)
		}
		if result.RowsAffected == 1 {
			job := candidate
			job.Status = models.JobInFlight
			job.LeaseToken = token
			job.VisibleAt = visibleAt
			return &job, nil
		}
	}
	return nil, nil
}

// Ack marks job as done.
func (q *Queue) Ack(ctx context.Context, job *models.ReplyJob) error {
	return q.transition(ctx, job, map[string]interface{}{
		"status":      models.JobDone,
		"active_key":  nil,
		"lease_token": "",
		"finished_at": q.now().UnixMilli(),
	})
}

// Retry returns job to pending with the given attempt count, visible again
// after delay.
func (q *Queue) Retry(ctx context.Context, job *models.ReplyJob, attempt int, delay time.Duration, cause error) error {
	err := q.transition(ctx, job, map[string]interface{}{
		"status":      models.JobPending,
		"attempt":     attempt,
		"lease_token": "",
		"visible_at":  q.now().Add(delay).UnixMilli(),
		"last_error":  errorText(cause),
	})
	if err == nil {
		job.Attempt = attempt
	}
	return err
}

// Defer returns job to pending until the given time without consuming an attempt.
func (q *Queue) Defer(ctx context.Context, job *models.ReplyJob, until time.Time, reason string) error {
	return q.transition(ctx, job, map[string]interface{}{
		"status":      models.JobPending,
		"lease_token": "",
		"visible_at":  until.UnixMilli(),
		"last_error":  reason,
	})
}

// Fail marks job as permanently failed with its final attempt count.
func (q *Queue) Fail(ctx context.Context, job *models.ReplyJob, attempt int, cause error) error {
	err := q.transition(ctx, job, map[string]interface{}{
		"status":      models.JobFailed,
		"attempt":     attempt,
		"active_key":  nil,
		"lease_token": "",
		"finished_at": q.now().UnixMilli(),
		"last_error":  errorText(cause),
	})
	if err == nil {
		job.Attempt = attempt
	}
	return err
}

func (q *Queue) transition(ctx context.Context, job *models.ReplyJob, updates map[string]interface{}) error {
	if job.LeaseToken == "" {
		return ErrLeaseLost
	}
	result := q.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Where("id = ? AND lease_token = ? AND status = ?", job.ID, job.LeaseToken, models.JobInFlight).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLeaseLost
	}
	if status, ok := updates["status"].(models.JobStatus); ok {
		job.Status = status
	}
	job.LeaseToken = ""
	if job.Status == models.JobPending {
		q.broadcast()
	}
	return nil
}

// Requeue moves a failed job back to pending with a fresh attempt budget.
func (q *Queue) Requeue(ctx context.Context, id string) (*models.ReplyJob, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobFailed {
		return nil, ErrNotRequeueable
	}

	result := q.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Where("id = ? AND status = ?", id, models.JobFailed).
		Updates(map[string]interface{}{
			"status":      models.JobPending,
			"attempt":     0,
			"active_key":  job.MessageID,
			"lease_token": "",
			"visible_at":  q.now().UnixMilli(),
			"finished_at": 0,
			"last_error":  "",
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to requeue job %s (is another job active for %s?): %w", id, job.MessageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotRequeueable
	}

	q.broadcast()
	return q.Get(ctx, id)
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.ReplyJob, error) {
	var job models.ReplyJob
	result := q.db.WithContext(ctx).Where("id = ?", id).First(&job)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, ErrJobNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error loading job: %w", result.Error)
	}
	return &job, nil
}

// List returns jobs ordered by enqueue time, newest first. An empty status lists all.
func (q *Queue) List(ctx context.Context, status models.JobStatus, limit int) ([]models.ReplyJob, error) {
	var jobs []models.ReplyJob
	query := q.db.WithContext(ctx).Order("enqueued_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", result.Error)
	}
	return jobs, nil
}

// ListByMessage returns every job recorded for messageID.
func (q *Queue) ListByMessage(ctx context.Context, messageID string) ([]models.ReplyJob, error) {
	var jobs []models.ReplyJob
	if result := q.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("failed to list jobs for %s: %w", messageID, result.Error)
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	result := q.db.WithContext(ctx).Model(&models.ReplyJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return models.QueueStats{}, fmt.Errorf("failed to count jobs: %w", result.Error)
	}

	var stats models.QueueStats
	for _, row := range rows {
		switch row.Status {
		case models.JobPending:
			stats.Pending = row.Count
		case models.JobInFlight:
			stats.InFlight = row.Count
		case models.JobDone:
			stats.Done = row.Count
		case models.JobFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

// PurgeFinished deletes done and failed jobs that finished before the retention window.
func (q *Queue) PurgeFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan).UnixMilli()
	result := q.db.WithContext(ctx).
		Where("status IN ? AND finished_at > 0 AND finished_at < ?",
			[]models.JobStatus{models.JobDone, models.JobFailed}, cutoff).
		Delete(&models.ReplyJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (q *Queue) waitChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wake
}

// broadcast wakes every blocked Dequeue.
func (q *Queue) broadcast() {
	q.mu.Lock()
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
