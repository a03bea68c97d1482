package worker

import (
	"context"
	"fmt"

	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
)

// Requeue gives a failed job a fresh attempt budget. The message's failed
// reply record is reopened only once the job is back in the queue; a failed
// record stays claimable, so the job can still run if reopening fails.
func Requeue(ctx context.Context, q *queue.Queue, repo *repository.Repository, jobID string) (*models.ReplyJob, error) {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobFailed {
		return nil, queue.ErrNotRequeueable
	}

	replied, err := repo.HasReplied(ctx, job.MessageID)
	if err != nil {
		return nil, err
	}
	if replied {
		return nil, fmt.Errorf("message %s was already replied to: %w", job.MessageID, queue.ErrNotRequeueable)
	}

	requeued, err := q.Requeue(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := repo.Reopen(ctx, job.MessageID); err != nil {
		return requeued, err
	}
	return requeued, nil
}
