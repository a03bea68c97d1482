package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/config"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
	tu "smart-mail-responder/internal/testutil"
)

// countingFetcher records how many cycles ran
type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (c *countingFetcher) RunCycle(ctx context.Context) (models.FetchResult, error) {
	n := c.calls.Add(1)
	return models.FetchResult{Listed: int(n)}, c.err
}

func TestSchedulerRestart(t *testing.T) {
	cfg := &config.SchedulerConfig{Interval: time.Hour}
	sched := NewScheduler(cfg, 0, &countingFetcher{}, nil, nil, nil)

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	assert.False(t, sched.GetNextRun().IsZero())
	assert.Error(t, sched.Start())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.True(t, sched.GetNextRun().IsZero())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	// context should be active after restart
	assert.NoError(t, sched.runContext().Err())
	require.NoError(t, sched.Stop())
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	fetcher := &countingFetcher{}
	cfg := &config.SchedulerConfig{Interval: time.Second}
	sched := NewScheduler(cfg, 0, fetcher, nil, nil, nil)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.False(t, sched.GetLastRun().IsZero())
}

func TestRunOnceRecordsResult(t *testing.T) {
	fetcher := &countingFetcher{}
	sched := NewScheduler(&config.SchedulerConfig{Interval: time.Hour}, 0, fetcher, nil, nil, nil)

	result, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Listed)

	fetcher.err = errors.New("mailbox unavailable")
	_, err = sched.RunOnce(context.Background())
	require.Error(t, err)

	last, lastErr := sched.LastResult()
	assert.Equal(t, 2, last.Listed)
	assert.EqualError(t, lastErr, "mailbox unavailable")
}

func TestRejectsInvalidConfig(t *testing.T) {
	sched := NewScheduler(&config.SchedulerConfig{}, 0, &countingFetcher{}, nil, nil, nil)
	assert.Error(t, sched.Start())

	sched = NewScheduler(&config.SchedulerConfig{Interval: time.Minute, PurgeSchedule: "not a schedule"}, time.Hour, &countingFetcher{}, nil, nil, nil)
	assert.Error(t, sched.Start())
	assert.False(t, sched.IsRunning())
}

func TestPurgeAndQueueGauges(t *testing.T) {
	clock := tu.NewClock()
	db := tu.NewTestDB(t)
	q := queue.New(db, queue.Options{Now: clock.Now})
	repo := repository.New(db).WithClock(clock.Now)
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	ctx := context.Background()

	for _, id := range []string{"m-1", "m-2"} {
		job := models.NewReplyJob("", models.RawMessage{ID: id, ThreadID: "t", Sender: "a@example.com"})
		_, err := q.Enqueue(ctx, &job)
		require.NoError(t, err)
	}
	job, err := q.TryDequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, job))
	require.NoError(t, repo.LogReplyAttempt(ctx, models.ReplyLog{MessageID: job.MessageID, Status: models.LogSent}))

	sched := NewScheduler(&config.SchedulerConfig{Interval: time.Hour}, 24*time.Hour, &countingFetcher{}, q, repo, m)
	_, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("done")))

	jobs, logs, err := sched.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, jobs)
	assert.Zero(t, logs)

	clock.Advance(25 * time.Hour)
	jobs, logs, err = sched.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, jobs)
	assert.EqualValues(t, 1, logs)
}
