package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/mailbox"
	"smart-mail-responder/internal/metrics"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
	tu "smart-mail-responder/internal/testutil"
)

type fixture struct {
	box     *mailbox.Fake
	repo    *repository.Repository
	queue   *queue.Queue
	metrics *metrics.Metrics
	fetcher *Fetcher
}

func newFixture(t *testing.T, msgs ...models.RawMessage) *fixture {
	t.Helper()
	db := tu.NewTestDB(t)
	clock := tu.NewClock()
	f := &fixture{
		box:     mailbox.NewFake(msgs...),
		repo:    repository.New(db).WithClock(clock.Now),
		queue:   queue.New(db, queue.Options{Now: clock.Now}),
		metrics: metrics.NewMetricsWith(prometheus.NewRegistry()),
	}
	f.fetcher = New(f.box, f.repo, f.queue, f.metrics)
	return f
}

func message(id, body string) models.RawMessage {
	return models.RawMessage{
		ID:       id,
		ThreadID: "t-" + id,
		Sender:   "Jane Doe <jane@example.com>",
		Subject:  "Question",
		Body:     body,
	}
}

func TestRunCycleEnqueuesAndAdvancesCursor(t *testing.T) {
	f := newFixture(t, message("m-1", "hello"), message("m-2", "hi"))
	ctx := context.Background()

	result, err := f.fetcher.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Listed)
	assert.Equal(t, 2, result.Enqueued)
	assert.Equal(t, "2", result.Cursor)

	cursor, err := f.repo.GetCursor(ctx, "fake")
	require.NoError(t, err)
	assert.Equal(t, "2", cursor)

	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Pending)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.JobsEnqueued))

	// Nothing new on the next cycle.
	result, err = f.fetcher.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Listed)
}

func TestRunCycleDedupesRedelivery(t *testing.T) {
	f := newFixture(t, message("m-1", "hello"))
	f.box.Redeliver = 1
	ctx := context.Background()

	_, err := f.fetcher.RunCycle(ctx)
	require.NoError(t, err)

	f.box.Deliver(message("m-2", "second"))
	result, err := f.fetcher.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Listed)
	assert.Equal(t, 1, result.Enqueued)
	assert.Equal(t, 1, result.Duplicates)

	jobs, err := f.queue.ListByMessage(ctx, "m-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunCycleSkipsHandledMessages(t *testing.T) {
	f := newFixture(t, message("m-1", "hello"))
	ctx := context.Background()

	_, err := f.repo.MarkInFlight(ctx, "m-1", "w", time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.repo.RecordSent(ctx, "m-1", models.CategoryInterested, "sent-1"))

	result, err := f.fetcher.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Enqueued)
}

func TestRunCycleKeepsCursorOnListError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveCursor(ctx, "fake", "7"))

	f.box.ListFunc = func(ctx context.Context, cursor string) ([]models.RawMessage, string, error) {
		assert.Equal(t, "7", cursor)
		return nil, cursor, errors.New("provider unavailable")
	}

	_, err := f.fetcher.RunCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FetchFailures))

	cursor, err := f.repo.GetCursor(ctx, "fake")
	require.NoError(t, err)
	assert.Equal(t, "7", cursor)
}

func TestOverlappingCyclesShareOneList(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	f.box.ListFunc = func(ctx context.Context, cursor string) ([]models.RawMessage, string, error) {
		entered <- struct{}{}
		<-release
		return []models.RawMessage{message("m-1", "hello")}, "1", nil
	}

	var wg sync.WaitGroup
	results := make([]models.FetchResult, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.fetcher.RunCycle(context.Background())
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = f.fetcher.RunCycle(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.box.ListCalls())
	assert.Equal(t, 1, results[0].Enqueued)
	assert.Equal(t, results[0], results[1])
}
