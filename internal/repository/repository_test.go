package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder/internal/apperrors"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/testutil"
)

func newTestRepository(t *testing.T) (*Repository, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock()
	return New(testutil.NewTestDB(t)).WithClock(clock.Now), clock
}

func TestMarkInFlightClaimsOnce(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.MarkInFlight(ctx, "m-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first.Claimed())
	assert.NoError(t, first.Err())

	second, err := repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, second.Claimed())
	assert.Equal(t, ClaimHeldByOther, second.Outcome)
	assert.ErrorIs(t, second.Err(), apperrors.ErrDuplicateClaim)
	assert.Equal(t, first.Expiry.UnixMilli(), second.Expiry.UnixMilli())
}

func TestMarkInFlightAfterRelease(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.MarkInFlight(ctx, "m-1", "worker-a", time.Minute)
	require.NoError(t, err)

	// Only the owner can release.
	require.NoError(t, repo.ReleaseInFlight(ctx, "m-1", "worker-b"))
	res, err := repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Claimed())

	require.NoError(t, repo.ReleaseInFlight(ctx, "m-1", "worker-a"))
	res, err = repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Claimed())
}

func TestMarkInFlightExpiredClaim(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.MarkInFlight(ctx, "m-1", "crashed", time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	res, err := repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Claimed())

	clock.Advance(2 * time.Second)
	res, err = repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Claimed())

	record, err := repo.GetRecord(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-b", record.ClaimedBy)
}

func TestRecordSentBlocksFurtherClaims(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.MarkInFlight(ctx, "m-1", "worker-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.RecordSent(ctx, "m-1", models.CategoryInterested, "sent-1"))

	replied, err := repo.HasReplied(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, replied)

	clock.Advance(time.Hour)
	res, err := repo.MarkInFlight(ctx, "m-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ClaimAlreadyReplied, res.Outcome)
	assert.ErrorIs(t, res.Err(), apperrors.ErrDuplicateClaim)

	// A second RecordSent keeps the original reply.
	require.NoError(t, repo.RecordSent(ctx, "m-1", models.CategoryInterested, "sent-2"))
	record, err := repo.GetRecord(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", record.SentMessageID)
	assert.Equal(t, models.CategoryInterested, record.Category)

	replied, err = repo.HasReplied(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, replied)
}

func TestMarkFailedAndReopen(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.MarkInFlight(ctx, "m-1", "worker-a", time.Minute)
	require.NoError(t, err)

	// A worker that does not hold the live claim cannot fail it.
	require.NoError(t, repo.MarkFailed(ctx, "m-1", "worker-b", "boom"))
	record, err := repo.GetRecord(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReplyInFlight, record.Status)

	require.NoError(t, repo.MarkFailed(ctx, "m-1", "worker-a", "boom"))
	handled, err := repo.IsHandled(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, handled)
	replied, err := repo.HasReplied(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, replied)

	require.NoError(t, repo.Reopen(ctx, "m-1"))
	handled, err = repo.IsHandled(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, handled)

	res, err := repo.MarkInFlight(ctx, "m-1", "worker-c", time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Claimed())
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := repo.MarkInFlight(ctx, "m-race", fmt.Sprintf("worker-%d", i), time.Minute)
			if !assert.NoError(t, err) {
				return
			}
			if res.Claimed() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestCursorRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	cursor, err := repo.GetCursor(ctx, "gmail:me")
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, repo.SaveCursor(ctx, "gmail:me", "1700000000"))
	require.NoError(t, repo.SaveCursor(ctx, "gmail:me", "1700000100"))

	cursor, err = repo.GetCursor(ctx, "gmail:me")
	require.NoError(t, err)
	assert.Equal(t, "1700000100", cursor)
}

func TestReplyLogs(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.LogReplyAttempt(ctx, models.ReplyLog{MessageID: "m-1", Status: models.LogRetry, Attempt: 1}))
	require.NoError(t, repo.LogReplyAttempt(ctx, models.ReplyLog{MessageID: "m-1", Status: models.LogSent, Attempt: 1}))
	require.NoError(t, repo.LogReplyAttempt(ctx, models.ReplyLog{MessageID: "m-2", Status: models.LogSent}))

	logs, err := repo.ListLogs(ctx, "m-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogSent, logs[0].Status)

	clock.Advance(48 * time.Hour)
	purged, err := repo.PurgeLogs(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
}
