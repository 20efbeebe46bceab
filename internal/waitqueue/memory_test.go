package waitqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

var baseTime = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func testWindow(zoneID uint64, startOffset, endOffset time.Duration) model.Window {
	return model.NewWindow(zoneID, baseTime.Add(startOffset), baseTime.Add(endOffset))
}

func testEntry(userID, zoneID uint64, w model.Window, enrolledOffset time.Duration) model.WaitingEntry {
	return model.WaitingEntry{
		UserID:     userID,
		ZoneID:     zoneID,
		Start:      w.Start,
		End:        w.End,
		EnrolledAt: baseTime.Add(enrolledOffset),
	}
}

func TestMemoryEnqueueRanksFIFO(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	w := testWindow(1, time.Hour, 2*time.Hour)

	for i := uint64(1); i <= 3; i++ {
		rank, err := q.Enqueue(ctx, w, testEntry(i, 1, w, time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int(i), rank)
	}

	n, err := q.Length(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryEnqueueDeduplicates(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	w := testWindow(1, time.Hour, 2*time.Hour)

	e := testEntry(7, 1, w, time.Second)
	rank, err := q.Enqueue(ctx, w, e)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	// Re-submitting the same request keeps the original position.
	rank, err = q.Enqueue(ctx, w, e)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	n, err := q.Length(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryEnqueueRanksDistinctForLateArrivals(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	w := testWindow(1, time.Hour, 2*time.Hour)

	// A caller that spent longer waiting on the slot lock reaches the
	// queue after a later-enrolled caller.  The earlier enrollment sorts
	// it to the head for promotion, but the rank it is told must still be
	// fresh, not the one already handed out.
	rank, err := q.Enqueue(ctx, w, testEntry(2, 1, w, 200*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = q.Enqueue(ctx, w, testEntry(1, 1, w, 100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	// Promotion order still follows enrollment time.
	e, err := q.PromoteNext(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, uint64(1), e.UserID)
}

func TestMemoryPromoteNextPopsInOrder(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	w := testWindow(1, time.Hour, 2*time.Hour)

	// Enqueued out of enrollment order on purpose.
	_, err := q.Enqueue(ctx, w, testEntry(2, 1, w, 2*time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, w, testEntry(1, 1, w, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, w, testEntry(3, 1, w, 3*time.Second))
	require.NoError(t, err)

	for _, want := range []uint64{1, 2, 3} {
		e, err := q.PromoteNext(ctx, w)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, want, e.UserID)
	}

	e, err := q.PromoteNext(ctx, w)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryRankForUserAcrossZoneQueues(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	morning := testWindow(1, time.Hour, 2*time.Hour)
	evening := testWindow(1, 8*time.Hour, 9*time.Hour)
	otherZone := testWindow(2, time.Hour, 2*time.Hour)

	_, err := q.Enqueue(ctx, morning, testEntry(10, 1, morning, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, evening, testEntry(11, 1, evening, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, evening, testEntry(12, 1, evening, 2*time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, otherZone, testEntry(12, 2, otherZone, time.Second))
	require.NoError(t, err)

	rank, at, err := q.RankForUser(ctx, 1, 12)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, 2, rank)
	assert.Equal(t, evening.Key(), at.Key())

	rank, at, err = q.RankForUser(ctx, 1, 99)
	require.NoError(t, err)
	assert.Zero(t, rank)
	assert.Nil(t, at)
}

func TestMemoryRankForUserPrefersEarliestEndingWindow(t *testing.T) {
	ctx := context.Background()
	early := testWindow(1, time.Hour, 2*time.Hour)
	late := testWindow(1, 8*time.Hour, 9*time.Hour)

	// Repeat to flush out any map-iteration order dependence.
	for i := 0; i < 20; i++ {
		q := NewMemory()
		_, err := q.Enqueue(ctx, late, testEntry(5, 1, late, time.Second))
		require.NoError(t, err)
		_, err = q.Enqueue(ctx, early, testEntry(5, 1, early, 2*time.Second))
		require.NoError(t, err)

		rank, w, err := q.RankForUser(ctx, 1, 5)
		require.NoError(t, err)
		require.NotNil(t, w)
		assert.Equal(t, 1, rank)
		assert.Equal(t, early.Key(), w.Key())
	}
}

func TestMemoryWithdrawUser(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	w := testWindow(1, time.Hour, 2*time.Hour)

	_, err := q.Enqueue(ctx, w, testEntry(1, 1, w, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, w, testEntry(2, 1, w, 2*time.Second))
	require.NoError(t, err)

	removed, err := q.WithdrawUser(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	// User 2 moves up to the head.
	rank, _, err := q.RankForUser(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	removed, err = q.WithdrawUser(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryPurgeExpired(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()
	past := testWindow(1, -2*time.Hour, -time.Hour)
	future := testWindow(1, time.Hour, 2*time.Hour)

	_, err := q.Enqueue(ctx, past, testEntry(1, 1, past, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, future, testEntry(2, 1, future, time.Second))
	require.NoError(t, err)

	require.NoError(t, q.PurgeExpired(ctx, baseTime))

	n, err := q.Length(ctx, past)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.Length(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemberCodecRoundTrip(t *testing.T) {
	w := testWindow(3, time.Hour, 2*time.Hour)
	e := testEntry(42, 3, w, 1500*time.Millisecond)

	got, err := decodeMember(encodeMember(e), e.EnrolledAt.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, e.UserID, got.UserID)
	assert.Equal(t, e.ZoneID, got.ZoneID)
	assert.True(t, got.Start.Equal(e.Start))
	assert.True(t, got.End.Equal(e.End))
	assert.True(t, got.EnrolledAt.Equal(e.EnrolledAt))

	_, err = decodeMember("42|3|broken", 0)
	assert.Error(t, err)
}
