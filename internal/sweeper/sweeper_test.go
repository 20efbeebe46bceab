package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parking-10easy/ParkEZ-sub002/internal/arbiter"
	"github.com/parking-10easy/ParkEZ-sub002/internal/clock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/config"
	"github.com/parking-10easy/ParkEZ-sub002/internal/lock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
	"github.com/parking-10easy/ParkEZ-sub002/internal/repository"
	"github.com/parking-10easy/ParkEZ-sub002/internal/waitqueue"
)

// sweepStore backs both the sweeper reads and the arbiter writes so a
// sweep and its promotions observe one consistent state.
type sweepStore struct {
	mu     sync.Mutex
	nextID uint64
	recs   map[uint64]model.Reservation
}

func newSweepStore() *sweepStore {
	return &sweepStore{recs: make(map[uint64]model.Reservation)}
}

func (s *sweepStore) add(rec model.Reservation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.recs[rec.ID] = rec
	return rec.ID
}

func (s *sweepStore) statusOf(id uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[id].Status
}

func (s *sweepStore) CreateIfFree(_ context.Context, rec *model.Reservation) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := rec.Window()
	for _, existing := range s.recs {
		if existing.Status != model.StatusPending && existing.Status != model.StatusConfirmed {
			continue
		}
		if existing.Window().Overlaps(w) {
			blocker := existing
			return &blocker, nil
		}
	}
	s.nextID++
	rec.ID = s.nextID
	rec.Status = model.StatusPending
	s.recs[rec.ID] = *rec
	return nil, nil
}

func (s *sweepStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return &rec, nil
}

func (s *sweepStore) TransitionStatus(_ context.Context, id uint64, from []string, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if rec.Status == f {
			rec.Status = to
			s.recs[id] = rec
			return true, nil
		}
	}
	return false, nil
}

func (s *sweepStore) ListExpiredPending(_ context.Context, before time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, rec := range s.recs {
		if rec.Status == model.StatusPending && !rec.CreatedAt.After(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *sweepStore) ListElapsedConfirmed(_ context.Context, now time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, rec := range s.recs {
		if rec.Status == model.StatusConfirmed && !rec.EndsAt.After(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var sweepNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func sweepCfg() config.SweeperConfig {
	return config.SweeperConfig{
		Interval:       time.Minute,
		PaymentTimeout: 10 * time.Minute,
		MaxDuration:    24 * time.Hour,
	}
}

func newSweepFixture(store *sweepStore, waits waitqueue.Queue, locks lock.Coordinator) *Sweeper {
	arb := arbiter.New(store, locks, waits, nil, clock.NewFixed(sweepNow))
	return New(store, arb, waits, locks, clock.NewFixed(sweepNow), sweepCfg())
}

func TestSweepCancelsStalePendingAndPromotes(t *testing.T) {
	store := newSweepStore()
	waits := waitqueue.NewMemory()
	ctx := context.Background()

	// Payment deadline passed fifteen minutes ago; one waiter queued
	// under the same window.
	start, end := sweepNow.Add(time.Hour), sweepNow.Add(2*time.Hour)
	staleID := store.add(model.Reservation{
		ZoneID: 1, UserID: 10, StartsAt: start, EndsAt: end,
		Status: model.StatusPending, CreatedAt: sweepNow.Add(-15 * time.Minute),
	})
	w := model.NewWindow(1, start, end)
	_, err := waits.Enqueue(ctx, w, model.WaitingEntry{
		UserID: 11, ZoneID: 1, Start: start, End: end, EnrolledAt: sweepNow.Add(-5 * time.Minute),
	})
	require.NoError(t, err)

	newSweepFixture(store, waits, lock.NewMemory()).Sweep(ctx)

	assert.Equal(t, model.StatusCanceled, store.statusOf(staleID))

	store.mu.Lock()
	var promoted *model.Reservation
	for _, rec := range store.recs {
		if rec.UserID == 11 {
			r := rec
			promoted = &r
		}
	}
	store.mu.Unlock()
	require.NotNil(t, promoted, "waiter was not promoted into the freed window")
	assert.Equal(t, model.StatusPending, promoted.Status)

	n, err := waits.Length(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	store := newSweepStore()
	id := store.add(model.Reservation{
		ZoneID: 1, UserID: 10,
		StartsAt: sweepNow.Add(time.Hour), EndsAt: sweepNow.Add(2 * time.Hour),
		Status: model.StatusPending, CreatedAt: sweepNow.Add(-time.Minute),
	})

	newSweepFixture(store, waitqueue.NewMemory(), lock.NewMemory()).Sweep(context.Background())

	assert.Equal(t, model.StatusPending, store.statusOf(id))
}

func TestSweepCompletesElapsedConfirmed(t *testing.T) {
	store := newSweepStore()
	doneID := store.add(model.Reservation{
		ZoneID: 1, UserID: 10,
		StartsAt: sweepNow.Add(-2 * time.Hour), EndsAt: sweepNow.Add(-time.Hour),
		Status: model.StatusConfirmed, CreatedAt: sweepNow.Add(-3 * time.Hour),
	})
	runningID := store.add(model.Reservation{
		ZoneID: 2, UserID: 11,
		StartsAt: sweepNow.Add(-time.Hour), EndsAt: sweepNow.Add(time.Hour),
		Status: model.StatusConfirmed, CreatedAt: sweepNow.Add(-2 * time.Hour),
	})

	newSweepFixture(store, waitqueue.NewMemory(), lock.NewMemory()).Sweep(context.Background())

	assert.Equal(t, model.StatusCompleted, store.statusOf(doneID))
	assert.Equal(t, model.StatusConfirmed, store.statusOf(runningID))
}

func TestSweepPurgesElapsedQueues(t *testing.T) {
	waits := waitqueue.NewMemory()
	ctx := context.Background()
	past := model.NewWindow(1, sweepNow.Add(-2*time.Hour), sweepNow.Add(-time.Hour))
	_, err := waits.Enqueue(ctx, past, model.WaitingEntry{
		UserID: 10, ZoneID: 1, Start: past.Start, End: past.End, EnrolledAt: sweepNow.Add(-3 * time.Hour),
	})
	require.NoError(t, err)

	newSweepFixture(newSweepStore(), waits, lock.NewMemory()).Sweep(ctx)

	n, err := waits.Length(ctx, past)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepSkipsWhenAnotherInstanceHoldsLock(t *testing.T) {
	store := newSweepStore()
	locks := lock.NewMemory()
	ctx := context.Background()

	staleID := store.add(model.Reservation{
		ZoneID: 1, UserID: 10,
		StartsAt: sweepNow.Add(time.Hour), EndsAt: sweepNow.Add(2 * time.Hour),
		Status: model.StatusPending, CreatedAt: sweepNow.Add(-15 * time.Minute),
	})

	tok, err := locks.Acquire(ctx, sweepLockKey, 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer locks.Release(ctx, tok)

	newSweepFixture(store, waitqueue.NewMemory(), locks).Sweep(ctx)

	// The contested sweep did nothing; the holder's sweep will.
	assert.Equal(t, model.StatusPending, store.statusOf(staleID))
}
