// Package arbiter contains the orchestration core that decides, under
// concurrent demand, who books a parking zone time window and what happens
// to everyone else.  One arbitration attempt acquires the window's lock,
// re-validates availability against the durable store, creates a PENDING
// reservation or routes the caller to the waiting queue, and always
// releases the lock regardless of outcome.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/parking-10easy/ParkEZ-sub002/internal/clock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/lock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
	"github.com/parking-10easy/ParkEZ-sub002/internal/queue"
	"github.com/parking-10easy/ParkEZ-sub002/internal/repository"
	"github.com/parking-10easy/ParkEZ-sub002/internal/waitqueue"
)

// SlotStore is the durable source of truth the arbiter decides against.
// CreateIfFree must perform its availability re-check and insert
// atomically; see repository.ReservationRepo.
type SlotStore interface {
	CreateIfFree(ctx context.Context, rec *model.Reservation) (*model.Reservation, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	TransitionStatus(ctx context.Context, id uint64, from []string, to string) (bool, error)
}

// EventSink receives a domain event after every arbitration outcome and
// state transition.  Publish failures are logged and otherwise ignored;
// event delivery is best-effort by design of the external alarm contract.
type EventSink interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, queue.ReservationEvent) error { return nil }

// Arbiter coordinates the lock coordinator, the slot store and the waiting
// queue for every reservation-affecting operation.
type Arbiter struct {
	store  SlotStore
	locks  lock.Coordinator
	waits  waitqueue.Queue
	events EventSink
	clock  clock.Clock

	acquireWait time.Duration
	lease       time.Duration
	maxDuration time.Duration
}

const (
	defaultAcquireWait = 500 * time.Millisecond
	defaultLease       = 10 * time.Second
	defaultMaxDuration = 24 * time.Hour
)

// New constructs an Arbiter.  store, locks, waits and clk must be non-nil;
// a nil events sink disables event publication.
func New(store SlotStore, locks lock.Coordinator, waits waitqueue.Queue, events EventSink, clk clock.Clock, opts ...Option) *Arbiter {
	if store == nil || locks == nil || waits == nil || clk == nil {
		panic("nil dependency passed to arbiter.New")
	}
	if events == nil {
		events = nopSink{}
	}
	a := &Arbiter{
		store:       store,
		locks:       locks,
		waits:       waits,
		events:      events,
		clock:       clk,
		acquireWait: defaultAcquireWait,
		lease:       defaultLease,
		maxDuration: defaultMaxDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Option customizes an Arbiter.
type Option func(*Arbiter)

// WithAcquireWait overrides how long Reserve waits for the window lock
// before treating the request as contested.
func WithAcquireWait(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.acquireWait = d
		}
	}
}

// WithLease overrides the lock lease duration.
func WithLease(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.lease = d
		}
	}
}

// WithMaxDuration overrides the maximum allowed reservation window length.
func WithMaxDuration(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.maxDuration = d
		}
	}
}

// Reserve runs one arbitration attempt for the given requester and window.
//
// Validation failures reject immediately with no lock taken and no write.
// A lock wait that times out is a contention signal, not an error: the
// caller is queued.  A post-lock overlap (possible across
// differing-but-overlapping keys) queues the caller under the window of
// the blocking reservation.  Infrastructure failures are returned as
// errors and leave no side effect; the caller should retry.
func (a *Arbiter) Reserve(ctx context.Context, userID, zoneID uint64, start, end time.Time) (Outcome, error) {
	now := a.clock.Now()
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) || start.Before(now) || end.Sub(start) > a.maxDuration {
		return rejected(ReasonInvalidRange), nil
	}

	w := model.NewWindow(zoneID, start, end)
	entry := model.WaitingEntry{
		UserID:     userID,
		ZoneID:     zoneID,
		Start:      start,
		End:        end,
		EnrolledAt: now,
	}

	tok, err := a.locks.Acquire(ctx, w.Key(), a.acquireWait, a.lease)
	if errors.Is(err, lock.ErrAcquireTimeout) {
		// Could not get the lock inside the bounded wait: the window is
		// hot.  Queue under the requested key; the contender holding the
		// lock is about to occupy exactly this window.
		return a.enqueue(ctx, w, entry)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve zone %d: %w", zoneID, err)
	}
	defer a.release(ctx, tok)

	rec := &model.Reservation{ZoneID: zoneID, UserID: userID, StartsAt: start, EndsAt: end}
	blocker, err := a.store.CreateIfFree(ctx, rec)
	switch {
	case errors.Is(err, repository.ErrZoneNotFound):
		return rejected(ReasonZoneNotFound), nil
	case errors.Is(err, repository.ErrZoneUnavailable):
		return rejected(ReasonZoneUnavailable), nil
	case err != nil:
		return Outcome{}, fmt.Errorf("reserve zone %d: %w", zoneID, err)
	}
	if blocker == nil {
		a.publish(ctx, *rec, queue.OutcomePending, 0)
		return confirmed(rec.ID), nil
	}

	// An active reservation slipped in despite the lock.  That can only
	// happen across different keys sharing a sub-range; the store's
	// zone-row serialization kept the invariant, so this is contention,
	// not corruption.  Queue the caller under the blocker's window, the
	// one whose cancellation would free them.
	log.Printf("arbiter: overlap under lock zone=%d window=%s blocked_by=%d", zoneID, w.Key(), blocker.ID)
	return a.enqueue(ctx, blocker.Window(), entry)
}

// Confirm applies a successful payment callback: PENDING -> CONFIRMED.
// Confirming an already-CONFIRMED reservation is an idempotent no-op.  It
// returns ErrNotConfirmable when the reservation was canceled before the
// confirmation arrived.
func (a *Arbiter) Confirm(ctx context.Context, reservationID uint64) error {
	changed, err := a.store.TransitionStatus(ctx, reservationID, []string{model.StatusPending}, model.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("confirm reservation %d: %w", reservationID, err)
	}
	rec, err := a.store.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if changed {
		a.publish(ctx, *rec, queue.OutcomeConfirmed, 0)
		return nil
	}
	if rec.Status == model.StatusConfirmed {
		return nil
	}
	return ErrNotConfirmable
}

// FailPayment applies a failed payment callback: PENDING -> CANCELED, then
// promotes the freed window's queue.  Failing an already-CANCELED
// reservation is an idempotent no-op.
func (a *Arbiter) FailPayment(ctx context.Context, reservationID uint64) error {
	changed, err := a.store.TransitionStatus(ctx, reservationID, []string{model.StatusPending}, model.StatusCanceled)
	if err != nil {
		return fmt.Errorf("fail payment %d: %w", reservationID, err)
	}
	// Read after the CAS: a sweep may cancel the reservation between any
	// earlier read and the transition, and a stale PENDING snapshot would
	// turn that benign race into a spurious rejection.
	rec, err := a.store.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if !changed {
		if rec.Status == model.StatusCanceled {
			return nil
		}
		return ErrNotCancelable
	}
	a.publish(ctx, *rec, queue.OutcomeCanceled, 0)
	a.promote(ctx, rec.Window())
	return nil
}

// Cancel applies a requester-initiated cancellation.  Only the owner may
// cancel, and only while the reservation is PENDING or CONFIRMED.  On
// success the freed window's queue is promoted.
func (a *Arbiter) Cancel(ctx context.Context, reservationID, userID uint64, reason string) error {
	rec, err := a.store.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return ErrNotOwner
	}
	changed, err := a.store.TransitionStatus(ctx, reservationID, model.ActiveStatuses, model.StatusCanceled)
	if err != nil {
		return fmt.Errorf("cancel reservation %d: %w", reservationID, err)
	}
	if !changed {
		return ErrNotCancelable
	}
	log.Printf("arbiter: reservation %d canceled by user %d (%s)", reservationID, userID, reason)
	rec.Status = model.StatusCanceled
	a.publish(ctx, *rec, queue.OutcomeCanceled, 0)
	a.promote(ctx, rec.Window())
	return nil
}

// Expire cancels a PENDING reservation whose payment deadline has passed
// and promotes the freed window.  It is called by the expiry sweeper and
// is idempotent: when another sweep instance already won the transition
// there is nothing left to do.
func (a *Arbiter) Expire(ctx context.Context, rec model.Reservation) error {
	changed, err := a.store.TransitionStatus(ctx, rec.ID, []string{model.StatusPending}, model.StatusCanceled)
	if err != nil {
		return fmt.Errorf("expire reservation %d: %w", rec.ID, err)
	}
	if !changed {
		return nil
	}
	rec.Status = model.StatusCanceled
	a.publish(ctx, rec, queue.OutcomeCanceled, 0)
	a.promote(ctx, rec.Window())
	return nil
}

// Complete closes out a CONFIRMED reservation whose end time has passed:
// CONFIRMED -> COMPLETED.  Called by the expiry sweeper and idempotent the
// same way Expire is.  A completed window lies in the past, so no
// promotion follows; queue purging covers its waiters.
func (a *Arbiter) Complete(ctx context.Context, rec model.Reservation) error {
	changed, err := a.store.TransitionStatus(ctx, rec.ID, []string{model.StatusConfirmed}, model.StatusCompleted)
	if err != nil {
		return fmt.Errorf("complete reservation %d: %w", rec.ID, err)
	}
	if !changed {
		return nil
	}
	rec.Status = model.StatusCompleted
	a.publish(ctx, rec, queue.OutcomeCompleted, 0)
	return nil
}

// enqueue parks the entry in the waiting queue of key and reports the
// caller's rank.
func (a *Arbiter) enqueue(ctx context.Context, key model.Window, e model.WaitingEntry) (Outcome, error) {
	rank, err := a.waits.Enqueue(ctx, key, e)
	if err != nil {
		return Outcome{}, fmt.Errorf("enqueue zone %d: %w", e.ZoneID, err)
	}
	a.publish(ctx, model.Reservation{ZoneID: e.ZoneID, UserID: e.UserID, StartsAt: e.Start, EndsAt: e.End}, queue.OutcomeQueued, rank)
	return queued(rank), nil
}

// promote drains the freed window's queue head-first: each head gets one
// fresh arbitration attempt for its own requested window.  The first
// granted entry ends the promotion – one freed slot admits one waiter.  A
// head whose attempt fails again is dropped and the next head is tried,
// bounded by the queue length observed at the start so a concurrent
// enqueue cannot extend the loop.
func (a *Arbiter) promote(ctx context.Context, key model.Window) {
	n, err := a.waits.Length(ctx, key)
	if err != nil {
		log.Printf("arbiter: promote %s: length: %v", key.Key(), err)
		return
	}
	now := a.clock.Now()
	for i := 0; i < n; i++ {
		e, err := a.waits.PromoteNext(ctx, key)
		if err != nil {
			log.Printf("arbiter: promote %s: pop: %v", key.Key(), err)
			return
		}
		if e == nil {
			return
		}
		if !e.Start.After(now) {
			// The waiter's own window already started; it can no longer
			// be granted.  Drop and try the next head.
			log.Printf("arbiter: promote %s: dropping stale entry user=%d", key.Key(), e.UserID)
			continue
		}
		granted, err := a.grant(ctx, *e)
		if err != nil {
			// Transient failure: put the entry back at its original
			// position (the enrollment time is preserved) and let the
			// next sweep retry from durable state.
			if _, qerr := a.waits.Enqueue(ctx, key, *e); qerr != nil {
				log.Printf("arbiter: promote %s: requeue user=%d: %v", key.Key(), e.UserID, qerr)
			}
			log.Printf("arbiter: promote %s: grant user=%d: %v", key.Key(), e.UserID, err)
			return
		}
		if granted {
			return
		}
	}
}

// grant re-runs arbitration for a promoted waiting entry without ever
// re-queuing it; a false return means the entry's window is (still) taken
// and the entry should be dropped.
func (a *Arbiter) grant(ctx context.Context, e model.WaitingEntry) (bool, error) {
	w := e.Window()
	tok, err := a.locks.Acquire(ctx, w.Key(), a.acquireWait, a.lease)
	if errors.Is(err, lock.ErrAcquireTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer a.release(ctx, tok)

	rec := &model.Reservation{ZoneID: e.ZoneID, UserID: e.UserID, StartsAt: e.Start, EndsAt: e.End}
	blocker, err := a.store.CreateIfFree(ctx, rec)
	switch {
	case errors.Is(err, repository.ErrZoneNotFound), errors.Is(err, repository.ErrZoneUnavailable):
		return false, nil
	case err != nil:
		return false, err
	case blocker != nil:
		return false, nil
	}
	a.publish(ctx, *rec, queue.OutcomePending, 0)
	return true, nil
}

// release runs in the guaranteed-cleanup path; the lease is the backstop
// when it fails, so failures are only logged.
func (a *Arbiter) release(ctx context.Context, tok *lock.Token) {
	if err := a.locks.Release(context.WithoutCancel(ctx), tok); err != nil {
		log.Printf("arbiter: release %s: %v", tok.Key, err)
	}
}

func (a *Arbiter) publish(ctx context.Context, rec model.Reservation, outcome string, rank int) {
	ev := queue.ReservationEvent{
		ReservationID: rec.ID,
		UserID:        rec.UserID,
		ZoneID:        rec.ZoneID,
		Outcome:       outcome,
		Rank:          rank,
		StartsAt:      rec.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:        rec.EndsAt.UTC().Format(time.RFC3339),
		OccurredAt:    a.clock.Now().Format(time.RFC3339),
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		log.Printf("arbiter: publish event %s for reservation %d: %v", outcome, rec.ID, err)
	}
}
