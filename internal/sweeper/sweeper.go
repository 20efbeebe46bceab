// Package sweeper runs the periodic expiry process: it cancels PENDING
// reservations whose payment deadline passed, promotes waiting callers
// into the freed windows, purges waiting queues whose target window has
// elapsed, and completes confirmed reservations whose end time has passed.
// The sweep is idempotent and lock-guarded so it is safe under
// at-least-once concurrent invocation across processes.
package sweeper

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/parking-10easy/ParkEZ-sub002/internal/arbiter"
	"github.com/parking-10easy/ParkEZ-sub002/internal/clock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/config"
	"github.com/parking-10easy/ParkEZ-sub002/internal/lock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
	"github.com/parking-10easy/ParkEZ-sub002/internal/waitqueue"
)

// sweepLockKey guards the whole sweep so at most one instance performs it
// per interval in a multi-process deployment.
const sweepLockKey = "resv:sweep"

// sweepLockWait is intentionally tiny: losing the race just means another
// instance is already sweeping and this pass can be skipped.
const sweepLockWait = 50 * time.Millisecond

// Store is the slice of the slot store the sweeper reads.
type Store interface {
	ListExpiredPending(ctx context.Context, before time.Time) ([]model.Reservation, error)
	ListElapsedConfirmed(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// Sweeper owns the periodic sweep loop.
type Sweeper struct {
	store Store
	arb   *arbiter.Arbiter
	waits waitqueue.Queue
	locks lock.Coordinator
	clock clock.Clock
	cfg   config.SweeperConfig

	stop chan struct{}
	done chan struct{}
}

// New constructs a Sweeper.  All dependencies must be non-nil.
func New(store Store, arb *arbiter.Arbiter, waits waitqueue.Queue, locks lock.Coordinator, clk clock.Clock, cfg config.SweeperConfig) *Sweeper {
	if store == nil || arb == nil || waits == nil || locks == nil || clk == nil {
		panic("nil dependency passed to sweeper.New")
	}
	return &Sweeper{
		store: store,
		arb:   arb,
		waits: waits,
		locks: locks,
		clock: clk,
		cfg:   cfg,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.  The loop runs until
// Stop is called or ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight sweep, if any.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep performs one pass.  Both steps re-evaluate their predicates from
// durable state, so a crash mid-sweep is repaired by the next run.  A
// failure on one reservation is isolated: the remaining candidates are
// still processed.
func (s *Sweeper) Sweep(ctx context.Context) {
	tok, err := s.locks.Acquire(ctx, sweepLockKey, sweepLockWait, s.cfg.Interval)
	if errors.Is(err, lock.ErrAcquireTimeout) {
		// Another instance is sweeping this interval.
		return
	}
	if err != nil {
		log.Printf("sweeper: acquire sweep lock: %v", err)
		return
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), tok); err != nil {
			log.Printf("sweeper: release sweep lock: %v", err)
		}
	}()

	now := s.clock.Now()

	// Step A: cancel stale PENDING reservations and promote their queues.
	cutoff := now.Add(-s.cfg.PaymentTimeout)
	expired, err := s.store.ListExpiredPending(ctx, cutoff)
	if err != nil {
		log.Printf("sweeper: list expired pending: %v", err)
	} else {
		for _, rec := range expired {
			if err := s.arb.Expire(ctx, rec); err != nil {
				log.Printf("sweeper: expire reservation %d: %v", rec.ID, err)
			}
		}
		if len(expired) > 0 {
			log.Printf("sweeper: expired %d pending reservation(s)", len(expired))
		}
	}

	// Step B: purge waiting queues whose target window has elapsed.
	if err := s.waits.PurgeExpired(ctx, now); err != nil {
		log.Printf("sweeper: purge waiting queues: %v", err)
	}

	// Step C: close out confirmed reservations past their end time, one
	// transition (and one event) per reservation.
	elapsed, err := s.store.ListElapsedConfirmed(ctx, now)
	if err != nil {
		log.Printf("sweeper: list elapsed confirmed: %v", err)
		return
	}
	for _, rec := range elapsed {
		if err := s.arb.Complete(ctx, rec); err != nil {
			log.Printf("sweeper: complete reservation %d: %v", rec.ID, err)
		}
	}
	if len(elapsed) > 0 {
		log.Printf("sweeper: completed %d reservation(s)", len(elapsed))
	}
}
