package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

// ReservationRepo provides data access to the reservations table.  It owns
// the availability check that upholds the single-occupancy invariant: for a
// given zone, no two reservations with status PENDING or CONFIRMED may have
// overlapping [starts_at, ends_at) ranges.  All timestamps are stored and
// compared in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle for callers that need to coordinate
// transactions spanning multiple repositories.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// statusPlaceholders renders an IN clause placeholder list plus its args
// for the given statuses.
func statusPlaceholders(statuses []string) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = s
	}
	return strings.Join(marks, ","), args
}

// CreateIfFree atomically re-validates availability and inserts a new
// PENDING reservation for the window in rec.  The whole check-then-insert
// runs in one transaction that first takes the zone row FOR UPDATE, so two
// transactions for overlapping-but-differently-keyed windows cannot both
// pass the overlap check even though they hold different coordinator locks.
//
// On success the generated ID and timestamps are populated on rec and
// (nil, nil) is returned.  When an active reservation already overlaps the
// window, that reservation is returned and nothing is written.  It returns
// ErrZoneNotFound or ErrZoneUnavailable when the zone cannot take
// reservations at all.
func (r *ReservationRepo) CreateIfFree(ctx context.Context, rec *model.Reservation) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the zone row for the duration of the transaction.  This is the
	// serialization point for all writers touching the zone's reservations.
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM parking_zones WHERE id = ? FOR UPDATE`, rec.ZoneID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrZoneNotFound
		}
		return nil, err
	}
	if status != model.ZoneAvailable {
		return nil, ErrZoneUnavailable
	}

	// Re-read for overlap under the lock: a.start < b.end && b.start < a.end.
	in, args := statusPlaceholders(model.ActiveStatuses)
	q := `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	      FROM reservations
	      WHERE zone_id = ? AND status IN (` + in + `) AND starts_at < ? AND ? < ends_at
	      ORDER BY starts_at
	      LIMIT 1`
	qargs := append([]interface{}{rec.ZoneID}, args...)
	qargs = append(qargs, rec.EndsAt.UTC(), rec.StartsAt.UTC())
	var blocker model.Reservation
	err = tx.QueryRowContext(ctx, q, qargs...).Scan(
		&blocker.ID, &blocker.ZoneID, &blocker.UserID,
		&blocker.StartsAt, &blocker.EndsAt, &blocker.Status,
		&blocker.CreatedAt, &blocker.UpdatedAt,
	)
	switch {
	case err == nil:
		// Occupied; report the blocking reservation without writing.
		if cerr := tx.Commit(); cerr != nil {
			return nil, cerr
		}
		committed = true
		return &blocker, nil
	case errors.Is(err, sql.ErrNoRows):
		// Window is free, fall through to the insert.
	default:
		return nil, err
	}

	const ins = `INSERT INTO reservations (zone_id, user_id, starts_at, ends_at, status) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins, rec.ZoneID, rec.UserID, rec.StartsAt.UTC(), rec.EndsAt.UTC(), model.StatusPending)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	rec.ID = uint64(id)
	rec.Status = model.StatusPending
	// Query back the full row to populate timestamps and defaults.
	const sel = `SELECT created_at, updated_at FROM reservations WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, rec.ID).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return nil, nil
}

// GetByID returns a single reservation or ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	const q = `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	           FROM reservations WHERE id = ?`
	var rec model.Reservation
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.ZoneID, &rec.UserID, &rec.StartsAt, &rec.EndsAt,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// TransitionStatus performs a compare-and-set state transition: the row is
// updated to the target status only when its current status is in from.
// It reports whether a row actually changed, which callers use both for
// idempotence (confirming an already-CONFIRMED reservation changes
// nothing) and to detect that a concurrent actor won the transition.
func (r *ReservationRepo) TransitionStatus(ctx context.Context, id uint64, from []string, to string) (bool, error) {
	in, args := statusPlaceholders(from)
	q := `UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status IN (` + in + `)`
	qargs := append([]interface{}{to, id}, args...)
	res, err := r.db.ExecContext(ctx, q, qargs...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindOverlapping returns the active reservations on a zone that intersect
// the given half-open range, ordered by start time.  It is a plain read –
// arbitration decisions never rely on it, only the non-binding
// availability probe does.
func (r *ReservationRepo) FindOverlapping(ctx context.Context, zoneID uint64, start, end time.Time) ([]model.Reservation, error) {
	in, args := statusPlaceholders(model.ActiveStatuses)
	q := `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	      FROM reservations
	      WHERE zone_id = ? AND status IN (` + in + `) AND starts_at < ? AND ? < ends_at
	      ORDER BY starts_at`
	qargs := append([]interface{}{zoneID}, args...)
	qargs = append(qargs, end.UTC(), start.UTC())
	rows, err := r.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var rec model.Reservation
		if err := rows.Scan(
			&rec.ID, &rec.ZoneID, &rec.UserID, &rec.StartsAt, &rec.EndsAt,
			&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpiredPending returns reservations still PENDING whose creation time
// is at or before the cutoff.  The expiry sweeper cancels these and frees
// their windows.
func (r *ReservationRepo) ListExpiredPending(ctx context.Context, before time.Time) ([]model.Reservation, error) {
	const q = `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	           FROM reservations
	           WHERE status = ? AND created_at <= ?
	           ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, model.StatusPending, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var rec model.Reservation
		if err := rows.Scan(
			&rec.ID, &rec.ZoneID, &rec.UserID, &rec.StartsAt, &rec.EndsAt,
			&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListElapsedConfirmed returns CONFIRMED reservations whose end time has
// passed.  The expiry sweeper closes these out as COMPLETED one by one so
// each transition emits its domain event.
func (r *ReservationRepo) ListElapsedConfirmed(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	const q = `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	           FROM reservations
	           WHERE status = ? AND ends_at <= ?
	           ORDER BY ends_at`
	rows, err := r.db.QueryContext(ctx, q, model.StatusConfirmed, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var rec model.Reservation
		if err := rows.Scan(
			&rec.ID, &rec.ZoneID, &rec.UserID, &rec.StartsAt, &rec.EndsAt,
			&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser returns all reservations created by the given user, newest
// first.  When none exist an empty slice is returned.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	const q = `SELECT id, zone_id, user_id, starts_at, ends_at, status, created_at, updated_at
	           FROM reservations
	           WHERE user_id = ?
	           ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var rec model.Reservation
		if err := rows.Scan(
			&rec.ID, &rec.ZoneID, &rec.UserID, &rec.StartsAt, &rec.EndsAt,
			&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
