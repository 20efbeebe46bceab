package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

// ZoneRepo provides read access to parking zones.  Zone creation and
// editing belong to the owner-management flows outside this service; the
// arbitration core only ever reads zone existence and availability.
type ZoneRepo struct {
	db *sql.DB
}

// NewZoneRepo returns a new ZoneRepo bound to the given database.
func NewZoneRepo(db *sql.DB) *ZoneRepo { return &ZoneRepo{db: db} }

// GetByID returns a single zone.  It returns ErrZoneNotFound when the zone
// does not exist.
func (r *ZoneRepo) GetByID(ctx context.Context, zoneID uint64) (*model.ParkingZone, error) {
	const q = `SELECT id, owner_id, name, status, created_at FROM parking_zones WHERE id = ?`
	var z model.ParkingZone
	err := r.db.QueryRowContext(ctx, q, zoneID).Scan(&z.ID, &z.OwnerID, &z.Name, &z.Status, &z.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrZoneNotFound
		}
		return nil, err
	}
	return &z, nil
}
