// README: Ride store backed by PostgreSQL; status changes are compare-and-set on status_version.
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"kamuit/internal/infra"
	"kamuit/internal/types"
)

// Repository is the persistence surface the ride service needs.
type Repository interface {
	CreateRide(ctx context.Context, r *Ride) error
	GetRide(ctx context.Context, id types.ID) (*Ride, error)
	// UpdateRide writes r if the stored row still has status from and version.
	// It reports false when another writer got there first.
	UpdateRide(ctx context.Context, r *Ride, from Status, version int) (bool, error)
	HasActiveRide(ctx context.Context, riderID types.ID) (bool, error)
	ListRidesByRider(ctx context.Context, riderID types.ID) ([]Ride, error)
	ListRidesByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]Ride, error)
	RideStats(ctx context.Context) (Stats, error)
}

type Store struct {
	db infra.DBTX
}

// NewStore accepts a pool or a transaction.
func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, rider_id, driver_id,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	distance_m, duration_s, summary,
	fare_amount, fare_currency,
	status, status_version, fallback_count,
	created_at, accepted_at, started_at, completed_at, cancelled_at,
	completed_by`

func (s *Store) CreateRide(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20, $21, $22,
			$23
		)`,
		string(r.ID), string(r.RiderID), idPtr(r.DriverID),
		r.Pickup.Lat, r.Pickup.Lng, r.Pickup.Address,
		r.Dropoff.Lat, r.Dropoff.Lng, r.Dropoff.Address,
		r.DistanceM, r.DurationS, r.Summary,
		r.FareEstimate.Amount, r.FareEstimate.Currency,
		string(r.Status), r.StatusVersion, r.FallbackCount,
		r.CreatedAt, r.AcceptedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
		idPtr(r.CompletedBy),
	)
	return err
}

func (s *Store) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) UpdateRide(ctx context.Context, r *Ride, from Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			driver_id = $2,
			fallback_count = $3,
			accepted_at = $4,
			started_at = $5,
			completed_at = $6,
			cancelled_at = $7,
			completed_by = $8
		WHERE id = $9 AND status = $10 AND status_version = $11`,
		string(r.Status),
		idPtr(r.DriverID),
		r.FallbackCount,
		r.AcceptedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
		idPtr(r.CompletedBy),
		string(r.ID),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	r.StatusVersion = version + 1
	return true, nil
}

func (s *Store) HasActiveRide(ctx context.Context, riderID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE rider_id = $1
			  AND status IN ('requested','accepted','in_progress')
		)`, string(riderID),
	).Scan(&exists)
	return exists, err
}

func (s *Store) ListRidesByRider(ctx context.Context, riderID types.ID) ([]Ride, error) {
	return s.list(ctx, `SELECT `+rideColumns+` FROM rides WHERE rider_id = $1 ORDER BY created_at DESC, id`, string(riderID))
}

func (s *Store) ListRidesByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]Ride, error) {
	st := make([]string, len(statuses))
	for i, v := range statuses {
		st[i] = string(v)
	}
	return s.list(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE (driver_id = $1 OR completed_by = $1) AND status = ANY($2)
		ORDER BY completed_at DESC NULLS LAST, created_at DESC, id`,
		string(driverID), st,
	)
}

func (s *Store) RideStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM rides GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		stats.ByStatus[Status(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT driver_id) FROM rides
		WHERE status IN ('accepted','in_progress')`,
	).Scan(&stats.ActiveDrivers)
	return stats, err
}

// ListAcceptedBefore returns rides that have been waiting in accepted since before cutoff.
func (s *Store) ListAcceptedBefore(ctx context.Context, cutoff time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM rides
		WHERE status = 'accepted' AND accepted_at < $1
		ORDER BY accepted_at, id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) list(ctx context.Context, sql string, args ...any) ([]Ride, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var (
		r                     Ride
		id, riderID, status   string
		driverID, completedBy *string
	)
	err := row.Scan(
		&id, &riderID, &driverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Pickup.Address,
		&r.Dropoff.Lat, &r.Dropoff.Lng, &r.Dropoff.Address,
		&r.DistanceM, &r.DurationS, &r.Summary,
		&r.FareEstimate.Amount, &r.FareEstimate.Currency,
		&status, &r.StatusVersion, &r.FallbackCount,
		&r.CreatedAt, &r.AcceptedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
		&completedBy,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.RiderID = types.ID(riderID)
	r.Status = Status(status)
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	if completedBy != nil {
		c := types.ID(*completedBy)
		r.CompletedBy = &c
	}
	return &r, nil
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
