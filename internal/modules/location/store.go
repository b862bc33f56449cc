// README: Location store: ride snapshots in Postgres, driver positions via the driver store.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

type Repository interface {
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListProfiles(ctx context.Context) ([]driver.Profile, error)
	UpdatePosition(ctx context.Context, id types.ID, pos types.Point, at time.Time) error
	// RecordSnapshot appends snap and moves the driver's profile position in one step.
	RecordSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, rideID types.ID) (*Snapshot, error)
}

type Store struct {
	pool    *pgxpool.Pool
	rides   *ride.Store
	drivers *driver.Store
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		rides:   ride.NewStore(pool),
		drivers: driver.NewStore(pool),
	}
}

func (s *Store) GetRide(ctx context.Context, id types.ID) (*ride.Ride, error) {
	return s.rides.GetRide(ctx, id)
}

func (s *Store) ListProfiles(ctx context.Context) ([]driver.Profile, error) {
	return s.drivers.ListProfiles(ctx)
}

func (s *Store) UpdatePosition(ctx context.Context, id types.ID, pos types.Point, at time.Time) error {
	return s.drivers.UpdatePosition(ctx, id, pos, at)
}

func (s *Store) RecordSnapshot(ctx context.Context, snap *Snapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO location_snapshots (id, ride_id, driver_id, lat, lng, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(snap.ID), string(snap.RideID), string(snap.DriverID),
			snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
		)
		if err != nil {
			return err
		}
		return driver.NewStore(tx).UpdatePosition(ctx, snap.DriverID, snap.Position, snap.RecordedAt)
	})
}

func (s *Store) LatestSnapshot(ctx context.Context, rideID types.ID) (*Snapshot, error) {
	var (
		snap              Snapshot
		id, rID, driverID string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, ride_id, driver_id, lat, lng, recorded_at
		FROM location_snapshots
		WHERE ride_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, string(rideID),
	).Scan(&id, &rID, &driverID, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLocation
	}
	if err != nil {
		return nil, err
	}
	snap.ID = types.ID(id)
	snap.RideID = types.ID(rID)
	snap.DriverID = types.ID(driverID)
	return &snap, nil
}
