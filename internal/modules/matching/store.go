// README: Matching store backed by PostgreSQL; assignment and revert run in one transaction per ride.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

// errLostRace rolls back a transaction whose ride compare-and-set matched no row.
var errLostRace = errors.New("ride changed concurrently")

// uniqueViolation is raised by rides_active_driver_uniq when a driver would hold two active rides.
const uniqueViolation = "23505"

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

func (s *Store) ListAcceptedBefore(ctx context.Context, cutoff time.Time) ([]types.ID, error) {
	return s.rides.ListAcceptedBefore(ctx, cutoff)
}

func (s *Store) BusyDriverIDs(ctx context.Context) (map[types.ID]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT driver_id FROM rides
		WHERE status IN ('accepted','in_progress') AND driver_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	busy := make(map[types.ID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		busy[types.ID(id)] = struct{}{}
	}
	return busy, rows.Err()
}

func (s *Store) CommitAssignment(ctx context.Context, r *ride.Ride, version int, records []ScoreRecord) (bool, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if r.DriverID != nil {
			if err := claimDriver(ctx, tx, *r.DriverID, r.ID); err != nil {
				return err
			}
		}
		ok, err := ride.NewStore(tx).UpdateRide(ctx, r, ride.StatusRequested, version)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDriverUnavailable
		}
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				INSERT INTO detour_scores (id, ride_id, driver_id, detour_seconds, outcome, assigned_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				string(rec.ID), string(rec.RideID), string(rec.DriverID),
				rec.DetourSeconds, string(rec.Outcome), rec.AssignedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert score records: %w", err)
		}
		return nil
	})
	return settle(r, version, err)
}

// claimDriver locks the driver's profile row for the rest of the transaction,
// so concurrent commits naming the same driver run one after the other, then
// checks that no other active ride holds the driver.
func claimDriver(ctx context.Context, tx pgx.Tx, driverID, rideID types.ID) error {
	var locked string
	err := tx.QueryRow(ctx,
		`SELECT user_id FROM driver_profiles WHERE user_id = $1 FOR UPDATE`, string(driverID),
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDriverUnavailable
	}
	if err != nil {
		return fmt.Errorf("lock driver %s: %w", driverID, err)
	}
	var bound bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE driver_id = $1 AND id <> $2 AND status IN ('accepted','in_progress'))`,
		string(driverID), string(rideID),
	).Scan(&bound)
	if err != nil {
		return fmt.Errorf("check driver %s: %w", driverID, err)
	}
	if bound {
		return ErrDriverUnavailable
	}
	return nil
}

func (s *Store) RevertAssignment(ctx context.Context, r *ride.Ride, version int) (bool, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := ride.NewStore(tx).UpdateRide(ctx, r, ride.StatusAccepted, version)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		_, err = tx.Exec(ctx, `
			UPDATE detour_scores SET outcome = $1
			WHERE ride_id = $2 AND outcome = $3`,
			string(OutcomeFallbackInvalidated), string(r.ID), string(OutcomeChosen),
		)
		return err
	})
	return settle(r, version, err)
}

func (s *Store) ListScoreRecords(ctx context.Context, rideID types.ID) ([]ScoreRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ride_id, driver_id, detour_seconds, outcome, assigned_at
		FROM detour_scores
		WHERE ride_id = $1
		ORDER BY assigned_at, driver_id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoreRecord
	for rows.Next() {
		var (
			rec                   ScoreRecord
			id, rID, dID, outcome string
		)
		if err := rows.Scan(&id, &rID, &dID, &rec.DetourSeconds, &outcome, &rec.AssignedAt); err != nil {
			return nil, err
		}
		rec.ID, rec.RideID, rec.DriverID, rec.Outcome = types.ID(id), types.ID(rID), types.ID(dID), Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// settle maps a transaction result onto the (applied, error) contract and
// undoes the version bump UpdateRide made on r if the transaction rolled back.
func settle(r *ride.Ride, version int, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	r.StatusVersion = version
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	return false, err
}
