// README: Driver profile store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"kamuit/internal/infra"
	"kamuit/internal/types"
)

type Repository interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id types.ID) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	UpdatePosition(ctx context.Context, id types.ID, pos types.Point, at time.Time) error
}

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const profileColumns = `
	user_id, name, license_number, license_expiry, vehicle_type, vehicle_plate,
	capacity, current_load, max_detour_minutes, current_lat, current_lng,
	device_token, created_at, updated_at`

const uniqueViolation = "23505"

func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	var lat, lng *float64
	if p.Position != nil {
		lat, lng = &p.Position.Lat, &p.Position.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(p.UserID), p.Name, p.LicenseNumber, p.LicenseExpiry, p.VehicleType, p.VehiclePlate,
		p.Capacity, p.CurrentLoad, p.MaxDetourMinutes, lat, lng,
		p.DeviceToken, p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyOnboarded
	}
	return err
}

func (s *Store) GetProfile(ctx context.Context, id types.ID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM driver_profiles WHERE user_id = $1`, string(id))
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProfiles returns every profile ordered by user id.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx, `SELECT `+profileColumns+` FROM driver_profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePosition(ctx context.Context, id types.ID, pos types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_profiles
		SET current_lat = $1, current_lng = $2, updated_at = $3
		WHERE user_id = $4`,
		pos.Lat, pos.Lng, at, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p        Profile
		id       string
		lat, lng *float64
	)
	err := row.Scan(
		&id, &p.Name, &p.LicenseNumber, &p.LicenseExpiry, &p.VehicleType, &p.VehiclePlate,
		&p.Capacity, &p.CurrentLoad, &p.MaxDetourMinutes, &lat, &lng,
		&p.DeviceToken, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UserID = types.ID(id)
	if lat != nil && lng != nil {
		p.Position = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &p, nil
}
