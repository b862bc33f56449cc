// README: Location service handles driver GPS pings, ride tracking and nearby-driver lookups.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kamuit/internal/events"
	"kamuit/internal/types"
)

var (
	ErrInvalidLocation = errors.New("invalid location data")
	ErrDriverMismatch  = errors.New("ride not found or driver mismatch")
	ErrNoLocation      = errors.New("no location found for this ride")
)

const (
	defaultNearbyRadiusKm = 5.0
	defaultNearbyLimit    = 20
)

// Broadcaster receives every ride-bound snapshot after it is stored.
type Broadcaster interface {
	BroadcastSnapshot(snap Snapshot)
}

type Service struct {
	repo        Repository
	geo         GeoIndex
	events      events.Publisher
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithBroadcaster pushes recorded ride snapshots to live subscribers.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// NewService wires the location service. geo may be nil, in which case
// nearby lookups scan driver profiles directly.
func NewService(repo Repository, geo GeoIndex, pub events.Publisher, logger *slog.Logger, opts ...Option) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	s := &Service{repo: repo, geo: geo, events: pub, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReportDriverLocation records a driver's current position for matching.
func (s *Service) ReportDriverLocation(ctx context.Context, driverID types.ID, pos types.Point) error {
	if driverID == "" || !validPoint(pos) {
		return ErrInvalidLocation
	}
	if err := s.repo.UpdatePosition(ctx, driverID, pos, s.now().UTC()); err != nil {
		return err
	}
	s.index(ctx, driverID, pos)
	s.publish(ctx, events.DriverLocation{
		DriverID: string(driverID),
		Position: events.LatLng{Lat: pos.Lat, Lng: pos.Lng},
	})
	return nil
}

// RecordRideLocation stores a ping from the driver currently bound to rideID.
func (s *Service) RecordRideLocation(ctx context.Context, rideID, driverID types.ID, pos types.Point) (*Snapshot, error) {
	if !validPoint(pos) {
		return nil, ErrInvalidLocation
	}
	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !r.AssignedTo(driverID) {
		return nil, ErrDriverMismatch
	}

	snap := &Snapshot{
		ID:         types.ID(uuid.NewString()),
		RideID:     rideID,
		DriverID:   driverID,
		Position:   pos,
		RecordedAt: s.now().UTC(),
	}
	if err := s.repo.RecordSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	s.index(ctx, driverID, pos)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSnapshot(*snap)
	}
	s.publish(ctx, events.DriverLocation{
		DriverID: string(driverID),
		RideID:   string(rideID),
		Position: events.LatLng{Lat: pos.Lat, Lng: pos.Lng},
	})
	return snap, nil
}

func (s *Service) LatestRideLocation(ctx context.Context, rideID types.ID) (*Snapshot, error) {
	return s.repo.LatestSnapshot(ctx, rideID)
}

// NearbyDrivers lists drivers with a known position within radiusKm of center, nearest first.
func (s *Service) NearbyDrivers(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	if !validPoint(center) {
		return nil, ErrInvalidLocation
	}
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRadiusKm
	}
	if limit <= 0 {
		limit = defaultNearbyLimit
	}
	if s.geo != nil {
		found, err := s.geo.NearbyDrivers(ctx, center, radiusKm, limit)
		if err == nil {
			return found, nil
		}
		s.logger.Warn("geo index lookup failed, scanning profiles", "err", err)
	}

	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	var out []NearbyDriver
	for _, p := range profiles {
		if p.Position == nil {
			continue
		}
		d := distanceKm(center, *p.Position)
		if d > radiusKm {
			continue
		}
		out = append(out, NearbyDriver{DriverID: p.UserID, Position: *p.Position, DistanceKm: d})
	}
	sortByDistance(out, func(n NearbyDriver) float64 { return n.DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) index(ctx context.Context, driverID types.ID, pos types.Point) {
	if s.geo == nil {
		return
	}
	if err := s.geo.SetDriverPosition(ctx, driverID, pos); err != nil {
		s.logger.Warn("geo index update failed", "driver_id", driverID, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, payload events.DriverLocation) {
	key := payload.RideID
	if key == "" {
		key = payload.DriverID
	}
	err := s.events.Publish(ctx, events.Event{
		Type:       events.TypeDriverLocation,
		Key:        key,
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		s.logger.Warn("publish location event failed", "driver_id", payload.DriverID, "err", err)
	}
}
