// README: Ride service creates rides and applies lifecycle transitions with optimistic locking.
package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kamuit/internal/events"
	"kamuit/internal/maps"
	"kamuit/internal/observability"
	"kamuit/internal/types"
)

var (
	ErrNotFound   = errors.New("ride not found")
	ErrConflict   = errors.New("ride state conflict")
	ErrActiveRide = errors.New("rider has an active ride")
	ErrBadRequest = errors.New("bad request")
)

type Pricer interface {
	Estimate(distanceM int) types.Money
}

type Service struct {
	repo   Repository
	router maps.Router
	pricer Pricer
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, router maps.Router, pricer Pricer, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:   repo,
		router: router,
		pricer: pricer,
		events: pub,
		logger: logger,
		now:    time.Now,
	}
}

type CreateCommand struct {
	RiderID types.ID
	Pickup  types.Place
	Dropoff types.Place
}

// Create routes pickup to dropoff, prices the trip and stores a requested ride.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.RiderID == "" {
		return nil, fmt.Errorf("%w: rider_id is required", ErrBadRequest)
	}
	active, err := s.repo.HasActiveRide(ctx, cmd.RiderID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveRide
	}

	route, err := s.router.Route(ctx, cmd.Pickup.Point, cmd.Dropoff.Point)
	if err != nil {
		return nil, fmt.Errorf("route ride: %w", err)
	}

	r := &Ride{
		ID:        types.ID(uuid.NewString()),
		RiderID:   cmd.RiderID,
		Pickup:    cmd.Pickup,
		Dropoff:   cmd.Dropoff,
		DistanceM: route.DistanceM,
		DurationS: route.DurationS,
		Summary:   route.Summary,
		Status:    StatusRequested,
		CreatedAt: s.now().UTC(),
	}
	if s.pricer != nil {
		r.FareEstimate = s.pricer.Estimate(route.DistanceM)
	}
	if err := s.repo.CreateRide(ctx, r); err != nil {
		return nil, err
	}

	observability.RideTransitions.WithLabelValues(string(StatusRequested)).Inc()
	s.publish(ctx, events.TypeRideRequested, r.ID, events.RideRequested{
		RideID:       string(r.ID),
		RiderID:      string(r.RiderID),
		Pickup:       events.LatLng{Lat: r.Pickup.Lat, Lng: r.Pickup.Lng},
		Dropoff:      events.LatLng{Lat: r.Dropoff.Lat, Lng: r.Dropoff.Lng},
		FareEstimate: r.FareEstimate.Amount,
	})
	s.logger.Info("ride requested", "ride_id", r.ID, "rider_id", r.RiderID, "distance_m", r.DistanceM, "fare", r.FareEstimate.Amount)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.repo.GetRide(ctx, id)
}

// Start moves an accepted ride to in_progress. Only the assigned driver may start it.
func (s *Service) Start(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.apply(ctx, rideID, Event{Kind: EventStart, ActorID: driverID})
}

// Complete finishes an in-progress ride. Only the assigned driver may complete it.
func (s *Service) Complete(ctx context.Context, rideID, driverID types.ID) (*Ride, error) {
	return s.apply(ctx, rideID, Event{Kind: EventComplete, ActorID: driverID})
}

// Cancel is allowed for the ride's rider while the ride is requested or accepted.
func (s *Service) Cancel(ctx context.Context, rideID, riderID types.ID) (*Ride, error) {
	return s.apply(ctx, rideID, Event{Kind: EventCancel, ActorID: riderID})
}

func (s *Service) apply(ctx context.Context, rideID types.ID, ev Event) (*Ride, error) {
	cur, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	next, err := Transition(*cur, ev)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateRide(ctx, &next, cur.Status, cur.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	observability.RideTransitions.WithLabelValues(string(next.Status)).Inc()
	payload := events.RideTransitioned{RideID: string(next.ID), Status: string(next.Status)}
	if cur.DriverID != nil {
		payload.DriverID = string(*cur.DriverID)
	}
	s.publish(ctx, eventType(next.Status), next.ID, payload)
	s.logger.Info("ride transitioned", "ride_id", next.ID, "from", cur.Status, "to", next.Status, "actor", ev.ActorID)
	return &next, nil
}

// History lists a rider's rides, newest first.
func (s *Service) History(ctx context.Context, riderID types.ID) ([]Ride, error) {
	return s.repo.ListRidesByRider(ctx, riderID)
}

// DriverDashboard returns the driver's active ride, if any, and completed rides newest first.
func (s *Service) DriverDashboard(ctx context.Context, driverID types.ID) (Dashboard, error) {
	var d Dashboard
	active, err := s.repo.ListRidesByDriver(ctx, driverID, StatusAccepted, StatusInProgress)
	if err != nil {
		return d, err
	}
	if len(active) > 0 {
		d.Active = &active[0]
	}
	d.Completed, err = s.repo.ListRidesByDriver(ctx, driverID, StatusCompleted)
	return d, err
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.RideStats(ctx)
}

func (s *Service) publish(ctx context.Context, typ string, rideID types.ID, payload any) {
	err := s.events.Publish(ctx, events.Event{
		Type:       typ,
		Key:        string(rideID),
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		s.logger.Warn("publish ride event failed", "type", typ, "ride_id", rideID, "err", err)
	}
}

func eventType(s Status) string {
	switch s {
	case StatusInProgress:
		return events.TypeRideStarted
	case StatusCompleted:
		return events.TypeRideCompleted
	case StatusCancelled:
		return events.TypeRideCancelled
	default:
		return "ride." + string(s)
	}
}
