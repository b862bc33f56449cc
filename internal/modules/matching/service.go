// README: Assignment coordinator: filter, score, then commit the winner and audit trail atomically.
package matching

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kamuit/internal/config"
	"kamuit/internal/events"
	"kamuit/internal/maps"
	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/ride"
	"kamuit/internal/observability"
	"kamuit/internal/types"
)

var (
	ErrRideNotAssignable     = errors.New("ride is not assignable")
	ErrNoAvailableCandidates = errors.New("no available drivers with GPS")
	ErrNoSuitableDriver      = errors.New("no suitable driver found")
	ErrNoActiveAssignment    = errors.New("no active assignment for ride")
	// ErrDriverUnavailable means the winner was bound to another ride before the commit landed.
	ErrDriverUnavailable = errors.New("driver already bound to another ride")
)

// maxAssignAttempts bounds how often a pass is rerun after its winner was taken.
const maxAssignAttempts = 3

// Repository is the persistence port for matching. CommitAssignment and
// RevertAssignment are compare-and-set on the ride's status_version and must
// apply their ride and score-record writes together or not at all.
// CommitAssignment returns ErrDriverUnavailable when the ride's new driver is
// already bound to another accepted or in_progress ride.
type Repository interface {
	GetRide(ctx context.Context, id types.ID) (*ride.Ride, error)
	ListProfiles(ctx context.Context) ([]driver.Profile, error)
	// BusyDriverIDs returns drivers bound to an accepted or in_progress ride.
	BusyDriverIDs(ctx context.Context) (map[types.ID]struct{}, error)
	CommitAssignment(ctx context.Context, r *ride.Ride, version int, records []ScoreRecord) (bool, error)
	RevertAssignment(ctx context.Context, r *ride.Ride, version int) (bool, error)
	ListScoreRecords(ctx context.Context, rideID types.ID) ([]ScoreRecord, error)
	ListAcceptedBefore(ctx context.Context, cutoff time.Time) ([]types.ID, error)
}

// Notifier tells a driver about a new assignment.
type Notifier interface {
	NotifyDriverAssigned(ctx context.Context, deviceToken string, r ride.Ride) error
}

type Service struct {
	repo     Repository
	scorer   *Scorer
	events   events.Publisher
	notifier Notifier
	cfg      config.MatchingConfig
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for acceptance timestamps and fallback ageing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, router maps.Router, pub events.Publisher, notifier Notifier, cfg config.MatchingConfig, logger *slog.Logger, opts ...Option) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	s := &Service{
		repo:     repo,
		scorer:   NewScorer(router, cfg.ScoringConcurrency, logger),
		events:   pub,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assign picks the requested ride's best driver and commits the match.
// Concurrent calls for one ride yield one success; the rest get ErrRideNotAssignable.
func (s *Service) Assign(ctx context.Context, rideID types.ID) (*Assignment, error) {
	start := time.Now()
	a, err := s.assign(ctx, rideID)
	observability.AssignmentLatency.Observe(time.Since(start).Seconds())
	observability.AssignmentsTotal.WithLabelValues(assignOutcome(err)).Inc()
	return a, err
}

// assign reruns the pass when another ride claimed the winner first; the
// rerun sees that driver as busy.
func (s *Service) assign(ctx context.Context, rideID types.ID) (*Assignment, error) {
	for attempt := 1; ; attempt++ {
		a, err := s.assignOnce(ctx, rideID)
		if !errors.Is(err, ErrDriverUnavailable) || attempt == maxAssignAttempts {
			return a, err
		}
		s.logger.Info("winner taken by another ride, rescoring", "ride_id", rideID, "attempt", attempt)
	}
}

func (s *Service) assignOnce(ctx context.Context, rideID types.ID) (*Assignment, error) {
	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != ride.StatusRequested {
		return nil, ErrRideNotAssignable
	}

	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	busy, err := s.repo.BusyDriverIDs(ctx)
	if err != nil {
		return nil, err
	}
	candidates := FilterCandidates(profiles, busy)
	if len(candidates) == 0 {
		return nil, ErrNoAvailableCandidates
	}
	observability.CandidatesEvaluated.Observe(float64(len(candidates)))

	res, err := s.scorer.Score(ctx, r.Pickup.Point, candidates)
	if err != nil {
		return nil, err
	}
	if res.Winner == nil {
		s.logger.Info("no suitable driver", "ride_id", rideID, "evaluated", len(res.Evaluations), "skipped", len(res.Skipped))
		return nil, ErrNoSuitableDriver
	}

	at := s.now().UTC()
	next, err := ride.Transition(*r, ride.Event{Kind: ride.EventAssign, ActorID: res.Winner.DriverID, At: at})
	if err != nil {
		return nil, ErrRideNotAssignable
	}
	records := buildRecords(rideID, res, at)
	ok, err := s.repo.CommitAssignment(ctx, &next, r.StatusVersion, records)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRideNotAssignable
	}

	a := &Assignment{
		Ride:          next,
		DriverID:      res.Winner.DriverID,
		DetourSeconds: res.Winner.DetourSeconds,
		Candidates:    len(candidates),
		Records:       records,
	}
	s.logger.Info("driver assigned", "ride_id", rideID, "driver_id", a.DriverID, "detour_s", a.DetourSeconds, "candidates", a.Candidates)
	s.afterAssign(ctx, a, candidates)
	return a, nil
}

func (s *Service) afterAssign(ctx context.Context, a *Assignment, candidates []driver.Profile) {
	observability.RideTransitions.WithLabelValues(string(ride.StatusAccepted)).Inc()
	s.publish(ctx, events.TypeRideAssigned, a.Ride.ID, events.RideAssigned{
		RideID:        string(a.Ride.ID),
		DriverID:      string(a.DriverID),
		DetourSeconds: a.DetourSeconds,
		Candidates:    a.Candidates,
	})
	if s.notifier == nil {
		return
	}
	for _, c := range candidates {
		if c.UserID != a.DriverID || c.DeviceToken == "" {
			continue
		}
		if err := s.notifier.NotifyDriverAssigned(ctx, c.DeviceToken, a.Ride); err != nil {
			s.logger.Warn("notify driver failed", "ride_id", a.Ride.ID, "driver_id", a.DriverID, "err", err)
		}
	}
}

// buildRecords emits one record per evaluated candidate, winner marked chosen.
func buildRecords(rideID types.ID, res Result, at time.Time) []ScoreRecord {
	records := make([]ScoreRecord, 0, len(res.Evaluations))
	for _, e := range res.Evaluations {
		outcome := OutcomeNotChosen
		if res.Winner != nil && e.DriverID == res.Winner.DriverID {
			outcome = OutcomeChosen
		}
		records = append(records, ScoreRecord{
			ID:            types.ID(uuid.NewString()),
			RideID:        rideID,
			DriverID:      e.DriverID,
			DetourSeconds: e.DetourSeconds,
			Outcome:       outcome,
			AssignedAt:    at,
		})
	}
	return records
}

// Scores returns the ride's audit trail in evaluation order.
func (s *Service) Scores(ctx context.Context, rideID types.ID) ([]ScoreRecord, error) {
	if _, err := s.repo.GetRide(ctx, rideID); err != nil {
		return nil, err
	}
	return s.repo.ListScoreRecords(ctx, rideID)
}

func (s *Service) publish(ctx context.Context, typ string, rideID types.ID, payload any) {
	err := s.events.Publish(ctx, events.Event{
		Type:       typ,
		Key:        string(rideID),
		OccurredAt: s.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		s.logger.Warn("publish matching event failed", "type", typ, "ride_id", rideID, "err", err)
	}
}

func assignOutcome(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case errors.Is(err, ErrNoAvailableCandidates):
		return "no_candidates"
	case errors.Is(err, ErrNoSuitableDriver):
		return "no_suitable_driver"
	case errors.Is(err, ErrRideNotAssignable):
		return "not_assignable"
	case errors.Is(err, ErrDriverUnavailable):
		return "driver_unavailable"
	default:
		return "error"
	}
}
