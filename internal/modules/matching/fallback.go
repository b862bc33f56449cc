// README: Fallback monitor reverts accepted rides whose driver has not started within the timeout.
package matching

import (
	"context"
	"errors"
	"time"

	"kamuit/internal/events"
	"kamuit/internal/modules/ride"
	"kamuit/internal/observability"
	"kamuit/internal/types"
)

// CheckFallback reports still_waiting while the ride's acceptance is younger
// than timeout; otherwise it releases the driver, reverts the ride to requested
// and invalidates the chosen score record. Only one concurrent check can revert.
func (s *Service) CheckFallback(ctx context.Context, rideID types.ID, timeout time.Duration) (*FallbackResult, error) {
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}
	r, err := s.repo.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != ride.StatusAccepted {
		return nil, ErrNoActiveAssignment
	}

	elapsed := timeout
	if r.AcceptedAt != nil {
		elapsed = s.now().Sub(*r.AcceptedAt)
	}
	if elapsed < timeout {
		return &FallbackResult{Status: FallbackWaiting, RideID: rideID, Elapsed: elapsed, Ride: *r}, nil
	}

	var released types.ID
	if r.DriverID != nil {
		released = *r.DriverID
	}
	next, err := ride.Transition(*r, ride.Event{Kind: ride.EventRevert, At: s.now().UTC()})
	if err != nil {
		return nil, ErrNoActiveAssignment
	}
	ok, err := s.repo.RevertAssignment(ctx, &next, r.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveAssignment
	}

	observability.FallbackReverts.Inc()
	observability.RideTransitions.WithLabelValues(string(ride.StatusRequested)).Inc()
	s.publish(ctx, events.TypeRideReverted, rideID, events.RideReverted{
		RideID:        string(rideID),
		DriverID:      string(released),
		ElapsedS:      elapsed.Seconds(),
		FallbackCount: next.FallbackCount,
	})
	s.logger.Info("assignment reverted", "ride_id", rideID, "driver_id", released, "elapsed", elapsed, "fallback_count", next.FallbackCount)
	return &FallbackResult{
		Status:   FallbackReverted,
		RideID:   rideID,
		Elapsed:  elapsed,
		DriverID: released,
		Ride:     next,
	}, nil
}

// SweepStale runs CheckFallback over every ride accepted longer ago than the
// configured timeout and returns how many were reverted.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	timeout := s.cfg.FallbackTimeout
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}
	ids, err := s.repo.ListAcceptedBefore(ctx, s.now().Add(-timeout))
	if err != nil {
		return 0, err
	}
	reverted := 0
	for _, id := range ids {
		res, err := s.CheckFallback(ctx, id, timeout)
		if errors.Is(err, ErrNoActiveAssignment) {
			continue
		}
		if err != nil {
			s.logger.Error("fallback check failed", "ride_id", id, "err", err)
			continue
		}
		if res.Status == FallbackReverted {
			reverted++
		}
	}
	return reverted, nil
}

// RunFallbackMonitor sweeps on every tick until ctx is done. A zero interval disables it.
func (s *Service) RunFallbackMonitor(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepStale(ctx)
			if err != nil {
				s.logger.Error("fallback sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("fallback sweep reverted rides", "count", n)
			}
		}
	}
}
