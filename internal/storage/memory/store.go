// README: In-memory implementation of every module repository; used when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/location"
	"kamuit/internal/modules/matching"
	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

// Store keeps all state behind one mutex, so every compare-and-set below is
// atomic the same way a single-row transaction is in Postgres.
type Store struct {
	mu        sync.RWMutex
	rides     map[types.ID]ride.Ride
	profiles  map[types.ID]driver.Profile
	scores    map[types.ID][]matching.ScoreRecord
	snapshots map[types.ID][]location.Snapshot
}

var (
	_ ride.Repository     = (*Store)(nil)
	_ driver.Repository   = (*Store)(nil)
	_ location.Repository = (*Store)(nil)
	_ matching.Repository = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		rides:     make(map[types.ID]ride.Ride),
		profiles:  make(map[types.ID]driver.Profile),
		scores:    make(map[types.ID][]matching.ScoreRecord),
		snapshots: make(map[types.ID][]location.Snapshot),
	}
}

// Rides

func (s *Store) CreateRide(_ context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return fmt.Errorf("ride %s already exists", r.ID)
	}
	s.rides[r.ID] = cloneRide(*r)
	return nil
}

func (s *Store) GetRide(_ context.Context, id types.ID) (*ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	c := cloneRide(r)
	return &c, nil
}

func (s *Store) UpdateRide(_ context.Context, r *ride.Ride, from ride.Status, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casRide(r, from, version), nil
}

func (s *Store) casRide(r *ride.Ride, from ride.Status, version int) bool {
	cur, ok := s.rides[r.ID]
	if !ok || cur.Status != from || cur.StatusVersion != version {
		return false
	}
	r.StatusVersion = version + 1
	s.rides[r.ID] = cloneRide(*r)
	return true
}

func (s *Store) HasActiveRide(_ context.Context, riderID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rides {
		if r.RiderID == riderID && !r.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListRidesByRider(_ context.Context, riderID types.ID) ([]ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ride.Ride
	for _, r := range s.rides {
		if r.RiderID == riderID {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListRidesByDriver(_ context.Context, driverID types.ID, statuses ...ride.Status) ([]ride.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[ride.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []ride.Ride
	for _, r := range s.rides {
		if !want[r.Status] {
			continue
		}
		if r.AssignedTo(driverID) || (r.CompletedBy != nil && *r.CompletedBy == driverID) {
			out = append(out, cloneRide(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RideStats(_ context.Context) (ride.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := ride.Stats{ByStatus: make(map[ride.Status]int)}
	active := make(map[types.ID]struct{})
	for _, r := range s.rides {
		stats.Total++
		stats.ByStatus[r.Status]++
		if r.Status.Bound() && r.DriverID != nil {
			active[*r.DriverID] = struct{}{}
		}
	}
	stats.ActiveDrivers = len(active)
	return stats, nil
}

func (s *Store) ListAcceptedBefore(_ context.Context, cutoff time.Time) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []ride.Ride
	for _, r := range s.rides {
		if r.Status == ride.StatusAccepted && r.AcceptedAt != nil && r.AcceptedAt.Before(cutoff) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].AcceptedAt.Equal(*stale[j].AcceptedAt) {
			return stale[i].AcceptedAt.Before(*stale[j].AcceptedAt)
		}
		return stale[i].ID < stale[j].ID
	})
	ids := make([]types.ID, len(stale))
	for i, r := range stale {
		ids[i] = r.ID
	}
	return ids, nil
}

// Driver profiles

func (s *Store) CreateProfile(_ context.Context, p *driver.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return driver.ErrAlreadyOnboarded
	}
	s.profiles[p.UserID] = cloneProfile(*p)
	return nil
}

func (s *Store) GetProfile(_ context.Context, id types.ID) (*driver.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	c := cloneProfile(p)
	return &c, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]driver.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]driver.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) UpdatePosition(_ context.Context, id types.ID, pos types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePosition(id, pos, at)
}

func (s *Store) updatePosition(id types.ID, pos types.Point, at time.Time) error {
	p, ok := s.profiles[id]
	if !ok {
		return driver.ErrNotFound
	}
	p.Position = &types.Point{Lat: pos.Lat, Lng: pos.Lng}
	p.UpdatedAt = at
	s.profiles[id] = p
	return nil
}

// Location snapshots

func (s *Store) RecordSnapshot(_ context.Context, snap *location.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[snap.RideID]; !ok {
		return ride.ErrNotFound
	}
	if err := s.updatePosition(snap.DriverID, snap.Position, snap.RecordedAt); err != nil {
		return err
	}
	s.snapshots[snap.RideID] = append(s.snapshots[snap.RideID], *snap)
	return nil
}

func (s *Store) LatestSnapshot(_ context.Context, rideID types.ID) (*location.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.snapshots[rideID]
	if len(snaps) == 0 {
		return nil, location.ErrNoLocation
	}
	latest := snaps[0]
	for _, sn := range snaps[1:] {
		if !sn.RecordedAt.Before(latest.RecordedAt) {
			latest = sn
		}
	}
	return &latest, nil
}

// Matching

func (s *Store) BusyDriverIDs(_ context.Context) (map[types.ID]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	busy := make(map[types.ID]struct{})
	for _, r := range s.rides {
		if r.Status.Bound() && r.DriverID != nil {
			busy[*r.DriverID] = struct{}{}
		}
	}
	return busy, nil
}

func (s *Store) CommitAssignment(_ context.Context, r *ride.Ride, version int, records []matching.ScoreRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rides[r.ID]; !ok || cur.Status != ride.StatusRequested || cur.StatusVersion != version {
		return false, nil
	}
	if r.DriverID != nil && s.driverBoundElsewhere(*r.DriverID, r.ID) {
		return false, matching.ErrDriverUnavailable
	}
	if !s.casRide(r, ride.StatusRequested, version) {
		return false, nil
	}
	s.scores[r.ID] = append(s.scores[r.ID], records...)
	return true, nil
}

func (s *Store) driverBoundElsewhere(driverID, rideID types.ID) bool {
	for id, other := range s.rides {
		if id != rideID && other.Status.Bound() && other.AssignedTo(driverID) {
			return true
		}
	}
	return false
}

func (s *Store) RevertAssignment(_ context.Context, r *ride.Ride, version int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.casRide(r, ride.StatusAccepted, version) {
		return false, nil
	}
	recs := s.scores[r.ID]
	for i := range recs {
		if recs[i].Outcome == matching.OutcomeChosen {
			recs[i].Outcome = matching.OutcomeFallbackInvalidated
		}
	}
	return true, nil
}

func (s *Store) ListScoreRecords(_ context.Context, rideID types.ID) ([]matching.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]matching.ScoreRecord(nil), s.scores[rideID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.Before(out[j].AssignedAt)
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out, nil
}

func cloneRide(r ride.Ride) ride.Ride {
	r.DriverID = cloneID(r.DriverID)
	r.CompletedBy = cloneID(r.CompletedBy)
	r.AcceptedAt = cloneTime(r.AcceptedAt)
	r.StartedAt = cloneTime(r.StartedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	r.CancelledAt = cloneTime(r.CancelledAt)
	return r
}

func cloneProfile(p driver.Profile) driver.Profile {
	if p.Position != nil {
		pos := *p.Position
		p.Position = &pos
	}
	p.LicenseExpiry = cloneTime(p.LicenseExpiry)
	return p
}

func cloneID(id *types.ID) *types.ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
