package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kamuit/internal/config"
	"kamuit/internal/logging"
	"kamuit/internal/maps"
	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/matching"
	"kamuit/internal/modules/ride"
	"kamuit/internal/storage/memory"
	"kamuit/internal/types"
)

// minutesRouter maps a driver's origin longitude to a detour in minutes.
type minutesRouter map[float64]int

func (m minutesRouter) Route(_ context.Context, origin, _ types.Point) (maps.Route, error) {
	minutes, ok := m[origin.Lng]
	if !ok {
		return maps.Route{}, maps.ErrRouting
	}
	return maps.Route{DurationS: minutes * 60, DistanceM: minutes * 400}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (n *recordingNotifier) NotifyDriverAssigned(_ context.Context, token string, _ ride.Ride) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens = append(n.tokens, token)
	return nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	svc      *matching.Service
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, router maps.Router) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), clock: &fakeClock{now: t0}, notifier: &recordingNotifier{}}
	cfg := config.MatchingConfig{ScoringConcurrency: 4, FallbackTimeout: 30 * time.Second}
	f.svc = matching.NewService(f.store, router, nil, f.notifier, cfg, logging.Discard(), matching.WithClock(f.clock.Now))
	return f
}

// addDriver onboards a driver positioned at longitude key.
func (f *fixture) addDriver(t *testing.T, id types.ID, key float64, maxDetour int) {
	t.Helper()
	p := &driver.Profile{
		UserID:           id,
		Capacity:         4,
		MaxDetourMinutes: maxDetour,
		Position:         &types.Point{Lat: 37.0, Lng: key},
		DeviceToken:      "token-" + string(id),
	}
	if err := f.store.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("add driver: %v", err)
	}
}

func (f *fixture) addRide(t *testing.T, id types.ID) {
	t.Helper()
	r := &ride.Ride{
		ID:        id,
		RiderID:   "rider-" + id,
		Pickup:    types.Place{Point: types.Point{Lat: 37.1, Lng: 0}},
		Status:    ride.StatusRequested,
		CreatedAt: t0,
	}
	if err := f.store.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("add ride: %v", err)
	}
}

func (f *fixture) ride(t *testing.T, id types.ID) *ride.Ride {
	t.Helper()
	r, err := f.store.GetRide(context.Background(), id)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if !r.BindingValid() {
		t.Fatalf("driver binding invariant broken: status=%s driver=%v", r.Status, r.DriverID)
	}
	return r
}

func outcomes(t *testing.T, f *fixture, rideID types.ID) map[types.ID]matching.Outcome {
	t.Helper()
	recs, err := f.svc.Scores(context.Background(), rideID)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	out := make(map[types.ID]matching.Outcome, len(recs))
	for _, r := range recs {
		out[r.DriverID] = r.Outcome
	}
	return out
}

func TestAssign_ChoosesWinnerAndWritesAuditTrail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 12, 2: 7, 3: 20, 4: 9})
	f.addDriver(t, "a", 1, 15)
	f.addDriver(t, "b", 2, 10)
	f.addDriver(t, "c", 3, 25)
	f.addDriver(t, "d", 4, 8)
	f.addRide(t, "r1")

	a, err := f.svc.Assign(ctx, "r1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.DriverID != "b" || a.DetourMinutes() != 7 || a.Candidates != 4 {
		t.Fatalf("unexpected assignment: %+v", a)
	}

	r := f.ride(t, "r1")
	if r.Status != ride.StatusAccepted || *r.DriverID != "b" || r.AcceptedAt == nil || !r.AcceptedAt.Equal(t0) {
		t.Fatalf("ride not bound: %+v", r)
	}

	got := outcomes(t, f, "r1")
	want := map[types.ID]matching.Outcome{
		"a": matching.OutcomeNotChosen,
		"b": matching.OutcomeChosen,
		"c": matching.OutcomeNotChosen,
		"d": matching.OutcomeNotChosen,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), got)
	}
	for id, o := range want {
		if got[id] != o {
			t.Fatalf("driver %s: expected %s, got %s", id, o, got[id])
		}
	}
	if len(f.notifier.tokens) != 1 || f.notifier.tokens[0] != "token-b" {
		t.Fatalf("expected one push to token-b, got %v", f.notifier.tokens)
	}
}

func TestAssign_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 5})
	f.addDriver(t, "a", 1, 10)
	f.addRide(t, "r1")

	if _, err := f.svc.Assign(ctx, "missing"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected ride not found, got %v", err)
	}
	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.Assign(ctx, "r1"); !errors.Is(err, matching.ErrRideNotAssignable) {
		t.Fatalf("expected not assignable on accepted ride, got %v", err)
	}
}

func TestAssign_NoAvailableCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 5})
	f.addRide(t, "r1")

	if _, err := f.svc.Assign(ctx, "r1"); !errors.Is(err, matching.ErrNoAvailableCandidates) {
		t.Fatalf("expected no candidates with no drivers, got %v", err)
	}

	// A driver without GPS is not a candidate.
	if err := f.store.CreateProfile(ctx, &driver.Profile{UserID: "nogps", MaxDetourMinutes: 10}); err != nil {
		t.Fatalf("add driver: %v", err)
	}
	if _, err := f.svc.Assign(ctx, "r1"); !errors.Is(err, matching.ErrNoAvailableCandidates) {
		t.Fatalf("expected no candidates with only gps-less drivers, got %v", err)
	}
	if r := f.ride(t, "r1"); r.Status != ride.StatusRequested || r.StatusVersion != 0 {
		t.Fatalf("failed pass must not mutate the ride: %+v", r)
	}
}

func TestAssign_BusyDriverExcluded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 2, 2: 6})
	f.addDriver(t, "fast", 1, 10)
	f.addDriver(t, "slow", 2, 10)
	f.addRide(t, "r1")
	f.addRide(t, "r2")

	first, err := f.svc.Assign(ctx, "r1")
	if err != nil || first.DriverID != "fast" {
		t.Fatalf("first assign: %+v %v", first, err)
	}
	second, err := f.svc.Assign(ctx, "r2")
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if second.DriverID != "slow" {
		t.Fatalf("busy driver was reused: %+v", second)
	}

	f.addRide(t, "r3")
	if _, err := f.svc.Assign(ctx, "r3"); !errors.Is(err, matching.ErrNoAvailableCandidates) {
		t.Fatalf("expected no candidates when all drivers are busy, got %v", err)
	}
}

func TestAssign_NoSuitableDriverHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 30, 2: 45})
	f.addDriver(t, "a", 1, 10)
	f.addDriver(t, "b", 2, 10)
	f.addDriver(t, "unroutable", 99, 10)
	f.addRide(t, "r1")

	_, err := f.svc.Assign(ctx, "r1")
	if !errors.Is(err, matching.ErrNoSuitableDriver) {
		t.Fatalf("expected no suitable driver, got %v", err)
	}
	if r := f.ride(t, "r1"); r.Status != ride.StatusRequested || r.StatusVersion != 0 {
		t.Fatalf("ride mutated: %+v", r)
	}
	if recs := outcomes(t, f, "r1"); len(recs) != 0 {
		t.Fatalf("no records expected without a winner, got %v", recs)
	}
}

func TestAssign_ConcurrentExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3, 2: 4, 3: 5})
	f.addDriver(t, "a", 1, 10)
	f.addDriver(t, "b", 2, 10)
	f.addDriver(t, "c", 3, 10)
	f.addRide(t, "r1")

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Assign(ctx, "r1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, matching.ErrRideNotAssignable) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}

	chosen := 0
	for _, o := range outcomes(t, f, "r1") {
		if o == matching.OutcomeChosen {
			chosen++
		}
	}
	if chosen != 1 {
		t.Fatalf("expected one chosen record, got %d", chosen)
	}
	if r := f.ride(t, "r1"); r.Status != ride.StatusAccepted {
		t.Fatalf("expected accepted, got %s", r.Status)
	}
}

// slowRouter holds every route call long enough for concurrent passes to
// score the same pool before either commits.
type slowRouter struct {
	minutesRouter
	delay time.Duration
}

func (s slowRouter) Route(ctx context.Context, origin, dest types.Point) (maps.Route, error) {
	time.Sleep(s.delay)
	return s.minutesRouter.Route(ctx, origin, dest)
}

func assignBoth(f *fixture, rideIDs ...types.ID) map[types.ID]error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[types.ID]error, len(rideIDs))
	)
	for _, id := range rideIDs {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			_, err := f.svc.Assign(context.Background(), id)
			mu.Lock()
			errs[id] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return errs
}

func TestAssign_ConcurrentRidesNeverShareDriver(t *testing.T) {
	f := newFixture(t, slowRouter{minutesRouter: minutesRouter{1: 3}, delay: 20 * time.Millisecond})
	f.addDriver(t, "only", 1, 10)
	f.addRide(t, "r1")
	f.addRide(t, "r2")

	errs := assignBoth(f, "r1", "r2")

	winners, bound := 0, 0
	for id, err := range errs {
		r := f.ride(t, id)
		if r.AssignedTo("only") {
			bound++
		}
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, matching.ErrNoAvailableCandidates) && !errors.Is(err, matching.ErrDriverUnavailable) {
			t.Fatalf("ride %s: unexpected error: %v", id, err)
		}
		if r.Status != ride.StatusRequested || r.StatusVersion != 0 {
			t.Fatalf("losing ride %s mutated: %+v", id, r)
		}
		if recs := outcomes(t, f, id); len(recs) != 0 {
			t.Fatalf("losing ride %s has score records: %v", id, recs)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one assigned ride, got %d (%v)", winners, errs)
	}
	if bound != 1 {
		t.Fatalf("rides bound to driver only: %d", bound)
	}
}

func TestAssign_ConcurrentRidesFallBackToNextDriver(t *testing.T) {
	f := newFixture(t, slowRouter{minutesRouter: minutesRouter{1: 2, 2: 5}, delay: 20 * time.Millisecond})
	f.addDriver(t, "near", 1, 10)
	f.addDriver(t, "far", 2, 10)
	f.addRide(t, "r1")
	f.addRide(t, "r2")

	for id, err := range assignBoth(f, "r1", "r2") {
		if err != nil {
			t.Fatalf("ride %s: %v", id, err)
		}
	}
	r1, r2 := f.ride(t, "r1"), f.ride(t, "r2")
	if *r1.DriverID == *r2.DriverID {
		t.Fatalf("both rides bound to %s", *r1.DriverID)
	}
	for _, r := range []*ride.Ride{r1, r2} {
		chosen := 0
		for _, o := range outcomes(t, f, r.ID) {
			if o == matching.OutcomeChosen {
				chosen++
			}
		}
		if chosen != 1 {
			t.Fatalf("ride %s: expected one chosen record, got %d", r.ID, chosen)
		}
	}
}

func TestCommitAssignment_RejectsBoundDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3})
	f.addDriver(t, "only", 1, 10)
	f.addRide(t, "r1")
	f.addRide(t, "r2")
	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("assign r1: %v", err)
	}

	r2 := f.ride(t, "r2")
	driverID := types.ID("only")
	r2.Status, r2.DriverID, r2.StatusVersion = ride.StatusAccepted, &driverID, 1
	ok, err := f.store.CommitAssignment(ctx, r2, 0, nil)
	if ok || !errors.Is(err, matching.ErrDriverUnavailable) {
		t.Fatalf("expected ErrDriverUnavailable, got ok=%v err=%v", ok, err)
	}
	if got := f.ride(t, "r2"); got.Status != ride.StatusRequested || got.DriverID != nil {
		t.Fatalf("r2 mutated: %+v", got)
	}
}

func TestCheckFallback_WaitingThenRevert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3})
	f.addDriver(t, "a", 1, 10)
	f.addRide(t, "r1")

	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	before := f.ride(t, "r1")

	f.clock.Set(t0.Add(10 * time.Second))
	res, err := f.svc.CheckFallback(ctx, "r1", 30*time.Second)
	if err != nil {
		t.Fatalf("check at T+10s: %v", err)
	}
	if res.Status != matching.FallbackWaiting {
		t.Fatalf("expected still waiting, got %s", res.Status)
	}
	if after := f.ride(t, "r1"); after.StatusVersion != before.StatusVersion || after.Status != ride.StatusAccepted {
		t.Fatalf("waiting check mutated the ride: %+v", after)
	}

	f.clock.Set(t0.Add(45 * time.Second))
	res, err = f.svc.CheckFallback(ctx, "r1", 30*time.Second)
	if err != nil {
		t.Fatalf("check at T+45s: %v", err)
	}
	if res.Status != matching.FallbackReverted || res.DriverID != "a" {
		t.Fatalf("expected revert releasing a, got %+v", res)
	}
	r := f.ride(t, "r1")
	if r.Status != ride.StatusRequested || r.DriverID != nil || r.FallbackCount != 1 || !r.CreatedAt.Equal(t0) {
		t.Fatalf("unexpected ride after revert: %+v", r)
	}
	if got := outcomes(t, f, "r1")["a"]; got != matching.OutcomeFallbackInvalidated {
		t.Fatalf("expected chosen record invalidated, got %s", got)
	}

	if _, err := f.svc.CheckFallback(ctx, "r1", 30*time.Second); !errors.Is(err, matching.ErrNoActiveAssignment) {
		t.Fatalf("second check should find no active assignment, got %v", err)
	}
	recs, _ := f.svc.Scores(ctx, "r1")
	if len(recs) != 1 || recs[0].Outcome != matching.OutcomeFallbackInvalidated {
		t.Fatalf("record should be invalidated exactly once: %+v", recs)
	}

	// The ride can be matched again.
	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("re-assign after revert: %v", err)
	}
	if got := outcomes(t, f, "r1"); len(got) != 1 {
		t.Fatalf("unexpected outcomes after re-assign: %v", got)
	}
	recs, _ = f.svc.Scores(ctx, "r1")
	if len(recs) != 2 || recs[0].Outcome != matching.OutcomeFallbackInvalidated || recs[1].Outcome != matching.OutcomeChosen {
		t.Fatalf("expected invalidated then chosen, got %+v", recs)
	}
}

func TestCheckFallback_ConcurrentSingleRevert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3})
	f.addDriver(t, "a", 1, 10)
	f.addRide(t, "r1")
	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	f.clock.Set(t0.Add(time.Minute))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	reverted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.CheckFallback(ctx, "r1", 30*time.Second)
			if err == nil && res.Status == matching.FallbackReverted {
				reverted <- struct{}{}
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	close(reverted)

	for err := range results {
		if err != nil && !errors.Is(err, matching.ErrNoActiveAssignment) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := len(reverted); n != 1 {
		t.Fatalf("expected exactly one revert, got %d", n)
	}
	if r := f.ride(t, "r1"); r.FallbackCount != 1 {
		t.Fatalf("expected fallback count 1, got %d", r.FallbackCount)
	}
}

func TestCheckFallback_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3})
	f.addDriver(t, "a", 1, 10)
	f.addRide(t, "r1")

	if _, err := f.svc.CheckFallback(ctx, "r1", time.Second); !errors.Is(err, matching.ErrNoActiveAssignment) {
		t.Fatalf("expected no active assignment on requested ride, got %v", err)
	}
	if _, err := f.svc.CheckFallback(ctx, "missing", time.Second); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := f.svc.Assign(ctx, "r1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	f.clock.Set(t0.Add(20 * time.Second))
	res, err := f.svc.CheckFallback(ctx, "r1", 0)
	if err != nil || res.Status != matching.FallbackWaiting {
		t.Fatalf("zero timeout should default to 30s and wait at 20s: %+v %v", res, err)
	}
	f.clock.Set(t0.Add(31 * time.Second))
	res, err = f.svc.CheckFallback(ctx, "r1", 0)
	if err != nil || res.Status != matching.FallbackReverted {
		t.Fatalf("zero timeout should default to 30s and revert at 31s: %+v %v", res, err)
	}
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, minutesRouter{1: 3, 2: 4})
	f.addDriver(t, "a", 1, 10)
	f.addDriver(t, "b", 2, 10)
	f.addRide(t, "old")
	f.addRide(t, "fresh")

	if _, err := f.svc.Assign(ctx, "old"); err != nil {
		t.Fatalf("assign old: %v", err)
	}
	f.clock.Set(t0.Add(40 * time.Second))
	if _, err := f.svc.Assign(ctx, "fresh"); err != nil {
		t.Fatalf("assign fresh: %v", err)
	}

	f.clock.Set(t0.Add(45 * time.Second))
	n, err := f.svc.SweepStale(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one revert, got %d", n)
	}
	if r := f.ride(t, "old"); r.Status != ride.StatusRequested {
		t.Fatalf("old ride should be requested, got %s", r.Status)
	}
	if r := f.ride(t, "fresh"); r.Status != ride.StatusAccepted {
		t.Fatalf("fresh ride should stay accepted, got %s", r.Status)
	}
}
