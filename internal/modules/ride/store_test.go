package ride_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kamuit/internal/modules/ride"
	"kamuit/internal/storage/pgtest"
	"kamuit/internal/types"
)

func newStoredRide(t *testing.T, store *ride.Store, id types.ID) *ride.Ride {
	t.Helper()
	r := &ride.Ride{
		ID:           id,
		RiderID:      "rider-" + id,
		Pickup:       pickup,
		Dropoff:      dropoff,
		DistanceM:    8612,
		DurationS:    1260,
		Summary:      "Fell St",
		FareEstimate: types.Money{Amount: 1291, Currency: "USD"},
		Status:       ride.StatusRequested,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := store.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := ride.NewStore(pgtest.Open(t))
	r := newStoredRide(t, store, "rt-1")

	got, err := store.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RiderID != r.RiderID || got.Pickup != r.Pickup || got.Dropoff != r.Dropoff ||
		got.FareEstimate != r.FareEstimate || !got.CreatedAt.Equal(r.CreatedAt) || got.DriverID != nil {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, r)
	}

	if _, err := store.GetRide(ctx, "nope"); !errors.Is(err, ride.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_UpdateRideCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := ride.NewStore(pgtest.Open(t))
	r := newStoredRide(t, store, "cas-1")

	next, err := ride.Transition(*r, ride.Event{Kind: ride.EventAssign, ActorID: "d1", At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	ok, err := store.UpdateRide(ctx, &next, ride.StatusRequested, r.StatusVersion)
	if err != nil || !ok {
		t.Fatalf("first update: ok=%v err=%v", ok, err)
	}
	if next.StatusVersion != r.StatusVersion+1 {
		t.Fatalf("version not bumped: %d", next.StatusVersion)
	}

	stale := next
	ok, err = store.UpdateRide(ctx, &stale, ride.StatusRequested, r.StatusVersion)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if ok {
		t.Fatalf("stale version must not apply")
	}

	got, _ := store.GetRide(ctx, r.ID)
	if got.Status != ride.StatusAccepted || got.DriverID == nil || *got.DriverID != "d1" || got.AcceptedAt == nil {
		t.Fatalf("unexpected stored ride: %+v", got)
	}
}

func TestStore_ConcurrentUpdateOneWinner(t *testing.T) {
	ctx := context.Background()
	store := ride.NewStore(pgtest.Open(t))
	r := newStoredRide(t, store, "race-1")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next, err := ride.Transition(*r, ride.Event{Kind: ride.EventAssign, ActorID: types.ID("d" + string(rune('a'+i)))})
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			ok, err := store.UpdateRide(ctx, &next, ride.StatusRequested, r.StatusVersion)
			if err != nil {
				t.Errorf("update: %v", err)
				return
			}
			results <- ok
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestStore_DriverBindingConstraint(t *testing.T) {
	ctx := context.Background()
	store := ride.NewStore(pgtest.Open(t))
	r := newStoredRide(t, store, "check-1")

	bad := *r
	bad.Status = ride.StatusAccepted
	ok, err := store.UpdateRide(ctx, &bad, ride.StatusRequested, r.StatusVersion)
	if err == nil && ok {
		t.Fatalf("accepted ride without driver should violate rides_driver_binding")
	}
}

func TestStore_DashboardQueries(t *testing.T) {
	ctx := context.Background()
	store := ride.NewStore(pgtest.Open(t))
	r := newStoredRide(t, store, "dash-1")

	cur := *r
	for _, ev := range []ride.Event{
		{Kind: ride.EventAssign, ActorID: "d1"},
		{Kind: ride.EventStart, ActorID: "d1"},
		{Kind: ride.EventComplete, ActorID: "d1"},
	} {
		next, err := ride.Transition(cur, ev)
		if err != nil {
			t.Fatalf("%s: %v", ev.Kind, err)
		}
		ok, err := store.UpdateRide(ctx, &next, cur.Status, cur.StatusVersion)
		if err != nil || !ok {
			t.Fatalf("%s update: ok=%v err=%v", ev.Kind, ok, err)
		}
		cur = next
	}

	done, err := store.ListRidesByDriver(ctx, "d1", ride.StatusCompleted)
	if err != nil {
		t.Fatalf("list by driver: %v", err)
	}
	if len(done) != 1 || done[0].ID != r.ID || done[0].CompletedBy == nil {
		t.Fatalf("expected completed ride for d1, got %+v", done)
	}

	stats, err := store.RideStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus[ride.StatusCompleted] != 1 || stats.ActiveDrivers != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
