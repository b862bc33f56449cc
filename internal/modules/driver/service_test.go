package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kamuit/internal/logging"
	"kamuit/internal/modules/driver"
	"kamuit/internal/storage/memory"
	"kamuit/internal/storage/pgtest"
	"kamuit/internal/types"
)

func TestOnboard_Defaults(t *testing.T) {
	svc := driver.NewService(memory.NewStore(), logging.Discard())

	p, err := svc.Onboard(context.Background(), driver.OnboardCommand{
		UserID:       "d1",
		Name:         "Ada",
		VehicleType:  "sedan",
		VehiclePlate: "7ABC123",
	})
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if p.Capacity != driver.DefaultCapacity || p.MaxDetourMinutes != driver.DefaultMaxDetourMinutes {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.CurrentLoad != 0 || p.HasPosition() {
		t.Fatalf("new driver should have no load and no position: %+v", p)
	}
}

func TestOnboard_Duplicate(t *testing.T) {
	svc := driver.NewService(memory.NewStore(), logging.Discard())
	cmd := driver.OnboardCommand{UserID: "d1", MaxDetourMinutes: 15}
	if _, err := svc.Onboard(context.Background(), cmd); err != nil {
		t.Fatalf("first onboard: %v", err)
	}
	if _, err := svc.Onboard(context.Background(), cmd); !errors.Is(err, driver.ErrAlreadyOnboarded) {
		t.Fatalf("expected already onboarded, got %v", err)
	}
}

func TestOnboard_Validation(t *testing.T) {
	svc := driver.NewService(memory.NewStore(), logging.Discard())
	cases := []driver.OnboardCommand{
		{},
		{UserID: "d1", Capacity: -1},
		{UserID: "d1", MaxDetourMinutes: -5},
	}
	for _, c := range cases {
		if _, err := svc.Onboard(context.Background(), c); !errors.Is(err, driver.ErrBadRequest) {
			t.Fatalf("expected bad request for %+v, got %v", c, err)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := driver.NewService(memory.NewStore(), logging.Discard())
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_ProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := driver.NewStore(pgtest.Open(t))
	expiry := time.Date(2028, 6, 30, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := &driver.Profile{
		UserID:           "d-db-1",
		Name:             "Grace",
		LicenseNumber:    "CA-99",
		LicenseExpiry:    &expiry,
		Capacity:         6,
		MaxDetourMinutes: 12,
		DeviceToken:      "tok",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := store.CreateProfile(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateProfile(ctx, p); !errors.Is(err, driver.ErrAlreadyOnboarded) {
		t.Fatalf("expected already onboarded, got %v", err)
	}

	pos := types.Point{Lat: 37.78, Lng: -122.41}
	if err := store.UpdatePosition(ctx, p.UserID, pos, now.Add(time.Second)); err != nil {
		t.Fatalf("update position: %v", err)
	}
	if err := store.UpdatePosition(ctx, "ghost", pos, now); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := store.GetProfile(ctx, p.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Position == nil || *got.Position != pos || got.Capacity != 6 || got.MaxDetourMinutes != 12 {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if got.LicenseExpiry == nil || !got.LicenseExpiry.Equal(expiry) {
		t.Fatalf("license expiry mismatch: %v", got.LicenseExpiry)
	}
}
