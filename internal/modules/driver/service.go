// README: Driver service handles onboarding and profile reads.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kamuit/internal/types"
)

var (
	ErrNotFound         = errors.New("driver not found")
	ErrAlreadyOnboarded = errors.New("driver profile already exists")
	ErrBadRequest       = errors.New("bad request")
)

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

type OnboardCommand struct {
	UserID        types.ID
	Name          string
	LicenseNumber string
	LicenseExpiry *time.Time
	VehicleType   string
	VehiclePlate  string
	// Capacity and MaxDetourMinutes fall back to the defaults when zero.
	Capacity         int
	MaxDetourMinutes int
	DeviceToken      string
}

func (s *Service) Onboard(ctx context.Context, cmd OnboardCommand) (*Profile, error) {
	if cmd.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrBadRequest)
	}
	if cmd.Capacity < 0 || cmd.MaxDetourMinutes < 0 {
		return nil, fmt.Errorf("%w: capacity and max_detour_minutes must not be negative", ErrBadRequest)
	}
	now := s.now().UTC()
	p := &Profile{
		UserID:           cmd.UserID,
		Name:             cmd.Name,
		LicenseNumber:    cmd.LicenseNumber,
		LicenseExpiry:    cmd.LicenseExpiry,
		VehicleType:      cmd.VehicleType,
		VehiclePlate:     cmd.VehiclePlate,
		Capacity:         cmd.Capacity,
		MaxDetourMinutes: cmd.MaxDetourMinutes,
		DeviceToken:      cmd.DeviceToken,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Capacity == 0 {
		p.Capacity = DefaultCapacity
	}
	if p.MaxDetourMinutes == 0 {
		p.MaxDetourMinutes = DefaultMaxDetourMinutes
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("driver onboarded", "driver_id", p.UserID, "capacity", p.Capacity, "max_detour_minutes", p.MaxDetourMinutes)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.repo.ListProfiles(ctx)
}
