// README: Driver profile read by the candidate filter and updated by location pings.
package driver

import (
	"time"

	"kamuit/internal/types"
)

const (
	DefaultCapacity         = 4
	DefaultMaxDetourMinutes = 10
)

type Profile struct {
	UserID           types.ID
	Name             string
	LicenseNumber    string
	LicenseExpiry    *time.Time
	VehicleType      string
	VehiclePlate     string
	Capacity         int
	CurrentLoad      int
	MaxDetourMinutes int
	// Position is nil until the driver's first GPS ping.
	Position    *types.Point
	DeviceToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Profile) HasPosition() bool {
	return p.Position != nil
}
