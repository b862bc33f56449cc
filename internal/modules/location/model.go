// README: Ride-bound location snapshot and nearby-driver results.
package location

import (
	"time"

	"kamuit/internal/types"
)

// Snapshot is one GPS ping from the driver serving a ride.
type Snapshot struct {
	ID         types.ID
	RideID     types.ID
	DriverID   types.ID
	Position   types.Point
	RecordedAt time.Time
}

type NearbyDriver struct {
	DriverID   types.ID
	Position   types.Point
	DistanceKm float64
}
