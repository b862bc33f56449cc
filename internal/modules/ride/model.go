// README: Ride aggregate and status definitions.
package ride

import (
	"time"

	"kamuit/internal/types"
)

type Status string

const (
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Bound reports whether a ride in this status holds a driver.
func (s Status) Bound() bool {
	return s == StatusAccepted || s == StatusInProgress
}

type Ride struct {
	ID            types.ID
	RiderID       types.ID
	DriverID      *types.ID
	Pickup        types.Place
	Dropoff       types.Place
	DistanceM     int
	DurationS     int
	Summary       string
	FareEstimate  types.Money
	Status        Status
	StatusVersion int
	FallbackCount int
	CreatedAt     time.Time
	AcceptedAt    *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	// CompletedBy keeps the serving driver once the binding is released on completion.
	CompletedBy *types.ID
}

// BindingValid checks that a driver is set exactly when the status holds one.
func (r Ride) BindingValid() bool {
	return (r.DriverID != nil) == r.Status.Bound()
}

// AssignedTo reports whether driverID is the ride's current driver.
func (r Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

// Dashboard is a driver's view of their active and past work.
type Dashboard struct {
	Active    *Ride
	Completed []Ride
}

// Stats counts rides per status and the drivers currently bound to one.
type Stats struct {
	Total         int
	ByStatus      map[Status]int
	ActiveDrivers int
}
