// README: Ride lifecycle and driver location events published to Kafka.
package events

import (
	"context"
	"time"
)

// Event types, used as the Kafka message type header.
const (
	TypeRideRequested  = "ride.requested"
	TypeRideAssigned   = "ride.assigned"
	TypeRideReverted   = "ride.fallback_reverted"
	TypeRideStarted    = "ride.started"
	TypeRideCompleted  = "ride.completed"
	TypeRideCancelled  = "ride.cancelled"
	TypeDriverLocation = "driver.location"
)

// Event is the envelope every message carries. Key is used for partitioning.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RideRequested struct {
	RideID       string `json:"ride_id"`
	RiderID      string `json:"rider_id"`
	Pickup       LatLng `json:"pickup"`
	Dropoff      LatLng `json:"dropoff"`
	FareEstimate int64  `json:"fare_estimate"`
}

type RideAssigned struct {
	RideID        string `json:"ride_id"`
	DriverID      string `json:"driver_id"`
	DetourSeconds int    `json:"detour_duration_s"`
	Candidates    int    `json:"candidates"`
}

type RideReverted struct {
	RideID        string  `json:"ride_id"`
	DriverID      string  `json:"driver_id"`
	ElapsedS      float64 `json:"elapsed_s"`
	FallbackCount int     `json:"fallback_count"`
}

type RideTransitioned struct {
	RideID   string `json:"ride_id"`
	DriverID string `json:"driver_id,omitempty"`
	Status   string `json:"status"`
}

type DriverLocation struct {
	DriverID string `json:"driver_id"`
	RideID   string `json:"ride_id,omitempty"`
	Position LatLng `json:"position"`
}

// Publisher delivers events. Callers treat publishing as best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event; used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
