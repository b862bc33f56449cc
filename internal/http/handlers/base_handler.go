// README: Base handler utilities (JSON helpers, error mapping, response shapes).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kamuit/internal/maps"
	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/location"
	"kamuit/internal/modules/matching"
	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module error kinds to HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ride.ErrBadRequest),
		errors.Is(err, driver.ErrBadRequest),
		errors.Is(err, location.ErrInvalidLocation),
		errors.Is(err, ride.ErrMissingActor):
		status = http.StatusBadRequest
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, location.ErrNoLocation),
		errors.Is(err, location.ErrDriverMismatch):
		status = http.StatusNotFound
	case errors.Is(err, ride.ErrTerminalState):
		status = http.StatusConflict
	case errors.Is(err, ride.ErrCancelForbidden),
		errors.Is(err, ride.ErrNotAssignedDriver),
		errors.Is(err, ride.ErrNotRideOwner):
		status = http.StatusForbidden
	case errors.Is(err, ride.ErrInvalidState),
		errors.Is(err, ride.ErrConflict),
		errors.Is(err, ride.ErrActiveRide),
		errors.Is(err, driver.ErrAlreadyOnboarded),
		errors.Is(err, matching.ErrRideNotAssignable),
		errors.Is(err, matching.ErrDriverUnavailable),
		errors.Is(err, matching.ErrNoActiveAssignment):
		status = http.StatusConflict
	case errors.Is(err, matching.ErrNoAvailableCandidates),
		errors.Is(err, matching.ErrNoSuitableDriver):
		status = http.StatusServiceUnavailable
	case errors.Is(err, maps.ErrRouting):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

type pointDTO struct {
	Lat float64 `json:"lat" binding:"min=-90,max=90"`
	Lng float64 `json:"lng" binding:"min=-180,max=180"`
}

func (p pointDTO) point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

type placeDTO struct {
	Lat     float64 `json:"lat" binding:"min=-90,max=90"`
	Lng     float64 `json:"lng" binding:"min=-180,max=180"`
	Address string  `json:"address"`
}

func (p placeDTO) place() types.Place {
	return types.Place{Point: types.Point{Lat: p.Lat, Lng: p.Lng}, Address: p.Address}
}

type moneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type rideResponse struct {
	RideID        string     `json:"ride_id"`
	RiderID       string     `json:"rider_id"`
	DriverID      *string    `json:"driver_id"`
	Status        string     `json:"status"`
	Pickup        placeDTO   `json:"pickup"`
	Dropoff       placeDTO   `json:"dropoff"`
	DistanceM     int        `json:"distance_m"`
	DurationS     int        `json:"duration_s"`
	Summary       string     `json:"route_summary"`
	FareEstimate  moneyDTO   `json:"fare_estimate"`
	FallbackCount int        `json:"fallback_count"`
	CreatedAt     time.Time  `json:"created_at"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toRideResponse(r ride.Ride) rideResponse {
	out := rideResponse{
		RideID:        string(r.ID),
		RiderID:       string(r.RiderID),
		Status:        string(r.Status),
		Pickup:        placeDTO{Lat: r.Pickup.Lat, Lng: r.Pickup.Lng, Address: r.Pickup.Address},
		Dropoff:       placeDTO{Lat: r.Dropoff.Lat, Lng: r.Dropoff.Lng, Address: r.Dropoff.Address},
		DistanceM:     r.DistanceM,
		DurationS:     r.DurationS,
		Summary:       r.Summary,
		FareEstimate:  moneyDTO{Amount: r.FareEstimate.Amount, Currency: r.FareEstimate.Currency},
		FallbackCount: r.FallbackCount,
		CreatedAt:     r.CreatedAt,
		AcceptedAt:    r.AcceptedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		CancelledAt:   r.CancelledAt,
	}
	if r.DriverID != nil {
		d := string(*r.DriverID)
		out.DriverID = &d
	}
	return out
}

func toRideResponses(rides []ride.Ride) []rideResponse {
	out := make([]rideResponse, len(rides))
	for i, r := range rides {
		out[i] = toRideResponse(r)
	}
	return out
}
