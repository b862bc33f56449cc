// README: Driver handlers for onboarding, GPS pings and the driver dashboard.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/location"
	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

type DriverHandler struct {
	driver   *driver.Service
	location *location.Service
	ride     *ride.Service
}

func NewDriverHandler(driverSvc *driver.Service, locationSvc *location.Service, rideSvc *ride.Service) *DriverHandler {
	return &DriverHandler{driver: driverSvc, location: locationSvc, ride: rideSvc}
}

type onboardRequest struct {
	UserID           string     `json:"user_id" binding:"required"`
	Name             string     `json:"name"`
	LicenseNumber    string     `json:"license_number"`
	LicenseExpiry    *time.Time `json:"license_expiry"`
	VehicleType      string     `json:"vehicle_type"`
	VehiclePlate     string     `json:"vehicle_plate"`
	Capacity         int        `json:"capacity"`
	MaxDetourMinutes int        `json:"max_detour_minutes"`
	DeviceToken      string     `json:"device_token"`
}

type profileResponse struct {
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	VehicleType      string    `json:"vehicle_type"`
	VehiclePlate     string    `json:"vehicle_plate"`
	Capacity         int       `json:"capacity"`
	CurrentLoad      int       `json:"current_load"`
	MaxDetourMinutes int       `json:"max_detour_minutes"`
	Position         *pointDTO `json:"position,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (h *DriverHandler) Onboard(c *gin.Context) {
	var req onboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.driver.Onboard(c.Request.Context(), driver.OnboardCommand{
		UserID:           types.ID(req.UserID),
		Name:             req.Name,
		LicenseNumber:    req.LicenseNumber,
		LicenseExpiry:    req.LicenseExpiry,
		VehicleType:      req.VehicleType,
		VehiclePlate:     req.VehiclePlate,
		Capacity:         req.Capacity,
		MaxDetourMinutes: req.MaxDetourMinutes,
		DeviceToken:      req.DeviceToken,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	var pos *pointDTO
	if p.Position != nil {
		pos = &pointDTO{Lat: p.Position.Lat, Lng: p.Position.Lng}
	}
	writeJSON(c, http.StatusCreated, profileResponse{
		UserID:           string(p.UserID),
		Name:             p.Name,
		VehicleType:      p.VehicleType,
		VehiclePlate:     p.VehiclePlate,
		Capacity:         p.Capacity,
		CurrentLoad:      p.CurrentLoad,
		MaxDetourMinutes: p.MaxDetourMinutes,
		Position:         pos,
		CreatedAt:        p.CreatedAt,
	})
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req pointDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid coordinates")
		return
	}
	if err := h.location.ReportDriverLocation(c.Request.Context(), types.ID(c.Param("id")), req.point()); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *DriverHandler) Dashboard(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if _, err := h.driver.Get(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	d, err := h.ride.DriverDashboard(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	var active *rideResponse
	if d.Active != nil {
		r := toRideResponse(*d.Active)
		active = &r
	}
	writeJSON(c, http.StatusOK, gin.H{
		"active_ride":     active,
		"completed_rides": toRideResponses(d.Completed),
	})
}
