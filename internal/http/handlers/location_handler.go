// README: Location handlers for in-ride pings, ride tracking and nearby driver search.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kamuit/internal/modules/location"
	"kamuit/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type rideLocationRequest struct {
	DriverID string  `json:"driver_id" binding:"required"`
	Lat      float64 `json:"lat" binding:"min=-90,max=90"`
	Lng      float64 `json:"lng" binding:"min=-180,max=180"`
}

type snapshotResponse struct {
	RideID     string    `json:"ride_id"`
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toSnapshotResponse(s location.Snapshot) snapshotResponse {
	return snapshotResponse{
		RideID:     string(s.RideID),
		DriverID:   string(s.DriverID),
		Lat:        s.Position.Lat,
		Lng:        s.Position.Lng,
		RecordedAt: s.RecordedAt,
	}
}

func (h *LocationHandler) Record(c *gin.Context) {
	var req rideLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := h.location.RecordRideLocation(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID),
		types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toSnapshotResponse(*snap))
}

func (h *LocationHandler) Latest(c *gin.Context) {
	snap, err := h.location.LatestRideLocation(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toSnapshotResponse(*snap))
}

func (h *LocationHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	var radius float64
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	var limit int
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	drivers, err := h.location.NearbyDrivers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, len(drivers))
	for i, d := range drivers {
		out[i] = gin.H{
			"driver_id":   string(d.DriverID),
			"lat":         d.Position.Lat,
			"lng":         d.Position.Lng,
			"distance_km": d.DistanceKm,
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}
