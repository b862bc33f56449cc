// README: Ride handlers for request, lookup, lifecycle moves and rider history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

type RideHandler struct {
	ride *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{ride: svc}
}

type createRideRequest struct {
	RiderID string   `json:"rider_id" binding:"required"`
	Pickup  placeDTO `json:"pickup" binding:"required"`
	Dropoff placeDTO `json:"dropoff" binding:"required"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	r, err := h.ride.Create(c.Request.Context(), ride.CreateCommand{
		RiderID: types.ID(req.RiderID),
		Pickup:  req.Pickup.place(),
		Dropoff: req.Dropoff.place(),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toRideResponse(*r))
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.ride.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(*r))
}

type driverActionRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

type riderActionRequest struct {
	RiderID string `json:"rider_id" binding:"required"`
}

func (h *RideHandler) Start(c *gin.Context) {
	var req driverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	r, err := h.ride.Start(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(*r))
}

func (h *RideHandler) Complete(c *gin.Context) {
	var req driverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	r, err := h.ride.Complete(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(*r))
}

func (h *RideHandler) Cancel(c *gin.Context) {
	var req riderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "missing rider_id")
		return
	}
	r, err := h.ride.Cancel(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.RiderID))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(*r))
}

func (h *RideHandler) History(c *gin.Context) {
	rides, err := h.ride.History(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": toRideResponses(rides)})
}
