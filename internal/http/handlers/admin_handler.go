// README: Admin handler exposing ride and fleet counters.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/ride"
)

type AdminHandler struct {
	ride   *ride.Service
	driver *driver.Service
}

func NewAdminHandler(rideSvc *ride.Service, driverSvc *driver.Service) *AdminHandler {
	return &AdminHandler{ride: rideSvc, driver: driverSvc}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.ride.Stats(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	drivers, err := h.driver.List(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	byStatus := make(map[string]int, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[string(s)] = n
	}
	writeJSON(c, http.StatusOK, gin.H{
		"total_rides":    stats.Total,
		"rides":          byStatus,
		"active_drivers": stats.ActiveDrivers,
		"total_drivers":  len(drivers),
	})
}
