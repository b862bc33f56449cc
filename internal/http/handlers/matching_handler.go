// README: Matching handlers for assignment, fallback checks and the detour score audit trail.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kamuit/internal/modules/matching"
	"kamuit/internal/types"
)

type MatchingHandler struct {
	matching        *matching.Service
	fallbackTimeout time.Duration
}

func NewMatchingHandler(svc *matching.Service, fallbackTimeout time.Duration) *MatchingHandler {
	return &MatchingHandler{matching: svc, fallbackTimeout: fallbackTimeout}
}

type scoreResponse struct {
	DriverID      string    `json:"driver_id"`
	DetourMinutes float64   `json:"detour_minutes"`
	Outcome       string    `json:"outcome"`
	AssignedAt    time.Time `json:"assigned_at"`
}

func toScoreResponses(records []matching.ScoreRecord) []scoreResponse {
	out := make([]scoreResponse, len(records))
	for i, rec := range records {
		out[i] = scoreResponse{
			DriverID:      string(rec.DriverID),
			DetourMinutes: rec.DetourMinutes(),
			Outcome:       string(rec.Outcome),
			AssignedAt:    rec.AssignedAt,
		}
	}
	return out
}

func (h *MatchingHandler) Assign(c *gin.Context) {
	a, err := h.matching.Assign(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ride":           toRideResponse(a.Ride),
		"driver_id":      string(a.DriverID),
		"detour_minutes": a.DetourMinutes(),
		"candidates":     a.Candidates,
		"scores":         toScoreResponses(a.Records),
	})
}

type fallbackRequest struct {
	TimeoutSeconds int `json:"timeout_seconds" binding:"min=0"`
}

// Fallback accepts an empty body, in which case the configured timeout applies.
func (h *MatchingHandler) Fallback(c *gin.Context) {
	var req fallbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	timeout := h.fallbackTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	res, err := h.matching.CheckFallback(c.Request.Context(), types.ID(c.Param("id")), timeout)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	body := gin.H{
		"status":          string(res.Status),
		"ride_id":         string(res.RideID),
		"elapsed_seconds": int(res.Elapsed / time.Second),
		"ride":            toRideResponse(res.Ride),
	}
	if res.Status == matching.FallbackReverted {
		body["released_driver_id"] = string(res.DriverID)
	}
	writeJSON(c, http.StatusOK, body)
}

func (h *MatchingHandler) Scores(c *gin.Context) {
	records, err := h.matching.Scores(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"scores": toScoreResponses(records)})
}
