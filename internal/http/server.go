// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kamuit/internal/http/handlers"
	"kamuit/internal/http/middleware"
	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/location"
	"kamuit/internal/modules/matching"
	"kamuit/internal/modules/ride"
	"kamuit/internal/tracking"
)

type ServerDeps struct {
	Ride     *ride.Service
	Matching *matching.Service
	Driver   *driver.Service
	Location *location.Service
	// Tracking, when set, serves live ride location over WebSocket.
	Tracking *tracking.Hub
	Logger   *slog.Logger
	// FallbackTimeout is used when a fallback check does not name its own timeout.
	FallbackTimeout time.Duration
}

type Server struct {
	ride            *ride.Service
	matching        *matching.Service
	driver          *driver.Service
	location        *location.Service
	tracking        *tracking.Hub
	logger          *slog.Logger
	fallbackTimeout time.Duration
}

func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ride:            deps.Ride,
		matching:        deps.Matching,
		driver:          deps.Driver,
		location:        deps.Location,
		tracking:        deps.Tracking,
		logger:          logger,
		fallbackTimeout: deps.FallbackTimeout,
	}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(), middleware.Recovery(s.logger), middleware.Logging(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rideHandler := handlers.NewRideHandler(s.ride)
	matchingHandler := handlers.NewMatchingHandler(s.matching, s.fallbackTimeout)
	driverHandler := handlers.NewDriverHandler(s.driver, s.location, s.ride)
	locationHandler := handlers.NewLocationHandler(s.location)
	adminHandler := handlers.NewAdminHandler(s.ride, s.driver)

	api := r.Group("/api")

	rides := api.Group("/rides")
	rides.POST("", rideHandler.Create)
	rides.GET("/:id", rideHandler.Get)
	rides.POST("/:id/assign", matchingHandler.Assign)
	rides.POST("/:id/fallback", matchingHandler.Fallback)
	rides.GET("/:id/scores", matchingHandler.Scores)
	rides.POST("/:id/start", rideHandler.Start)
	rides.POST("/:id/complete", rideHandler.Complete)
	rides.POST("/:id/cancel", rideHandler.Cancel)
	rides.PUT("/:id/location", locationHandler.Record)
	rides.GET("/:id/location", locationHandler.Latest)
	if s.tracking != nil {
		rides.GET("/:id/location/stream", s.tracking.Subscribe)
	}

	api.GET("/riders/:id/rides", rideHandler.History)

	drivers := api.Group("/drivers")
	drivers.POST("", driverHandler.Onboard)
	drivers.PUT("/:id/location", driverHandler.UpdateLocation)
	drivers.GET("/:id/dashboard", driverHandler.Dashboard)

	api.GET("/nearby/drivers", locationHandler.Nearby)
	api.GET("/admin/stats", adminHandler.Stats)

	return r
}
