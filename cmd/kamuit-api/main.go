// README: Entry point; loads config, wires services, starts HTTP server and the fallback monitor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	googlemaps "googlemaps.github.io/maps"

	"kamuit/internal/config"
	"kamuit/internal/events"
	httptransport "kamuit/internal/http"
	"kamuit/internal/infra"
	"kamuit/internal/logging"
	"kamuit/internal/maps"
	"kamuit/internal/modules/driver"
	"kamuit/internal/modules/location"
	"kamuit/internal/modules/matching"
	"kamuit/internal/modules/pricing"
	"kamuit/internal/modules/ride"
	"kamuit/internal/notify"
	"kamuit/internal/storage/memory"
	"kamuit/internal/tracking"
	"kamuit/migrations"
)

type repositories struct {
	rides    ride.Repository
	drivers  driver.Repository
	location location.Repository
	matching matching.Repository
	close    func()
}

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init", "err", err)
		os.Exit(1)
	}
	defer repos.close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.Error("redis init", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	router, err := newRouter(cfg.Routing, rdb, logger)
	if err != nil {
		logger.Error("routing init", "err", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
	}

	var notifier matching.Notifier
	if cfg.Firebase.ProjectID != "" {
		client, err := infra.NewMessagingClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Error("firebase init", "err", err)
			os.Exit(1)
		}
		notifier = notify.NewFCMNotifier(client, logger)
	}

	var geo location.GeoIndex
	if rdb != nil {
		geo = location.NewRedisGeoIndex(rdb)
	}

	pricingSvc := pricing.NewService(pricing.Rate{PerKmCents: cfg.Pricing.PerKmCents, Currency: cfg.Pricing.Currency})
	rideSvc := ride.NewService(repos.rides, router, pricingSvc, publisher, logger)
	driverSvc := driver.NewService(repos.drivers, logger)
	hub := tracking.NewHub(logger)
	locationSvc := location.NewService(repos.location, geo, publisher, logger, location.WithBroadcaster(hub))
	matchingSvc := matching.NewService(repos.matching, router, publisher, notifier, cfg.Matching, logger)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Ride:            rideSvc,
		Matching:        matchingSvc,
		Driver:          driverSvc,
		Location:        locationSvc,
		Tracking:        hub,
		Logger:          logger,
		FallbackTimeout: cfg.Matching.FallbackTimeout,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go matchingSvc.RunFallbackMonitor(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "err", err)
		}
	}()

	logger.Info("kamuit api listening", "addr", cfg.HTTP.Addr, "routing", cfg.Routing.Provider, "postgres", cfg.DB.DSN != "")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "err", err)
		os.Exit(1)
	}
	logger.Info("kamuit api stopped")
}

// openRepositories uses Postgres when a DSN is configured and the in-memory store otherwise.
func openRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("KAMUIT_DB_DSN not set, using in-memory storage")
		store := memory.NewStore()
		return repositories{rides: store, drivers: store, location: store, matching: store, close: func() {}}, nil
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN, logger)
	if err != nil {
		return repositories{}, err
	}
	if cfg.DB.Migrate {
		if err := infra.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return repositories{}, err
		}
	}
	return repositories{
		rides:    ride.NewStore(pool),
		drivers:  driver.NewStore(pool),
		location: location.NewStore(pool),
		matching: matching.NewStore(pool),
		close:    pool.Close,
	}, nil
}

func newRouter(cfg config.RoutingConfig, rdb *redis.Client, logger *slog.Logger) (maps.Router, error) {
	var router maps.Router
	switch cfg.Provider {
	case "osrm":
		router = maps.NewOSRMClient(cfg.OSRMURL, cfg.Timeout)
	default:
		svc, err := maps.NewRouteService(cfg.GoogleKey, googlemaps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		if err != nil {
			return nil, err
		}
		router = svc
	}
	if rdb != nil && cfg.CacheTTL > 0 {
		router = maps.NewCachedRouter(router, rdb, cfg.CacheTTL, logger)
	}
	return router, nil
}
