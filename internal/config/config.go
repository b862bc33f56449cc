// README: Config loader with env defaults for HTTP, DB, Redis, Kafka, routing and matching settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type MatchingConfig struct {
	// ScoringConcurrency bounds in-flight routing calls during one scoring pass.
	ScoringConcurrency int
	FallbackTimeout    time.Duration
	// SweepInterval is how often the fallback monitor scans accepted rides; 0 disables it.
	SweepInterval time.Duration
}

type RoutingConfig struct {
	Provider  string // "google" or "osrm"
	GoogleKey string
	OSRMURL   string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

type PricingConfig struct {
	PerKmCents int64
	Currency   string
}

type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	DB struct {
		DSN     string
		Migrate bool
	}
	Redis struct {
		Addr     string
		Password string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Routing  RoutingConfig
	Matching MatchingConfig
	Pricing  PricingConfig
	LogLevel string
}

// Load reads an optional .env file and then the KAMUIT_* environment.
// Empty DB/Redis/Kafka settings mean the corresponding backend is not used.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var errs []error

	cfg.HTTP.Addr = envOrDefault("KAMUIT_HTTP_ADDR", ":8000")
	cfg.HTTP.ShutdownTimeout = envOrDefaultDuration("KAMUIT_HTTP_SHUTDOWN_TIMEOUT", 15*time.Second, &errs)

	cfg.DB.DSN = strings.TrimSpace(os.Getenv("KAMUIT_DB_DSN"))
	cfg.DB.Migrate = strings.EqualFold(os.Getenv("KAMUIT_MIGRATE"), "true")

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("KAMUIT_REDIS_ADDR"))
	cfg.Redis.Password = os.Getenv("KAMUIT_REDIS_PASSWORD")

	cfg.Kafka.Brokers = splitAndTrim(os.Getenv("KAMUIT_KAFKA_BROKERS"))
	cfg.Kafka.Topic = envOrDefault("KAMUIT_KAFKA_TOPIC", "ride-events")

	cfg.Firebase.ProjectID = os.Getenv("KAMUIT_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("KAMUIT_FIREBASE_CREDENTIALS")

	cfg.Routing.Provider = strings.ToLower(envOrDefault("KAMUIT_ROUTING_PROVIDER", "google"))
	cfg.Routing.GoogleKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	cfg.Routing.OSRMURL = envOrDefault("KAMUIT_OSRM_URL", "http://localhost:5000")
	cfg.Routing.Timeout = envOrDefaultDuration("KAMUIT_ROUTING_TIMEOUT", 3*time.Second, &errs)
	cfg.Routing.CacheTTL = envOrDefaultDuration("KAMUIT_ROUTING_CACHE_TTL", 0, &errs)

	cfg.Matching.ScoringConcurrency = envOrDefaultInt("KAMUIT_SCORING_CONCURRENCY", 8, &errs)
	cfg.Matching.FallbackTimeout = envOrDefaultDuration("KAMUIT_FALLBACK_TIMEOUT", 30*time.Second, &errs)
	cfg.Matching.SweepInterval = envOrDefaultDuration("KAMUIT_FALLBACK_SWEEP_INTERVAL", 10*time.Second, &errs)

	cfg.Pricing.PerKmCents = int64(envOrDefaultInt("KAMUIT_FARE_PER_KM_CENTS", 150, &errs))
	cfg.Pricing.Currency = envOrDefault("KAMUIT_FARE_CURRENCY", "USD")

	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", "info"))

	if cfg.Matching.ScoringConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("KAMUIT_SCORING_CONCURRENCY must be > 0"))
	}
	switch cfg.Routing.Provider {
	case "google":
		if cfg.Routing.GoogleKey == "" {
			errs = append(errs, fmt.Errorf("GOOGLE_MAPS_API_KEY is required for the google routing provider"))
		}
	case "osrm":
	default:
		errs = append(errs, fmt.Errorf("unknown KAMUIT_ROUTING_PROVIDER %q", cfg.Routing.Provider))
	}

	return cfg, errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func splitAndTrim(v string) []string {
	if v == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
