// README: Scripted end-to-end run against the HTTP API; drives a ride from onboarding to completion and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	sim := NewRunner(cfg)
	results := sim.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL   string
	DSN       string
	RedisAddr string
	Timeout   time.Duration
	// Drivers is the number of drivers onboarded around the pickup.
	Drivers int
	// Pings is the number of in-ride location updates sent between start and complete.
	Pings        int
	PingInterval time.Duration
	// FallbackWait, when positive, runs the fallback scenario with this timeout.
	FallbackWait time.Duration
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("KAMUIT_SIM_BASE_URL", "http://localhost:8000"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", os.Getenv("KAMUIT_DB_DSN"), "Postgres DSN used to cross-check persisted rows (optional)")
	flag.StringVar(&cfg.RedisAddr, "redis", os.Getenv("KAMUIT_REDIS_ADDR"), "Redis address used to check the driver geo index (optional)")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("KAMUIT_SIM_TIMEOUT", 2*time.Minute), "Total timeout")
	flag.IntVar(&cfg.Drivers, "drivers", envOrDefaultInt("KAMUIT_SIM_DRIVERS", 3), "Drivers to onboard")
	flag.IntVar(&cfg.Pings, "pings", envOrDefaultInt("KAMUIT_SIM_PINGS", 5), "In-ride location pings")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", envOrDefaultDuration("KAMUIT_SIM_PING_INTERVAL", 500*time.Millisecond), "Delay between pings")
	flag.DurationVar(&cfg.FallbackWait, "fallback-wait", envOrDefaultDuration("KAMUIT_SIM_FALLBACK_WAIT", 0), "Run the fallback scenario with this timeout (0 skips it)")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
