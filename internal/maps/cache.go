package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"kamuit/internal/types"
)

const routeKeyPrefix = "routing:route:%s->%s"

// CachedRouter keeps successful lookups in Redis for ttl.
// Cache errors never fail a lookup; failures from next are not cached.
type CachedRouter struct {
	next   Router
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRouter(next Router, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRouter {
	return &CachedRouter{next: next, redis: rdb, ttl: ttl, logger: logger}
}

type cachedRoute struct {
	DistanceM int    `json:"distance_m"`
	DurationS int    `json:"duration_s"`
	Summary   string `json:"summary"`
}

func (c *CachedRouter) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	key := routeKey(origin, destination)

	val, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cr cachedRoute
		if jerr := json.Unmarshal(val, &cr); jerr == nil {
			return Route{DistanceM: cr.DistanceM, DurationS: cr.DurationS, Summary: cr.Summary}, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("route cache read failed", "key", key, "error", err)
	}

	route, err := c.next.Route(ctx, origin, destination)
	if err != nil {
		return Route{}, err
	}

	b, _ := json.Marshal(cachedRoute{DistanceM: route.DistanceM, DurationS: route.DurationS, Summary: route.Summary})
	if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("route cache write failed", "key", key, "error", err)
	}
	return route, nil
}

// Coordinates are rounded to ~10cm so jittery GPS pings still share entries.
func routeKey(a, b types.Point) string {
	return fmt.Sprintf(routeKeyPrefix, latLng(a), latLng(b))
}
