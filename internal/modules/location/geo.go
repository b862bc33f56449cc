// README: Driver GEO index backed by Redis GEOADD / GEOSEARCH.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"kamuit/internal/types"
)

const driverGeoKey = "location:drivers"

// GeoIndex answers radius queries over last-known driver positions.
type GeoIndex interface {
	SetDriverPosition(ctx context.Context, driverID types.ID, pos types.Point) error
	NearbyDrivers(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error)
}

type RedisGeoIndex struct {
	redis *redis.Client
}

func NewRedisGeoIndex(rdb *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{redis: rdb}
}

func (g *RedisGeoIndex) SetDriverPosition(ctx context.Context, driverID types.ID, pos types.Point) error {
	return g.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

// NearbyDrivers returns drivers within radiusKm of center, nearest first.
func (g *RedisGeoIndex) NearbyDrivers(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	results, err := g.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyDriver, len(results))
	for i, r := range results {
		out[i] = NearbyDriver{
			DriverID:   types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}
