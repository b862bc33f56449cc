package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"kamuit/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
// Extra client options (base URL, HTTP client) are passed through to the SDK.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route asks the Directions API for a driving route and reports its first leg.
func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Route{}, routingError("maps api error: %v", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, routingError("no route found")
	}

	leg := routes[0].Legs[0]
	return Route{
		DistanceM: leg.Distance.Meters,
		DurationS: int(leg.Duration.Seconds()),
		Summary:   routes[0].Summary,
	}, nil
}
