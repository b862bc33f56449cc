package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kamuit/internal/types"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

func (o *OSRMClient) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	// OSRM wants lon,lat pairs: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		o.Endpoint, origin.Lng, origin.Lat, destination.Lng, destination.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, routingError("build osrm request: %v", err)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, routingError("osrm request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, routingError("osrm status %d", resp.StatusCode)
	}

	var out struct {
		Code   string `json:"code"`
		Routes []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Legs     []struct {
				Summary string `json:"summary"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, routingError("decode osrm response: %v", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, routingError("osrm no route: %s", out.Code)
	}

	r := out.Routes[0]
	route := Route{DistanceM: int(r.Distance), DurationS: int(r.Duration)}
	if len(r.Legs) > 0 {
		route.Summary = r.Legs[0].Summary
	}
	return route, nil
}
