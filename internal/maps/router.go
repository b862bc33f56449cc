// README: Routing port consumed by ride creation and detour scoring.
package maps

import (
	"context"
	"errors"
	"fmt"

	"kamuit/internal/types"
)

// ErrRouting wraps every failure returned by a Router.
var ErrRouting = errors.New("routing failed")

type Route struct {
	DistanceM int
	DurationS int
	Summary   string
}

// Router returns the driving distance and duration between two points.
type Router interface {
	Route(ctx context.Context, origin, destination types.Point) (Route, error)
}

func routingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRouting, fmt.Sprintf(format, args...))
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
