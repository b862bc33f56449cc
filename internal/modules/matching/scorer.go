// README: Detour scorer: routes every candidate to the pickup concurrently and picks the shortest acceptable detour.
package matching

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"kamuit/internal/maps"
	"kamuit/internal/modules/driver"
	"kamuit/internal/observability"
	"kamuit/internal/types"
)

const defaultScoringConcurrency = 8

type Scorer struct {
	router maps.Router
	limit  int
	logger *slog.Logger
}

func NewScorer(router maps.Router, limit int, logger *slog.Logger) *Scorer {
	if limit <= 0 {
		limit = defaultScoringConcurrency
	}
	return &Scorer{router: router, limit: limit, logger: logger}
}

// Score evaluates candidates against pickup. A failed routing call drops that
// candidate only; the error is returned solely when ctx ends mid-pass.
func (s *Scorer) Score(ctx context.Context, pickup types.Point, candidates []driver.Profile) (Result, error) {
	type slot struct {
		eval Evaluation
		ok   bool
	}
	slots := make([]slot, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, c := range candidates {
		if c.Position == nil {
			continue
		}
		g.Go(func() error {
			route, err := s.router.Route(ctx, *c.Position, pickup)
			if err != nil {
				observability.RoutingFailures.Inc()
				s.logger.Warn("skipping candidate, routing failed", "driver_id", c.UserID, "err", err)
				return nil
			}
			e := Evaluation{
				DriverID:         c.UserID,
				DetourSeconds:    route.DurationS,
				MaxDetourMinutes: c.MaxDetourMinutes,
			}
			e.WithinTolerance = e.DetourMinutes() <= float64(c.MaxDetourMinutes)
			slots[i] = slot{eval: e, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for i, sl := range slots {
		if !sl.ok {
			res.Skipped = append(res.Skipped, candidates[i].UserID)
			continue
		}
		res.Evaluations = append(res.Evaluations, sl.eval)
	}
	sort.Slice(res.Evaluations, func(i, j int) bool {
		return res.Evaluations[i].DriverID < res.Evaluations[j].DriverID
	})
	res.Winner = pickWinner(res.Evaluations)
	return res, nil
}

// pickWinner returns the minimum detour within tolerance; ties go to the lower driver id.
func pickWinner(evals []Evaluation) *Evaluation {
	var best *Evaluation
	for i := range evals {
		e := &evals[i]
		if !e.WithinTolerance {
			continue
		}
		if best == nil ||
			e.DetourSeconds < best.DetourSeconds ||
			(e.DetourSeconds == best.DetourSeconds && e.DriverID < best.DriverID) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	w := *best
	return &w
}
