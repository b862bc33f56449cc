// README: Detour score audit records and the results of assignment and fallback passes.
package matching

import (
	"time"

	"kamuit/internal/modules/ride"
	"kamuit/internal/types"
)

type Outcome string

const (
	OutcomeNotChosen           Outcome = "evaluated_not_chosen"
	OutcomeChosen              Outcome = "chosen"
	OutcomeFallbackInvalidated Outcome = "fallback_invalidated"
)

// ScoreRecord is the audit entry for one candidate evaluated in one assignment pass.
// Only Outcome ever changes, from chosen to fallback_invalidated.
type ScoreRecord struct {
	ID            types.ID
	RideID        types.ID
	DriverID      types.ID
	DetourSeconds int
	Outcome       Outcome
	AssignedAt    time.Time
}

func (r ScoreRecord) DetourMinutes() float64 {
	return float64(r.DetourSeconds) / 60
}

// Evaluation is a candidate whose route to the pickup was computed.
type Evaluation struct {
	DriverID         types.ID
	DetourSeconds    int
	MaxDetourMinutes int
	WithinTolerance  bool
}

func (e Evaluation) DetourMinutes() float64 {
	return float64(e.DetourSeconds) / 60
}

// Result of one scoring pass. Evaluations are ordered by driver id.
type Result struct {
	Evaluations []Evaluation
	// Skipped holds candidates whose routing call failed.
	Skipped []types.ID
	Winner  *Evaluation
}

type Assignment struct {
	Ride          ride.Ride
	DriverID      types.ID
	DetourSeconds int
	Candidates    int
	Records       []ScoreRecord
}

func (a Assignment) DetourMinutes() float64 {
	return float64(a.DetourSeconds) / 60
}

type FallbackStatus string

const (
	FallbackWaiting  FallbackStatus = "still_waiting"
	FallbackReverted FallbackStatus = "reverted"
)

type FallbackResult struct {
	Status  FallbackStatus
	RideID  types.ID
	Elapsed time.Duration
	// DriverID is the driver released by a revert.
	DriverID types.ID
	Ride     ride.Ride
}

// DefaultFallbackTimeout applies when a caller passes a non-positive timeout.
const DefaultFallbackTimeout = 30 * time.Second
