// README: Ride state machine; every status change goes through Transition.
package ride

import (
	"errors"
	"fmt"
	"time"

	"kamuit/internal/types"
)

var (
	ErrInvalidState      = errors.New("invalid state transition")
	ErrTerminalState     = errors.New("ride is in a terminal state")
	ErrCancelForbidden   = errors.New("ride cannot be cancelled")
	ErrNotAssignedDriver = errors.New("caller is not the assigned driver")
	ErrNotRideOwner      = errors.New("caller is not the ride's rider")
	ErrMissingActor      = errors.New("event has no actor")
)

type EventKind string

const (
	EventAssign   EventKind = "assign"
	EventStart    EventKind = "start"
	EventComplete EventKind = "complete"
	EventCancel   EventKind = "cancel"
	EventRevert   EventKind = "revert"
)

// Event drives one transition. ActorID is the driver for assign/start/complete
// and the rider for cancel; revert has no actor.
type Event struct {
	Kind    EventKind
	ActorID types.ID
	At      time.Time
}

// AllowedTransitions represents the ride state flow as code.
var AllowedTransitions = map[Status]map[EventKind]Status{
	StatusRequested: {
		EventAssign: StatusAccepted,
		EventCancel: StatusCancelled,
	},
	StatusAccepted: {
		EventStart:  StatusInProgress,
		EventCancel: StatusCancelled,
		EventRevert: StatusRequested,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
	},
}

// Next returns the status ev leads to from s, if the move is legal.
func Next(s Status, kind EventKind) (Status, bool) {
	to, ok := AllowedTransitions[s][kind]
	return to, ok
}

// Transition applies ev to r and returns the updated ride. r is not modified.
// Guards are checked in order: terminal status, legal move, then caller.
func Transition(r Ride, ev Event) (Ride, error) {
	if r.Status.Terminal() {
		if ev.Kind == EventCancel {
			return r, fmt.Errorf("%w: %w", ErrCancelForbidden, ErrTerminalState)
		}
		return r, ErrTerminalState
	}
	to, ok := Next(r.Status, ev.Kind)
	if !ok {
		if ev.Kind == EventCancel {
			return r, ErrCancelForbidden
		}
		return r, ErrInvalidState
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case EventAssign:
		if ev.ActorID == "" {
			return r, ErrMissingActor
		}
		d := ev.ActorID
		r.DriverID = &d
		r.AcceptedAt = &at
	case EventStart:
		if !r.AssignedTo(ev.ActorID) {
			return r, ErrNotAssignedDriver
		}
		r.StartedAt = &at
	case EventComplete:
		if !r.AssignedTo(ev.ActorID) {
			return r, ErrNotAssignedDriver
		}
		d := *r.DriverID
		r.CompletedBy = &d
		r.DriverID = nil
		r.CompletedAt = &at
	case EventCancel:
		if ev.ActorID != r.RiderID {
			return r, ErrNotRideOwner
		}
		r.DriverID = nil
		r.CancelledAt = &at
	case EventRevert:
		r.DriverID = nil
		r.FallbackCount++
	}
	r.Status = to
	return r, nil
}
