package session

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the camera session lifecycle state.
type State int

const (
	Idle State = iota
	Opened
	Shooting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opened:
		return "opened"
	case Shooting:
		return "shooting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the allowed next states for each state.
var transitions = map[State][]State{
	Idle:     {Opened},
	Opened:   {Shooting, Idle},
	Shooting: {Idle},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// setState moves to next. Entering Opened or Idle starts a new epoch.
func (s *Session) setState(next State) error {
	s.mu.Lock()
	prev := s.state
	if !CanTransition(prev, next) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	s.state = next
	if next != Shooting {
		s.epoch++
	}
	s.mu.Unlock()

	s.logger.Debug("state changed", "from", prev, "to", next)
	return nil
}
