// Package booking turns a user's draft into reservations: one per selected
// slot, created sequentially, with calendar mirroring handed to a side channel.
package booking

import "errors"

// State of a draft's submission lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
)

// ErrInvalidTransition is returned when a draft is asked to move to a state
// its current state does not lead to, e.g. a second submit while one runs.
var ErrInvalidTransition = errors.New("booking: invalid state transition")

// FSM manages state transitions of a draft.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates the submission state machine:
// Idle → Validating → (Idle | Submitting) → Done → Idle.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:       {StateValidating},
			StateValidating: {StateIdle, StateSubmitting},
			StateSubmitting: {StateDone},
			StateDone:       {StateIdle},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the session to state to when allowed.
func (f *FSM) Transition(s *Session, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.CanTransition(s.state, to) {
		return ErrInvalidTransition
	}
	s.state = to
	s.touch()
	return nil
}
