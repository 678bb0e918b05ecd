package saga

import (
	"errors"
	"time"
)

// State is the position of one ride's settlement saga.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

var ErrInvalidTransition = errors.New("invalid saga state transition")

// CanTransitionTo specifies if the state can transition to the next state.
func (state State) CanTransitionTo(next State) bool {
	switch state {
	case StatePending:
		return next == StateProcessing
	case StateProcessing:
		return next == StateSuccess || next == StateFailed
	default:
		return false
	}
}

// Terminal indicates if the saga has finished.
func (state State) Terminal() bool {
	return state == StateSuccess || state == StateFailed
}

// String returns the string representation of the State.
func (state State) String() string {
	return string(state)
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Instance tracks the in-flight saga of a single ride inside one handler invocation.
type Instance struct {
	ID      string
	state   State
	history []Transition
}

// Start returns a saga in the pending state.
func Start(sagaID string) *Instance {
	return &Instance{ID: sagaID, state: StatePending}
}

// State returns the current state.
func (in *Instance) State() State {
	return in.state
}

// History returns the transitions taken so far.
func (in *Instance) History() []Transition {
	return append([]Transition(nil), in.history...)
}

// Advance moves the saga to next and returns the transition taken.
func (in *Instance) Advance(next State) (Transition, error) {
	if !in.state.CanTransitionTo(next) {
		return Transition{}, ErrInvalidTransition
	}
	tr := Transition{From: in.state, To: next, At: time.Now().UTC()}
	in.state = next
	in.history = append(in.history, tr)
	return tr, nil
}
