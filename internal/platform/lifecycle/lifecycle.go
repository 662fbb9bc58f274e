// Package lifecycle models the record state shared by every soft-deletable
// table. Rows are never physically removed; they move between states.
package lifecycle

import "fmt"

// State is stored in the lifecycle column of each table.
type State string

const (
	Active   State = "active"
	Inactive State = "inactive"
	Deleted  State = "deleted"
)

// transitions lists the allowed target states for each source state.
// Inactive is used by accounts (reversible), Deleted by everything else (terminal).
var transitions = map[State]map[State]bool{
	Active:   {Inactive: true, Deleted: true},
	Inactive: {Active: true},
	Deleted:  {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsActive reports whether the record is visible to normal reads.
func (s State) IsActive() bool {
	return s == Active
}

// CanTransition reports whether a record may move from s to next.
// Moving to the current state is always allowed and is a no-op.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	return transitions[s][next]
}

// Transition returns next when the move is allowed.
func (s State) Transition(next State) (State, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("cannot move record from %s to %s", s, next)
	}
	return next, nil
}
