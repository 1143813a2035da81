package core

import (
	"fmt"
	"strings"
)

// LifecycleState tracks whether a memory is live, archived, or soft-deleted.
type LifecycleState string

const (
	// StateActive is the initial state of every memory.
	StateActive LifecycleState = "Active"
	// StateArchived memories are excluded from retrieval unless asked for.
	StateArchived LifecycleState = "Archived"
	// StateDeleted is terminal; no transition may originate from it.
	StateDeleted LifecycleState = "Deleted"
)

// InvalidTransitionError is returned when a lifecycle transition is not one of
// the sanctioned edges.
type InvalidTransitionError struct {
	From LifecycleState
	To   LifecycleState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition: %s -> %s", e.From, e.To)
}

// ParseLifecycleState converts a stored or user-supplied string into a state.
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StateActive, nil
	case "archived":
		return StateArchived, nil
	case "deleted":
		return StateDeleted, nil
	default:
		return "", fmt.Errorf("invalid lifecycle state: %q", s)
	}
}

// CanTransition reports whether from -> to is a sanctioned edge:
// Active -> Archived (archive), Archived -> Active (restore), and
// Active|Archived -> Deleted (purge). Deleted is terminal.
func (s LifecycleState) CanTransition(to LifecycleState) bool {
	switch s {
	case StateActive:
		return to == StateArchived || to == StateDeleted
	case StateArchived:
		return to == StateActive || to == StateDeleted
	default:
		return false
	}
}

// IsActive reports whether the state is Active.
func (s LifecycleState) IsActive() bool {
	return s == StateActive
}

// IsDeleted reports whether the state is the terminal Deleted state.
func (s LifecycleState) IsDeleted() bool {
	return s == StateDeleted
}
