package core

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransitionEdges(t *testing.T) {
	cases := []struct {
		from, to LifecycleState
		want     bool
	}{
		{StateActive, StateArchived, true},
		{StateActive, StateDeleted, true},
		{StateArchived, StateActive, true},
		{StateArchived, StateDeleted, true},
		{StateActive, StateActive, false},
		{StateArchived, StateArchived, false},
		{StateDeleted, StateActive, false},
		{StateDeleted, StateArchived, false},
		{StateDeleted, StateDeleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseLifecycleState(t *testing.T) {
	for raw, want := range map[string]LifecycleState{
		"active":   StateActive,
		"Archived": StateArchived,
		" DELETED": StateDeleted,
	} {
		got, err := ParseLifecycleState(raw)
		if err != nil {
			t.Fatalf("ParseLifecycleState(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseLifecycleState(%q) = %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseLifecycleState("paused"); err == nil {
		t.Error("ParseLifecycleState(paused) succeeded, want error")
	}
}

func TestMemoryTransitionUpdatesTimestamp(t *testing.T) {
	m := validMemory()
	later := m.CreatedAt.Add(time.Hour)

	if err := m.Transition(StateArchived, later); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if m.Lifecycle != StateArchived {
		t.Errorf("Lifecycle = %s, want %s", m.Lifecycle, StateArchived)
	}
	if !m.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %s, want %s", m.UpdatedAt, later)
	}
}

func TestMemoryTransitionRejectsUnsanctionedEdge(t *testing.T) {
	m := validMemory()
	m.Lifecycle = StateDeleted

	err := m.Transition(StateActive, m.CreatedAt.Add(time.Hour))
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("Transition error = %v, want InvalidTransitionError", err)
	}
	if transitionErr.From != StateDeleted || transitionErr.To != StateActive {
		t.Errorf("error edge = %s -> %s, want Deleted -> Active", transitionErr.From, transitionErr.To)
	}
	if m.Lifecycle != StateDeleted {
		t.Errorf("failed transition mutated state to %s", m.Lifecycle)
	}
}

func TestMemoryRestoreAfterArchive(t *testing.T) {
	m := validMemory()
	now := m.CreatedAt

	for i, to := range []LifecycleState{StateArchived, StateActive, StateDeleted} {
		now = now.Add(time.Minute)
		if err := m.Transition(to, now); err != nil {
			t.Fatalf("step %d to %s: %v", i, to, err)
		}
	}
	if !m.Lifecycle.IsDeleted() {
		t.Errorf("final state = %s, want Deleted", m.Lifecycle)
	}
}
