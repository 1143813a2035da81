package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidLimit is returned when a query limit is zero or negative.
var ErrInvalidLimit = errors.New("query limit must be greater than zero")

// ErrInvalidQuery marks a query whose filters are malformed. Concrete causes
// wrap it.
var ErrInvalidQuery = errors.New("invalid query")

// SignalFilter restricts results by minimum certainty and salience.
type SignalFilter struct {
	MinCertainty *float32
	MinSalience  *float32
}

// TemporalFilter restricts results by creation and update time ranges.
// A nil bound leaves that side open.
type TemporalFilter struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}

// Query describes a retrieval request against the vector store. With a Vector
// it is a similarity search; without one it is a listing request. All fields
// besides Context and Limit are optional narrowing filters.
type Query struct {
	Context         TenantContext
	Limit           int
	IncludeArchived bool
	Vector          []float32
	Kinds           []MemoryKind
	Tags            []string
	Signals         *SignalFilter
	Temporal        *TemporalFilter
}

// Validate checks the query at the single construction boundary. Backends can
// assume a validated query.
func (q *Query) Validate() error {
	if err := q.Context.Validate(); err != nil {
		return err
	}
	if q.Limit <= 0 {
		return ErrInvalidLimit
	}
	if q.Signals != nil {
		if c := q.Signals.MinCertainty; c != nil && (*c < 0 || *c > 1) {
			return fmt.Errorf("%w: min_certainty must be in range [0.0, 1.0], got %v", ErrInvalidQuery, *c)
		}
		if s := q.Signals.MinSalience; s != nil && (*s < 0 || *s > 1) {
			return fmt.Errorf("%w: min_salience must be in range [0.0, 1.0], got %v", ErrInvalidQuery, *s)
		}
	}
	if q.Temporal != nil {
		if a, b := q.Temporal.CreatedAfter, q.Temporal.CreatedBefore; a != nil && b != nil && a.After(*b) {
			return fmt.Errorf("%w: created range start (%s) is after end (%s)", ErrInvalidQuery, a, b)
		}
		if a, b := q.Temporal.UpdatedAfter, q.Temporal.UpdatedBefore; a != nil && b != nil && a.After(*b) {
			return fmt.Errorf("%w: updated range start (%s) is after end (%s)", ErrInvalidQuery, a, b)
		}
	}
	return nil
}

// Matches evaluates the full query predicate against a memory. Backends apply
// it to every candidate before returning it, which also enforces the tenant
// boundary on records a backend filter may have let through. Deleted memories
// never match, regardless of IncludeArchived.
func (q *Query) Matches(m *Memory) bool {
	if !m.Context.Equal(q.Context) {
		return false
	}
	if m.Lifecycle.IsDeleted() {
		return false
	}
	if !q.IncludeArchived && m.Lifecycle == StateArchived {
		return false
	}
	if len(q.Kinds) > 0 && !containsKind(q.Kinds, m.Kind) {
		return false
	}
	for _, tag := range q.Tags {
		if !m.HasTag(tag) {
			return false
		}
	}
	if q.Signals != nil {
		if c := q.Signals.MinCertainty; c != nil && m.Certainty.Float32() < *c {
			return false
		}
		if s := q.Signals.MinSalience; s != nil && m.Salience.Float32() < *s {
			return false
		}
	}
	if t := q.Temporal; t != nil {
		if t.CreatedAfter != nil && m.CreatedAt.Before(*t.CreatedAfter) {
			return false
		}
		if t.CreatedBefore != nil && m.CreatedAt.After(*t.CreatedBefore) {
			return false
		}
		if t.UpdatedAfter != nil && m.UpdatedAt.Before(*t.UpdatedAfter) {
			return false
		}
		if t.UpdatedBefore != nil && m.UpdatedAt.After(*t.UpdatedBefore) {
			return false
		}
	}
	return true
}

func containsKind(kinds []MemoryKind, k MemoryKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
