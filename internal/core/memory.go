package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyContent is returned when memory content is empty or whitespace.
var ErrEmptyContent = errors.New("memory content must not be empty or whitespace")

// ErrEmptySummary is returned when an annotation summary is empty or whitespace.
var ErrEmptySummary = errors.New("memory summary must not be empty or whitespace")

// ErrEmptyTag is returned when a tag is empty or whitespace.
var ErrEmptyTag = errors.New("memory tag must not be empty or whitespace")

// Memory is the persisted unit: annotated, embedded content owned by a tenant
// context. Fields are only mutated through lifecycle transitions and
// annotation re-runs driven by the controller; the id and context are
// immutable after creation.
type Memory struct {
	ID        string         `json:"id"`
	Context   TenantContext  `json:"context"`
	Content   string         `json:"content"`
	Summary   string         `json:"summary"`
	Tags      []string       `json:"tags"`
	Kind      MemoryKind     `json:"kind"`
	Certainty Credence       `json:"certainty"`
	Salience  Credence       `json:"salience"`
	Lifecycle LifecycleState `json:"lifecycle"`
	Embedding []float32      `json:"embedding"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NormalizeTags trims, lowercases, and de-duplicates a tag set while keeping
// insertion order. Empty tags are an error rather than silently dropped.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return nil, ErrEmptyTag
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return normalized, nil
}

// Validate checks the cross-field invariants a memory must hold at every
// observation. Backends run it on decoded payloads before handing the record
// to a caller.
func (m *Memory) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("memory id must not be empty")
	}
	if err := m.Context.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if strings.TrimSpace(m.Summary) == "" {
		return ErrEmptySummary
	}
	if m.UpdatedAt.Before(m.CreatedAt) {
		return fmt.Errorf("updated_at (%s) cannot be earlier than created_at (%s)", m.UpdatedAt, m.CreatedAt)
	}
	return nil
}

// Transition moves the memory to a new lifecycle state if the edge is
// sanctioned, bumping updated_at. This is the only way lifecycle changes.
func (m *Memory) Transition(to LifecycleState, now time.Time) error {
	if !m.Lifecycle.CanTransition(to) {
		return &InvalidTransitionError{From: m.Lifecycle, To: to}
	}
	m.Lifecycle = to
	m.MarkUpdated(now)
	return nil
}

// MarkUpdated advances updated_at, never letting it move backwards or before
// created_at.
func (m *Memory) MarkUpdated(now time.Time) {
	if now.Before(m.CreatedAt) {
		now = m.CreatedAt
	}
	if now.After(m.UpdatedAt) {
		m.UpdatedAt = now
	}
}

// HasTag reports whether the memory carries the given (already normalized) tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
