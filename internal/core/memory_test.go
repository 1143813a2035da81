package core

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func validMemory() *Memory {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	certainty, _ := NewCredence(0.9)
	salience, _ := NewCredence(0.6)
	tctx, _ := ForAgent("user-1", "agent-1")
	return &Memory{
		ID:        "mem-1",
		Context:   tctx,
		Content:   "the user prefers dark mode in all editors",
		Summary:   "user prefers dark mode",
		Tags:      []string{"preference", "editor"},
		Kind:      KindInstruction,
		Certainty: certainty,
		Salience:  salience,
		Lifecycle: StateActive,
		Embedding: []float32{0.1, 0.2, 0.3},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestNormalizeTags(t *testing.T) {
	got, err := NormalizeTags([]string{" Editor", "editor", "DARK-MODE", "preference"})
	if err != nil {
		t.Fatalf("NormalizeTags: %v", err)
	}
	want := []string{"editor", "dark-mode", "preference"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestNormalizeTagsRejectsEmpty(t *testing.T) {
	if _, err := NormalizeTags([]string{"ok", "  "}); !errors.Is(err, ErrEmptyTag) {
		t.Errorf("NormalizeTags error = %v, want ErrEmptyTag", err)
	}
}

func TestMemoryValidate(t *testing.T) {
	if err := validMemory().Validate(); err != nil {
		t.Fatalf("valid memory rejected: %v", err)
	}

	m := validMemory()
	m.Content = "   "
	if err := m.Validate(); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty content error = %v, want ErrEmptyContent", err)
	}

	m = validMemory()
	m.Summary = ""
	if err := m.Validate(); !errors.Is(err, ErrEmptySummary) {
		t.Errorf("empty summary error = %v, want ErrEmptySummary", err)
	}

	m = validMemory()
	m.Context = TenantContext{}
	var ctxErr *ContextError
	if err := m.Validate(); !errors.As(err, &ctxErr) {
		t.Errorf("missing context error = %v, want ContextError", err)
	}

	m = validMemory()
	m.UpdatedAt = m.CreatedAt.Add(-time.Second)
	if err := m.Validate(); err == nil {
		t.Error("updated_at before created_at accepted")
	}
}

func TestMarkUpdatedIsMonotonic(t *testing.T) {
	m := validMemory()
	later := m.CreatedAt.Add(time.Hour)
	m.MarkUpdated(later)

	// Moving the clock backwards must not move updated_at backwards.
	m.MarkUpdated(m.CreatedAt.Add(time.Minute))
	if !m.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %s, want %s", m.UpdatedAt, later)
	}

	// A clock before created_at clamps to created_at.
	m2 := validMemory()
	m2.MarkUpdated(m2.CreatedAt.Add(-time.Hour))
	if !m2.UpdatedAt.Equal(m2.CreatedAt) {
		t.Errorf("UpdatedAt = %s, want %s", m2.UpdatedAt, m2.CreatedAt)
	}
}

func TestTenantContextConstruction(t *testing.T) {
	if _, err := ForUser("  "); err == nil {
		t.Error("ForUser with blank owner accepted")
	}
	if _, err := ForAgent("user-1", " "); err == nil {
		t.Error("ForAgent with blank agent accepted")
	}

	user, err := ForUser("user-1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if user.HasAgent() {
		t.Error("user-scoped context reports an agent")
	}

	agent, err := ForAgent("user-1", "agent-1")
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if agent.Equal(user) {
		t.Error("agent-scoped context equals user-scoped context")
	}
	if !agent.Equal(TenantContext{OwnerID: "user-1", AgentID: "agent-1"}) {
		t.Error("identical contexts not equal")
	}
}
