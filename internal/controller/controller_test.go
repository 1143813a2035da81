package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enfinyte/umem/internal/annotation"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/store"
	"github.com/enfinyte/umem/pkg/logger"
)

// memStore is an in-memory VectorStore with the same visibility semantics as
// the real backends.
type memStore struct {
	records map[string]*core.Memory
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*core.Memory)}
}

func (s *memStore) Insert(ctx context.Context, m *core.Memory) error {
	clone := *m
	s.records[m.ID] = &clone
	return nil
}

func (s *memStore) Fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	m, err := s.FetchAny(ctx, tctx, id)
	if err != nil {
		return nil, err
	}
	if m.Lifecycle.IsDeleted() {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (s *memStore) FetchAny(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	m, ok := s.records[id]
	if !ok || !m.Context.Equal(tctx) {
		return nil, store.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (s *memStore) Search(ctx context.Context, q *core.Query) ([]store.ScoredMemory, error) {
	var hits []store.ScoredMemory
	for _, m := range s.records {
		if !q.Matches(m) {
			continue
		}
		var dot float32
		for i := range q.Vector {
			dot += q.Vector[i] * m.Embedding[i]
		}
		clone := *m
		hits = append(hits, store.ScoredMemory{Memory: &clone, Score: dot})
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score ||
				(hits[j].Score == hits[i].Score && hits[j].Memory.CreatedAt.After(hits[i].Memory.CreatedAt)) {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (s *memStore) List(ctx context.Context, q *core.Query) ([]*core.Memory, error) {
	var memories []*core.Memory
	for _, m := range s.records {
		if !q.Matches(m) {
			continue
		}
		clone := *m
		memories = append(memories, &clone)
	}
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			if memories[j].CreatedAt.After(memories[i].CreatedAt) {
				memories[i], memories[j] = memories[j], memories[i]
			}
		}
	}
	if len(memories) > q.Limit {
		memories = memories[:q.Limit]
	}
	return memories, nil
}

func (s *memStore) Delete(ctx context.Context, tctx core.TenantContext, id string) error {
	m, ok := s.records[id]
	if !ok || !m.Context.Equal(tctx) {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) Close() error { return nil }

// fixedEmbedder returns preset vectors per text and fails on unknown input.
type fixedEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fixedAnnotator echoes the content as the summary.
type fixedAnnotator struct {
	err error
}

func (a *fixedAnnotator) Annotate(ctx context.Context, content string) (*annotation.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	certainty, _ := core.NewCredence(0.9)
	salience, _ := core.NewCredence(0.5)
	return &annotation.Result{
		Summary:   content,
		Tags:      []string{"test"},
		Kind:      core.KindSemantic,
		Certainty: certainty,
		Salience:  salience,
	}, nil
}

type fixture struct {
	store     *memStore
	embedder  *fixedEmbedder
	annotator *fixedAnnotator
	ctrl      *Controller
	clock     *time.Time
}

func newFixture() *fixture {
	s := newMemStore()
	e := &fixedEmbedder{vectors: map[string][]float32{}}
	a := &fixedAnnotator{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: s, embedder: e, annotator: a, clock: &now}
	f.ctrl = New(s, e, a, logger.New("test"), WithClock(func() time.Time {
		*f.clock = f.clock.Add(time.Second)
		return *f.clock
	}))
	return f
}

func tenant(t *testing.T) core.TenantContext {
	t.Helper()
	tctx, err := core.ForAgent("user-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	return tctx
}

func TestCreatePersistsAnnotatedMemory(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)

	m, err := f.ctrl.Create(context.Background(), tctx, "remember this fact")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID == "" {
		t.Error("created memory has no id")
	}
	if m.Lifecycle != core.StateActive {
		t.Errorf("Lifecycle = %s, want Active", m.Lifecycle)
	}
	if !m.UpdatedAt.Equal(m.CreatedAt) {
		t.Error("fresh memory has updated_at != created_at")
	}

	got, err := f.ctrl.Get(context.Background(), tctx, m.ID)
	if err != nil {
		t.Fatalf("Get after Create: %v", err)
	}
	if got.Summary != "remember this fact" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestCreateRejectsBlankInput(t *testing.T) {
	f := newFixture()
	if _, err := f.ctrl.Create(context.Background(), tenant(t), "   "); !errors.Is(err, core.ErrEmptyContent) {
		t.Errorf("error = %v, want ErrEmptyContent", err)
	}
	if _, err := f.ctrl.Create(context.Background(), core.TenantContext{}, "content"); err == nil {
		t.Error("blank tenant accepted")
	}
}

func TestCreateLeavesNoPartialWrites(t *testing.T) {
	f := newFixture()
	f.annotator.err = &annotation.ExhaustedError{Attempts: 3, Err: errors.New("model down")}

	_, err := f.ctrl.Create(context.Background(), tenant(t), "content")
	var exhausted *annotation.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ExhaustedError", err)
	}
	if len(f.store.records) != 0 {
		t.Error("failed create left a record behind")
	}

	f.annotator.err = nil
	f.embedder.err = errors.New("embedding down")
	if _, err := f.ctrl.Create(context.Background(), tenant(t), "content"); err == nil {
		t.Fatal("embed failure not surfaced")
	}
	if len(f.store.records) != 0 {
		t.Error("failed embed left a record behind")
	}
}

func TestGetEnforcesTenantIsolation(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "private fact")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := core.ForAgent("user-2", "agent-1")
	if _, err := f.ctrl.Get(context.Background(), other, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-owner get error = %v, want ErrNotFound", err)
	}

	userScope, _ := core.ForUser("user-1")
	if _, err := f.ctrl.Get(context.Background(), userScope, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("user-scope get of agent memory error = %v, want ErrNotFound", err)
	}
}

func TestSearchOrdersByScore(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)

	f.embedder.vectors["close"] = []float32{1, 0, 0}
	f.embedder.vectors["far"] = []float32{0, 1, 0}
	f.embedder.vectors["query"] = []float32{1, 0, 0}

	if _, err := f.ctrl.Create(context.Background(), tctx, "far"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Create(context.Background(), tctx, "close"); err != nil {
		t.Fatal(err)
	}

	hits, err := f.ctrl.Search(context.Background(), tctx, "query", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].Memory.Summary != "close" {
		t.Errorf("best hit = %q, want close", hits[0].Memory.Summary)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not in descending score order")
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	for _, content := range []string{"a", "b", "c"} {
		if _, err := f.ctrl.Create(context.Background(), tctx, content); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := f.ctrl.Search(context.Background(), tctx, "query", SearchOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("len(hits) = %d, want 2", len(hits))
	}
}

func TestDeleteHidesFromRetrieval(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "ephemeral")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.ctrl.Delete(context.Background(), tctx, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := f.ctrl.Get(context.Background(), tctx, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get after delete error = %v, want ErrNotFound", err)
	}
	hits, err := f.ctrl.Search(context.Background(), tctx, "ephemeral", SearchOptions{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Error("deleted memory surfaced in search")
	}
	// The record still exists physically; only visibility is gone.
	if len(f.store.records) != 1 {
		t.Error("soft delete removed the record")
	}

	// Deleted is terminal, so deleting again is an invalid transition rather
	// than a missing record.
	err = f.ctrl.Delete(context.Background(), tctx, m.ID)
	var transitionErr *core.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Errorf("second delete error = %v, want InvalidTransitionError", err)
	}
}

func TestTransitionOutOfDeletedIsInvalid(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "terminal")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.Delete(context.Background(), tctx, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, to := range []core.LifecycleState{core.StateActive, core.StateArchived} {
		_, err := f.ctrl.Transition(context.Background(), tctx, m.ID, to)
		var transitionErr *core.InvalidTransitionError
		if !errors.As(err, &transitionErr) {
			t.Errorf("transition to %s error = %v, want InvalidTransitionError", to, err)
			continue
		}
		if transitionErr.From != core.StateDeleted {
			t.Errorf("From = %s, want Deleted", transitionErr.From)
		}
	}

	// An id that was never created is still absent, not a transition failure.
	if _, err := f.ctrl.Transition(context.Background(), tctx, "missing", core.StateArchived); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("transition of missing id error = %v, want ErrNotFound", err)
	}
}

func TestPurgeRemovesRecord(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "gone for good")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.ctrl.Purge(context.Background(), tctx, m.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(f.store.records) != 0 {
		t.Error("purge left the record behind")
	}
	if err := f.ctrl.Purge(context.Background(), tctx, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second purge error = %v, want ErrNotFound", err)
	}
}

func TestTransitionArchiveAndRestore(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "archive me")
	if err != nil {
		t.Fatal(err)
	}

	archived, err := f.ctrl.Transition(context.Background(), tctx, m.ID, core.StateArchived)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Lifecycle != core.StateArchived {
		t.Errorf("Lifecycle = %s, want Archived", archived.Lifecycle)
	}

	// Archived memories are hidden from default listings but reachable on
	// request.
	visible, err := f.ctrl.List(context.Background(), tctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 0 {
		t.Error("archived memory in default listing")
	}
	all, err := f.ctrl.List(context.Background(), tctx, ListOptions{IncludeArchived: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Error("archived memory missing from IncludeArchived listing")
	}

	restored, err := f.ctrl.Transition(context.Background(), tctx, m.ID, core.StateActive)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Lifecycle.IsActive() {
		t.Errorf("Lifecycle = %s, want Active", restored.Lifecycle)
	}
}

func TestTransitionRejectsRedundantEdge(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "already active")
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.ctrl.Transition(context.Background(), tctx, m.ID, core.StateActive)
	var transitionErr *core.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Errorf("error = %v, want InvalidTransitionError", err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)

	first, err := f.ctrl.Create(context.Background(), tctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.ctrl.Create(context.Background(), tctx, "second")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatal("clock did not advance between creates")
	}

	memories, err := f.ctrl.List(context.Background(), tctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(memories) != 2 || memories[0].Summary != "second" {
		t.Errorf("listing order wrong: %+v", memories)
	}
}

func TestUpdateReannotatesInPlace(t *testing.T) {
	f := newFixture()
	tctx := tenant(t)
	m, err := f.ctrl.Create(context.Background(), tctx, "old content")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := f.ctrl.Update(context.Background(), tctx, m.ID, "new content")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != m.ID {
		t.Error("update changed the id")
	}
	if !updated.CreatedAt.Equal(m.CreatedAt) {
		t.Error("update changed created_at")
	}
	if !updated.UpdatedAt.After(m.UpdatedAt) {
		t.Error("update did not advance updated_at")
	}
	if updated.Summary != "new content" {
		t.Errorf("Summary = %q, want new content", updated.Summary)
	}
}
