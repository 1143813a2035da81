package controller

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enfinyte/umem/internal/annotation"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/embedding"
	"github.com/enfinyte/umem/internal/store"
	"github.com/enfinyte/umem/pkg/logger"
)

// DefaultLimit applies when a caller does not bound a listing or search.
const DefaultLimit = 10

// Annotator produces structured metadata for raw content.
type Annotator interface {
	Annotate(ctx context.Context, content string) (*annotation.Result, error)
}

// Controller orchestrates the capture path (annotate, embed, persist) and the
// retrieval path over a vector store. It holds no memory state of its own;
// every operation reads through to the store, so any number of controllers
// can safely share one backend.
type Controller struct {
	store     store.VectorStore
	embedder  embedding.Embedding
	annotator Annotator
	log       *logger.Logger
	now       func() time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source. Tests use it to make timestamps
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a Controller over the given collaborators.
func New(s store.VectorStore, e embedding.Embedding, a Annotator, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:     s,
		embedder:  e,
		annotator: a,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListOptions narrow a listing request.
type ListOptions struct {
	Limit           int
	IncludeArchived bool
	Kinds           []core.MemoryKind
	Tags            []string
	Signals         *core.SignalFilter
	Temporal        *core.TemporalFilter
}

// SearchOptions narrow a similarity search.
type SearchOptions struct {
	Limit           int
	IncludeArchived bool
	Kinds           []core.MemoryKind
	Tags            []string
	Signals         *core.SignalFilter
	Temporal        *core.TemporalFilter
}

// Create captures raw content as a new memory: the content is annotated, the
// summary embedded, and the assembled record persisted. Nothing is written
// until every upstream step has succeeded, so a failed call leaves no partial
// record behind.
func (c *Controller) Create(ctx context.Context, tctx core.TenantContext, content string) (*core.Memory, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}

	annotated, err := c.annotator.Annotate(ctx, content)
	if err != nil {
		return nil, err
	}
	vector, err := c.embedder.Embed(ctx, annotated.Summary)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	m := &core.Memory{
		ID:        uuid.New().String(),
		Context:   tctx,
		Content:   content,
		Summary:   annotated.Summary,
		Tags:      annotated.Tags,
		Kind:      annotated.Kind,
		Certainty: annotated.Certainty,
		Salience:  annotated.Salience,
		Lifecycle: core.StateActive,
		Embedding: vector,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	c.log.WithField("id", m.ID).WithField("kind", string(m.Kind)).Info("memory created")
	return m, nil
}

// Get returns the memory with the given id if it belongs to tctx.
func (c *Controller) Get(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}
	return c.store.Fetch(ctx, tctx, id)
}

// List returns the tenant's memories matching the options, newest first.
func (c *Controller) List(ctx context.Context, tctx core.TenantContext, opts ListOptions) ([]*core.Memory, error) {
	q := &core.Query{
		Context:         tctx,
		Limit:           defaultLimit(opts.Limit),
		IncludeArchived: opts.IncludeArchived,
		Kinds:           opts.Kinds,
		Tags:            opts.Tags,
		Signals:         opts.Signals,
		Temporal:        opts.Temporal,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.store.List(ctx, q)
}

// Search embeds the query text and returns the tenant's most similar
// memories, best first.
func (c *Controller) Search(ctx context.Context, tctx core.TenantContext, query string, opts SearchOptions) ([]store.ScoredMemory, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.ErrEmptyContent
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	q := &core.Query{
		Context:         tctx,
		Limit:           defaultLimit(opts.Limit),
		IncludeArchived: opts.IncludeArchived,
		Vector:          vector,
		Kinds:           opts.Kinds,
		Tags:            opts.Tags,
		Signals:         opts.Signals,
		Temporal:        opts.Temporal,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return c.store.Search(ctx, q)
}

// Update re-captures a memory with new content: it is re-annotated and
// re-embedded while keeping its id, context, lifecycle, and creation time.
func (c *Controller) Update(ctx context.Context, tctx core.TenantContext, id, content string) (*core.Memory, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}

	m, err := c.store.Fetch(ctx, tctx, id)
	if err != nil {
		return nil, err
	}

	annotated, err := c.annotator.Annotate(ctx, content)
	if err != nil {
		return nil, err
	}
	vector, err := c.embedder.Embed(ctx, annotated.Summary)
	if err != nil {
		return nil, err
	}

	m.Content = content
	m.Summary = annotated.Summary
	m.Tags = annotated.Tags
	m.Kind = annotated.Kind
	m.Certainty = annotated.Certainty
	m.Salience = annotated.Salience
	m.Embedding = vector
	m.MarkUpdated(c.now().UTC())
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	c.log.WithField("id", m.ID).Info("memory updated")
	return m, nil
}

// Transition moves a memory along the lifecycle graph and persists the
// result. Unsanctioned edges fail without touching the store. The record is
// read regardless of lifecycle state, so an edge out of Deleted fails as an
// invalid transition, not as absent.
func (c *Controller) Transition(ctx context.Context, tctx core.TenantContext, id string, to core.LifecycleState) (*core.Memory, error) {
	if err := tctx.Validate(); err != nil {
		return nil, err
	}

	m, err := c.store.FetchAny(ctx, tctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Transition(to, c.now().UTC()); err != nil {
		return nil, err
	}

	if err := c.store.Insert(ctx, m); err != nil {
		return nil, err
	}
	c.log.WithField("id", m.ID).WithField("lifecycle", string(m.Lifecycle)).Info("memory transitioned")
	return m, nil
}

// Delete soft-deletes a memory by transitioning it to the terminal state. The
// record stays in the store but is invisible to every retrieval path.
func (c *Controller) Delete(ctx context.Context, tctx core.TenantContext, id string) error {
	_, err := c.Transition(ctx, tctx, id, core.StateDeleted)
	return err
}

// Purge removes a memory record permanently, including soft-deleted ones.
func (c *Controller) Purge(ctx context.Context, tctx core.TenantContext, id string) error {
	if err := tctx.Validate(); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, tctx, id); err != nil {
		return err
	}
	c.log.WithField("id", id).Info("memory purged")
	return nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
