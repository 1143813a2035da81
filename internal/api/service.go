package api

import (
	"context"

	"github.com/enfinyte/umem/internal/controller"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/store"
)

// MemoryService is the surface the HTTP handlers program against. The
// controller satisfies it; tests substitute a stub.
type MemoryService interface {
	Create(ctx context.Context, tctx core.TenantContext, content string) (*core.Memory, error)
	Get(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error)
	List(ctx context.Context, tctx core.TenantContext, opts controller.ListOptions) ([]*core.Memory, error)
	Search(ctx context.Context, tctx core.TenantContext, query string, opts controller.SearchOptions) ([]store.ScoredMemory, error)
	Update(ctx context.Context, tctx core.TenantContext, id, content string) (*core.Memory, error)
	Transition(ctx context.Context, tctx core.TenantContext, id string, to core.LifecycleState) (*core.Memory, error)
	Delete(ctx context.Context, tctx core.TenantContext, id string) error
	Purge(ctx context.Context, tctx core.TenantContext, id string) error
}
