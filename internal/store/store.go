package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/enfinyte/umem/internal/core"
)

// ErrNotFound is returned when no visible record matches an id within the
// caller's tenant context. Cross-tenant hits surface as this same error so a
// probe cannot distinguish "absent" from "not yours".
var ErrNotFound = errors.New("memory not found")

// VectorStoreError wraps a backend failure with the operation that hit it.
type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// DimensionMismatchError is returned when a memory carries a vector whose
// width differs from the store's configured width.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: store expects %d, got %d", e.Want, e.Got)
}

// ScoredMemory pairs a search hit with its similarity score.
type ScoredMemory struct {
	Memory *core.Memory
	Score  float32
}

// VectorStore is the persistence interface the controller programs against.
// Implementations persist full memory records alongside their vectors and
// enforce the tenant boundary on every read.
type VectorStore interface {
	// Insert persists a memory, replacing any existing record with the same id.
	Insert(ctx context.Context, m *core.Memory) error

	// Fetch returns the memory with the given id if it is visible to tctx.
	// Deleted memories and other tenants' memories yield ErrNotFound.
	Fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error)

	// FetchAny returns the memory with the given id regardless of lifecycle
	// state. Lifecycle transitions read through it so an edge attempted on a
	// Deleted record fails as an invalid transition rather than as absent.
	// Other tenants' memories still yield ErrNotFound.
	FetchAny(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error)

	// Search ranks memories of q.Context by similarity to q.Vector, best
	// first, ties broken by newest creation time, truncated to q.Limit.
	Search(ctx context.Context, q *core.Query) ([]ScoredMemory, error)

	// List returns memories of q.Context matching the query filters, newest
	// creation time first, truncated to q.Limit.
	List(ctx context.Context, q *core.Query) ([]*core.Memory, error)

	// Delete removes the record with the given id permanently. Removing an
	// id that is absent or foreign yields ErrNotFound.
	Delete(ctx context.Context, tctx core.TenantContext, id string) error

	// Close releases the backend connection.
	Close() error
}

// cosineSimilarity computes the cosine of the angle between two equal-length
// vectors. A zero vector yields 0 rather than NaN.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rankScored orders hits by score descending, breaking ties by newest
// creation time so equal-score results are deterministic, then truncates to
// limit.
func rankScored(hits []ScoredMemory, limit int) []ScoredMemory {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// sortNewestFirst orders listings by newest creation time, then truncates to
// limit.
func sortNewestFirst(memories []*core.Memory, limit int) []*core.Memory {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
	if len(memories) > limit {
		memories = memories[:limit]
	}
	return memories
}

// encodePayload serializes a full memory record for storage alongside its
// vector.
func encodePayload(m *core.Memory) ([]byte, error) {
	return json.Marshal(m)
}

// decodePayload deserializes a stored record and re-validates it before it is
// handed to any caller.
func decodePayload(raw []byte) (*core.Memory, error) {
	var m core.Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode stored memory: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored memory is invalid: %w", err)
	}
	return &m, nil
}
