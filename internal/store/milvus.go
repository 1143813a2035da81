package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/enfinyte/umem/internal/core"
	milvusdb "github.com/enfinyte/umem/internal/database/milvus"
	"github.com/enfinyte/umem/pkg/logger"
)

// MilvusStore persists memories in a Milvus collection. Scalar columns mirror
// the tenant context and lifecycle so isolation filters run server-side; the
// payload column carries the full record.
type MilvusStore struct {
	client     client.Client
	collection string
	dimensions int
	log        *logger.Logger
}

// NewMilvusStore creates a store over an already-bootstrapped collection.
func NewMilvusStore(c client.Client, collection string, dimensions int, log *logger.Logger) *MilvusStore {
	return &MilvusStore{client: c, collection: collection, dimensions: dimensions, log: log}
}

// Insert persists a memory, replacing any existing record with the same id.
func (s *MilvusStore) Insert(ctx context.Context, m *core.Memory) error {
	if len(m.Embedding) != s.dimensions {
		return &DimensionMismatchError{Want: s.dimensions, Got: len(m.Embedding)}
	}
	payload, err := encodePayload(m)
	if err != nil {
		return &VectorStoreError{Op: "insert", Err: err}
	}

	cols := []entity.Column{
		entity.NewColumnVarChar(milvusdb.FieldID, []string{m.ID}),
		entity.NewColumnVarChar(milvusdb.FieldOwnerID, []string{m.Context.OwnerID}),
		entity.NewColumnVarChar(milvusdb.FieldAgentID, []string{m.Context.AgentID}),
		entity.NewColumnVarChar(milvusdb.FieldLifecycle, []string{string(m.Lifecycle)}),
		entity.NewColumnVarChar(milvusdb.FieldKind, []string{string(m.Kind)}),
		entity.NewColumnInt64(milvusdb.FieldCreatedAt, []int64{m.CreatedAt.UnixNano()}),
		entity.NewColumnVarChar(milvusdb.FieldPayload, []string{string(payload)}),
		entity.NewColumnFloatVector(milvusdb.FieldEmbedding, s.dimensions, [][]float32{m.Embedding}),
	}

	if _, err := s.client.Upsert(ctx, s.collection, "", cols...); err != nil {
		return &VectorStoreError{Op: "insert", Err: err}
	}
	return nil
}

// Fetch returns the memory with the given id if it is visible to tctx.
func (s *MilvusStore) Fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	m, err := s.fetch(ctx, tctx, id)
	if err != nil {
		return nil, err
	}
	if m.Lifecycle.IsDeleted() {
		return nil, ErrNotFound
	}
	return m, nil
}

// FetchAny returns the memory with the given id regardless of lifecycle state.
func (s *MilvusStore) FetchAny(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	return s.fetch(ctx, tctx, id)
}

func (s *MilvusStore) fetch(ctx context.Context, tctx core.TenantContext, id string) (*core.Memory, error) {
	expr := fmt.Sprintf("%s == \"%s\" && %s", milvusdb.FieldID, escapeExpr(id), tenantExpr(tctx))

	rs, err := s.client.Query(ctx, s.collection, nil, expr, []string{milvusdb.FieldPayload})
	if err != nil {
		return nil, &VectorStoreError{Op: "fetch", Err: err}
	}
	payloads := rs.GetColumn(milvusdb.FieldPayload)
	if payloads == nil || payloads.Len() == 0 {
		return nil, ErrNotFound
	}

	raw, err := payloads.GetAsString(0)
	if err != nil {
		return nil, &VectorStoreError{Op: "fetch", Err: err}
	}
	m, err := decodePayload([]byte(raw))
	if err != nil {
		return nil, &VectorStoreError{Op: "fetch", Err: err}
	}
	return m, nil
}

// Search ranks the tenant's memories by cosine similarity to q.Vector.
func (s *MilvusStore) Search(ctx context.Context, q *core.Query) ([]ScoredMemory, error) {
	if len(q.Vector) != s.dimensions {
		return nil, &DimensionMismatchError{Want: s.dimensions, Got: len(q.Vector)}
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, &VectorStoreError{Op: "search", Err: err}
	}

	results, err := s.client.Search(
		ctx,
		s.collection,
		nil,
		visibilityExpr(q),
		[]string{milvusdb.FieldPayload},
		[]entity.Vector{entity.FloatVector(q.Vector)},
		milvusdb.FieldEmbedding,
		entity.COSINE,
		candidateLimit(q),
		sp,
	)
	if err != nil {
		return nil, &VectorStoreError{Op: "search", Err: err}
	}

	var hits []ScoredMemory
	for _, result := range results {
		payloads := result.Fields.GetColumn(milvusdb.FieldPayload)
		if payloads == nil {
			continue
		}
		for i := 0; i < result.ResultCount; i++ {
			raw, err := payloads.GetAsString(i)
			if err != nil {
				return nil, &VectorStoreError{Op: "search", Err: err}
			}
			m, err := decodePayload([]byte(raw))
			if err != nil {
				s.log.WithError(err).WithField("collection", s.collection).Warn("skipping undecodable search hit")
				continue
			}
			if !q.Matches(m) {
				continue
			}
			hits = append(hits, ScoredMemory{Memory: m, Score: result.Scores[i]})
		}
	}
	return rankScored(hits, q.Limit), nil
}

// List returns the tenant's memories matching the query filters, newest first.
func (s *MilvusStore) List(ctx context.Context, q *core.Query) ([]*core.Memory, error) {
	rs, err := s.client.Query(
		ctx,
		s.collection,
		nil,
		visibilityExpr(q),
		[]string{milvusdb.FieldPayload},
		client.WithLimit(int64(candidateLimit(q))),
	)
	if err != nil {
		return nil, &VectorStoreError{Op: "list", Err: err}
	}

	payloads := rs.GetColumn(milvusdb.FieldPayload)
	if payloads == nil {
		return nil, nil
	}

	var memories []*core.Memory
	for i := 0; i < payloads.Len(); i++ {
		raw, err := payloads.GetAsString(i)
		if err != nil {
			return nil, &VectorStoreError{Op: "list", Err: err}
		}
		m, err := decodePayload([]byte(raw))
		if err != nil {
			s.log.WithError(err).WithField("collection", s.collection).Warn("skipping undecodable record")
			continue
		}
		if !q.Matches(m) {
			continue
		}
		memories = append(memories, m)
	}
	return sortNewestFirst(memories, q.Limit), nil
}

// Delete removes the record permanently. Soft-deleted records can still be
// purged; absent or foreign ids yield ErrNotFound.
func (s *MilvusStore) Delete(ctx context.Context, tctx core.TenantContext, id string) error {
	expr := fmt.Sprintf("%s == \"%s\" && %s", milvusdb.FieldID, escapeExpr(id), tenantExpr(tctx))

	rs, err := s.client.Query(ctx, s.collection, nil, expr, []string{milvusdb.FieldID})
	if err != nil {
		return &VectorStoreError{Op: "delete", Err: err}
	}
	ids := rs.GetColumn(milvusdb.FieldID)
	if ids == nil || ids.Len() == 0 {
		return ErrNotFound
	}

	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return &VectorStoreError{Op: "delete", Err: err}
	}
	return nil
}

// Close releases the Milvus connection.
func (s *MilvusStore) Close() error {
	return s.client.Close()
}

// tenantExpr builds the isolation filter. The agent column holds the empty
// string for user-scoped memories, so the equality check covers both scopes.
func tenantExpr(tctx core.TenantContext) string {
	return fmt.Sprintf("%s == \"%s\" && %s == \"%s\"",
		milvusdb.FieldOwnerID, escapeExpr(tctx.OwnerID),
		milvusdb.FieldAgentID, escapeExpr(tctx.AgentID))
}

// visibilityExpr narrows a query to the tenant's visible lifecycle states.
func visibilityExpr(q *core.Query) string {
	expr := tenantExpr(q.Context)
	if q.IncludeArchived {
		expr += fmt.Sprintf(" && %s != \"%s\"", milvusdb.FieldLifecycle, core.StateDeleted)
	} else {
		expr += fmt.Sprintf(" && %s == \"%s\"", milvusdb.FieldLifecycle, core.StateActive)
	}
	return expr
}

// candidateLimit over-fetches when in-process filters may discard candidates
// the server-side expression cannot see.
func candidateLimit(q *core.Query) int {
	limit := q.Limit
	if len(q.Kinds) > 0 || len(q.Tags) > 0 || q.Signals != nil || q.Temporal != nil {
		limit *= 4
	}
	if limit > 16384 {
		limit = 16384
	}
	return limit
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
