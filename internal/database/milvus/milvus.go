package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/enfinyte/umem/internal/config"
)

// Field names of the memory collection. The full record travels in the
// payload column; the scalar columns exist for server-side filtering.
const (
	FieldID        = "id"
	FieldOwnerID   = "owner_id"
	FieldAgentID   = "agent_id"
	FieldLifecycle = "lifecycle"
	FieldKind      = "kind"
	FieldCreatedAt = "created_at"
	FieldPayload   = "payload"
	FieldEmbedding = "embedding"
)

// NewClient connects to Milvus.
func NewClient(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", cfg.Address, err)
	}
	return c, nil
}

// EnsureCollection creates the memory collection, its vector index, and loads
// it, if it does not already exist. Safe to call on every startup.
func EnsureCollection(ctx context.Context, c client.Client, collection string, dimensions int) error {
	exists, err := c.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", collection, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(collection).
			WithDescription("annotated agent memories with embeddings").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldOwnerID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldAgentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldLifecycle).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
			WithField(entity.NewField().WithName(FieldKind).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
			WithField(entity.NewField().WithName(FieldCreatedAt).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldPayload).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dimensions)))

		if err := c.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %q: %w", collection, err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 96)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := c.CreateIndex(ctx, collection, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index on %q: %w", FieldEmbedding, err)
		}
	}

	if err := c.LoadCollection(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to load collection %q: %w", collection, err)
	}
	return nil
}
