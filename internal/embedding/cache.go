package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/enfinyte/umem/pkg/logger"
)

// cachingEmbedder fronts an embedder with a redis cache keyed on the hashed
// input text. Embeddings are deterministic for a fixed model, so a hit can be
// served without touching the provider. Cache failures are logged and treated
// as misses.
type cachingEmbedder struct {
	inner  Embedding
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// WithCache wraps an embedder with a redis-backed cache. The prefix keeps
// vectors from different models apart.
func WithCache(inner Embedding, rdb *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) Embedding {
	return &cachingEmbedder{inner: inner, rdb: rdb, prefix: prefix, ttl: ttl, log: log}
}

func (c *cachingEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "umem:embedding:" + c.prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *cachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var vector []float32
		if err := json.Unmarshal([]byte(raw), &vector); err == nil {
			return vector, nil
		}
		c.log.WithField("key", key).Warn("discarding undecodable cached embedding")
	} else if err != redis.Nil {
		c.log.WithError(err).Warn("embedding cache read failed, falling through to provider")
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(vector); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.log.WithError(err).Warn("embedding cache write failed")
		}
	}
	return vector, nil
}

func (c *cachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}
