package embedding

import (
	"context"
	"fmt"

	"github.com/enfinyte/umem/internal/config"
	"github.com/enfinyte/umem/pkg/retry"
)

// Embedding is the interface every embedding model client implements.
type Embedding interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Error marks an embedding failure after the retry budget is spent. The
// attempt count records how much of the budget was consumed.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DimensionMismatchError is returned when a provider produces a vector whose
// width differs from the configured deployment width.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// NewEmbedder builds an embedding client for the configured provider.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedding, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "gemini":
		return NewGeminiModel(cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// WithRetry wraps an embedder with bounded exponential backoff and a
// dimension check on every produced vector. Exhaustion surfaces as *Error;
// a mismatched width is permanent and fails without further attempts.
func WithRetry(inner Embedding, policy retry.Policy, dimensions int) Embedding {
	return &retryingEmbedder{inner: inner, policy: policy, dimensions: dimensions}
}

type retryingEmbedder struct {
	inner      Embedding
	policy     retry.Policy
	dimensions int
}

func (r *retryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	attempts, err := r.policy.Do(ctx, func() error {
		v, err := r.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) != r.dimensions {
			return retry.Permanent(&DimensionMismatchError{Want: r.dimensions, Got: len(v)})
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, &Error{Attempts: attempts, Err: err}
	}
	return vector, nil
}

func (r *retryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempts, err := r.policy.Do(ctx, func() error {
		vs, err := r.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for _, v := range vs {
			if len(v) != r.dimensions {
				return retry.Permanent(&DimensionMismatchError{Want: r.dimensions, Got: len(v)})
			}
		}
		vectors = vs
		return nil
	})
	if err != nil {
		return nil, &Error{Attempts: attempts, Err: err}
	}
	return vectors, nil
}
