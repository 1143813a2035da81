package llm

import (
	"context"
	"fmt"

	"github.com/enfinyte/umem/internal/config"
)

// Request carries a single text-generation call. System sets the instruction
// frame, Prompt is the user-visible input.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// LLM is the common interface every text-generation client implements. The
// annotation pipeline only needs single-shot completion.
type LLM interface {
	GenerateContent(ctx context.Context, req *Request) (string, error)
}

// NewClient builds an LLM client for the configured provider.
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("no api key configured for openai provider")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
