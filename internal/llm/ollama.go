package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama is an LLM client for a local or remote Ollama server.
type Ollama struct {
	client *olla.Client
	model  string
}

// NewOllama creates a new Ollama client. An empty baseURL defaults to the
// standard local endpoint.
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}
	client := olla.NewClient(parsedURL, hc)
	return &Ollama{client: client, model: model}, nil
}

// GenerateContent runs a single non-streaming generation.
func (o *Ollama) GenerateContent(ctx context.Context, req *Request) (string, error) {
	var sb strings.Builder
	stream := false

	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:  o.model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: &stream,
	}, func(resp olla.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	return sb.String(), nil
}
