package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
)

// HTMLLoader converts HTML documents to markdown, which reads far better as
// memory content than raw markup.
type HTMLLoader struct{}

// NewHTMLLoader creates an HTML loader.
func NewHTMLLoader() *HTMLLoader { return &HTMLLoader{} }

// Accepts reports whether the detected type is HTML.
func (*HTMLLoader) Accepts(mtype *mimetype.MIME) bool {
	return mtype.Is("text/html")
}

// Load converts the HTML file at path to markdown.
func (*HTMLLoader) Load(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return markdown, nil
}

// WebLoader fetches a URL and converts the response body to markdown.
type WebLoader struct {
	client *http.Client
}

// NewWebLoader creates a web loader with a bounded request timeout.
func NewWebLoader() *WebLoader {
	return &WebLoader{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads the page at url and returns its text as markdown.
func (w *WebLoader) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return markdown, nil
}
