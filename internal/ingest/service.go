package ingest

import "context"

// Service bundles the file loaders and the web fetcher behind one surface for
// the front ends.
type Service struct {
	registry *Registry
	web      *WebLoader
}

// NewService creates a Service with the built-in loaders.
func NewService() *Service {
	return &Service{
		registry: NewRegistry(),
		web:      NewWebLoader(),
	}
}

// LoadFile extracts text from a local file by sniffed content type.
func (s *Service) LoadFile(path string) (string, error) {
	return s.registry.LoadFile(path)
}

// Fetch downloads a URL and returns its text as markdown.
func (s *Service) Fetch(ctx context.Context, url string) (string, error) {
	return s.web.Fetch(ctx, url)
}
