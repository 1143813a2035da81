package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Loader extracts plain text from one class of source so it can be captured
// as a memory.
type Loader interface {
	// Accepts reports whether the loader handles the detected MIME type.
	Accepts(mtype *mimetype.MIME) bool

	// Load extracts text from the file at path.
	Load(path string) (string, error)
}

// Registry dispatches files to loaders by sniffed content type, not by
// extension.
type Registry struct {
	loaders []Loader
}

// NewRegistry creates a registry with the built-in loaders registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewPDFLoader())
	r.Register(NewHTMLLoader())
	r.Register(newTextLoader())
	return r
}

// Register adds a loader. Earlier registrations take precedence.
func (r *Registry) Register(l Loader) {
	r.loaders = append(r.loaders, l)
}

// LoadFile detects the file's MIME type and extracts its text with the first
// accepting loader.
func (r *Registry) LoadFile(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect MIME type: %w", err)
	}
	for _, l := range r.loaders {
		if l.Accepts(mtype) {
			return l.Load(path)
		}
	}
	return "", fmt.Errorf("no loader found for MIME type: %s", mtype.String())
}

// textLoader handles anything text-like by reading it verbatim.
type textLoader struct{}

func newTextLoader() *textLoader { return &textLoader{} }

func (*textLoader) Accepts(mtype *mimetype.MIME) bool {
	return strings.HasPrefix(mtype.String(), "text/")
}

func (*textLoader) Load(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(raw), nil
}
