package ingest

import (
	"bytes"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts the plain text of a PDF document.
type PDFLoader struct{}

// NewPDFLoader creates a PDF loader.
func NewPDFLoader() *PDFLoader { return &PDFLoader{} }

// Accepts reports whether the detected type is PDF.
func (*PDFLoader) Accepts(mtype *mimetype.MIME) bool {
	return mtype.Is("application/pdf")
}

// Load extracts the text content of the PDF at path.
func (*PDFLoader) Load(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}
