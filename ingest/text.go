package ingest

import (
	"context"
	"fmt"
	"os"
)

// TextReader returns plain text and LaTeX sources verbatim.
type TextReader struct{}

func (p *TextReader) SupportedFormats() []string { return []string{"txt", "tex", "md"} }

func (p *TextReader) ReadText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}
	return string(data), nil
}
