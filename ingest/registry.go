// Package ingest loads the pipeline's inputs: source tables of parsed
// records (CSV or XLSX) and the raw text of original documents for
// full-document answering.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Reader extracts the plain text of a raw document.
type Reader interface {
	ReadText(ctx context.Context, path string) (string, error)
	SupportedFormats() []string
}

// Registry maps file extensions to readers.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry returns a registry with the built-in PDF, HTML and plain
// text readers.
func NewRegistry() *Registry {
	r := &Registry{readers: make(map[string]Reader)}
	for _, rd := range []Reader{&PDFReader{}, &HTMLReader{}, &TextReader{}} {
		for _, f := range rd.SupportedFormats() {
			r.readers[f] = rd
		}
	}
	return r
}

// Get returns the reader for a format such as "pdf".
func (r *Registry) Get(format string) (Reader, error) {
	rd, ok := r.readers[format]
	if !ok {
		return nil, fmt.Errorf("no reader for format: %s", format)
	}
	return rd, nil
}

// Register adds or replaces the reader for a format.
func (r *Registry) Register(format string, rd Reader) {
	r.readers[format] = rd
}

// Formats lists the registered formats.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.readers))
	for f := range r.readers {
		out = append(out, f)
	}
	return out
}

// RawText reads a document with the reader registered for its extension.
func (r *Registry) RawText(ctx context.Context, path string) (string, error) {
	rd, err := r.Get(Format(path))
	if err != nil {
		return "", err
	}
	text, err := rd.ReadText(ctx, path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// Format is the lower-cased extension of path without the dot.
func Format(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
