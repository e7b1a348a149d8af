package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLReader flattens an HTML filing to its visible text.
type HTMLReader struct{}

func (h *HTMLReader) SupportedFormats() []string { return []string{"htm", "html"} }

func (h *HTMLReader) ReadText(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening HTML: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	return HTMLText(doc), nil
}

// HTMLText returns the visible text of a parsed page with whitespace
// collapsed to single spaces.
func HTMLText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, head").Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return strings.Join(strings.Fields(root.Text()), " ")
}
