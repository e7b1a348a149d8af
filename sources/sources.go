// Package sources holds the document model shared by every pipeline stage:
// ordered, citable source records with their cluster labels and embeddings.
package sources

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is the modality of a single source record.
type Type string

const (
	TypeText  Type = "text"
	TypeTable Type = "table"
)

// NormalizeType maps any raw ingestion type onto text or table.
func NormalizeType(raw string) Type {
	if strings.EqualFold(strings.TrimSpace(raw), string(TypeTable)) {
		return TypeTable
	}
	return TypeText
}

// IdentifierPrefix is the stem of every source identifier ("Source_42").
const IdentifierPrefix = "Source"

// Identifier formats the identifier for the given ordinal.
func Identifier(ordinal int) string {
	return IdentifierPrefix + "_" + strconv.Itoa(ordinal)
}

// Ordinal parses the numeric suffix of an identifier such as "Source_42".
func Ordinal(id string) (int, error) {
	i := strings.LastIndexAny(id, "_ ")
	if i < 0 || i == len(id)-1 {
		return 0, fmt.Errorf("source identifier %q has no ordinal", id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, fmt.Errorf("source identifier %q: %w", id, err)
	}
	return n, nil
}

// Record is one atomic, citable unit of a document.
type Record struct {
	Content    string    `json:"content"`
	TextOnly   string    `json:"text_only,omitempty"`
	Identifier string    `json:"source_identifier"`
	Type       Type      `json:"type"`
	Cluster    int       `json:"cluster"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// EmbedText is the text used for embeddings and word counts. Tables parsed
// from LaTeX or HTML carry a plain-text rendition that reads better than
// the raw markup.
func (r Record) EmbedText() string {
	if r.TextOnly != "" {
		return r.TextOnly
	}
	return r.Content
}

// Document is an ordered sequence of records sharing a file name. Order is
// meaningful: adjacent records are adjacent in the source text.
type Document struct {
	FileName string   `json:"file_name"`
	Records  []Record `json:"records"`

	index map[string]int
}

// NewDocument builds a document and its identifier index.
func NewDocument(fileName string, records []Record) *Document {
	d := &Document{FileName: fileName, Records: records}
	d.reindex()
	return d
}

func (d *Document) reindex() {
	d.index = make(map[string]int, len(d.Records))
	for i, r := range d.Records {
		d.index[r.Identifier] = i
	}
}

// Len returns the number of records.
func (d *Document) Len() int { return len(d.Records) }

// Position returns the index of the record with the given identifier.
func (d *Document) Position(id string) (int, bool) {
	if d.index == nil {
		d.reindex()
	}
	i, ok := d.index[id]
	return i, ok
}

// Lookup returns the record with the given identifier.
func (d *Document) Lookup(id string) (Record, bool) {
	i, ok := d.Position(id)
	if !ok {
		return Record{}, false
	}
	return d.Records[i], true
}

// ErrOrdering is returned by Validate when identifier ordinals do not
// strictly increase with position.
var ErrOrdering = errors.New("sources: identifier ordinals not strictly increasing")

// Validate checks the ordering invariant of the document.
func (d *Document) Validate() error {
	prev := -1
	for i, r := range d.Records {
		n, err := Ordinal(r.Identifier)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if n <= prev {
			return fmt.Errorf("%w: %s at position %d", ErrOrdering, r.Identifier, i)
		}
		prev = n
	}
	return nil
}

// WithClusters returns a copy of the document with the given embeddings and
// cluster labels attached. Both slices must be index-aligned with Records.
func (d *Document) WithClusters(embeddings [][]float32, labels []int) (*Document, error) {
	if len(embeddings) != len(d.Records) || len(labels) != len(d.Records) {
		return nil, fmt.Errorf("sources: %d records, %d embeddings, %d labels",
			len(d.Records), len(embeddings), len(labels))
	}
	out := make([]Record, len(d.Records))
	for i, r := range d.Records {
		r.Embedding = embeddings[i]
		r.Cluster = labels[i]
		out[i] = r
	}
	return NewDocument(d.FileName, out), nil
}

// ClusterIDs returns the distinct cluster ids in order of first appearance.
func (d *Document) ClusterIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, r := range d.Records {
		if !seen[r.Cluster] {
			seen[r.Cluster] = true
			ids = append(ids, r.Cluster)
		}
	}
	return ids
}

// MaxOrdinal returns the ordinal of the last record.
func (d *Document) MaxOrdinal() int {
	if len(d.Records) == 0 {
		return 0
	}
	n, _ := Ordinal(d.Records[len(d.Records)-1].Identifier)
	return n
}

// WordCount counts whitespace-separated words of the records in [from, to].
func (d *Document) WordCount(from, to int) int {
	if from < 0 {
		from = 0
	}
	if to >= len(d.Records) {
		to = len(d.Records) - 1
	}
	n := 0
	for i := from; i <= to; i++ {
		n += len(strings.Fields(d.Records[i].EmbedText()))
	}
	return n
}

// Text joins the content of all records, separated by blank lines.
func (d *Document) Text() string {
	parts := make([]string, len(d.Records))
	for i, r := range d.Records {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n\n")
}
