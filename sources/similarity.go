package sources

import (
	"context"
	"math"
	"sort"
)

// Match is a record ranked by similarity to a query vector.
type Match struct {
	Identifier string  `json:"source_identifier"`
	Similarity float64 `json:"similarity"`
}

// Searcher finds the records of a document most similar to a query vector.
type Searcher interface {
	SimilarSources(ctx context.Context, doc *Document, query []float32, exclude []string, k int) ([]Match, error)
}

// MemorySearcher ranks records by cosine similarity of their in-memory
// embeddings.
type MemorySearcher struct{}

// SimilarSources returns the top-k records not listed in exclude, most
// similar first. Records without an embedding are skipped.
func (MemorySearcher) SimilarSources(_ context.Context, doc *Document, query []float32, exclude []string, k int) ([]Match, error) {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var matches []Match
	for _, r := range doc.Records {
		if skip[r.Identifier] || len(r.Embedding) == 0 {
			continue
		}
		matches = append(matches, Match{
			Identifier: r.Identifier,
			Similarity: CosineSimilarity(query, r.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// CosineSimilarity of two vectors; 0 when either has zero norm or the
// lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ExpandNeighbors adds the ordinal neighbours (n-1, n+1) of every identifier
// and returns the positions of all identifiers present in the document, in
// document order.
func ExpandNeighbors(doc *Document, ids []string) []int {
	want := make(map[string]bool, len(ids)*3)
	for _, id := range ids {
		want[id] = true
		n, err := Ordinal(id)
		if err != nil {
			continue
		}
		want[Identifier(n-1)] = true
		want[Identifier(n+1)] = true
	}

	var positions []int
	for i, r := range doc.Records {
		if want[r.Identifier] {
			positions = append(positions, i)
		}
	}
	return positions
}
