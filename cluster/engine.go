// Package cluster embeds the records of a document and groups them into
// semantic clusters with k-means.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/sources"
)

const (
	// MaxBatchSize is the largest number of texts sent in one embedding
	// request.
	MaxBatchSize = 100

	// Placeholder replaces every text of a batch the provider rejected.
	Placeholder = "NA"
)

// ErrNoEmbeddings is returned when no batch of a document could be embedded,
// so not even the vector dimension is known.
var ErrNoEmbeddings = errors.New("cluster: no embeddings returned")

// Options configures an Engine.
type Options struct {
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// Engine embeds and clusters documents. It is not safe for concurrent use:
// it owns the random source that seeds k-means.
type Engine struct {
	dispatcher *dispatch.Dispatcher
	batchSize  int
	rng        *rand.Rand
}

// NewEngine creates an engine. Batch sizes outside [1, MaxBatchSize] are
// clamped.
func NewEngine(d *dispatch.Dispatcher, opts Options, rng *rand.Rand) *Engine {
	size := opts.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	return &Engine{dispatcher: d, batchSize: size, rng: rng}
}

// Batches splits texts into consecutive slices of at most size entries.
func Batches(texts []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(texts); start += size {
		out = append(out, texts[start:min(start+size, len(texts))])
	}
	return out
}

// Embed returns one vector per text, in input order. Batches are embedded
// concurrently; a rejected batch is retried once with every text replaced by
// Placeholder, and a batch that fails again gets zero vectors.
func (e *Engine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batches := Batches(texts, e.batchSize)

	results := e.dispatcher.EmbedRetry(ctx, batches, dispatch.RetryPolicy{MaxAttempts: 2},
		func(i, _ int) ([]string, bool) {
			slog.Warn("cluster: embedding batch failed, retrying with placeholders",
				"batch", i, "size", len(batches[i]))
			placeholder := make([]string, len(batches[i]))
			for j := range placeholder {
				placeholder[j] = Placeholder
			}
			return placeholder, true
		})

	dim := 0
	for _, r := range results {
		if r.Err == nil && len(r.Vectors) > 0 {
			dim = len(r.Vectors[len(r.Vectors)-1])
		}
	}
	if dim == 0 {
		return nil, ErrNoEmbeddings
	}

	out := make([][]float32, 0, len(texts))
	for i, r := range results {
		if r.Err != nil || len(r.Vectors) != len(batches[i]) {
			slog.Warn("cluster: using zero vectors for failed batch",
				"batch", i, "size", len(batches[i]), "error", r.Err)
			for range batches[i] {
				out = append(out, make([]float32, dim))
			}
			continue
		}
		out = append(out, r.Vectors...)
	}
	return out, nil
}

// ClusterDocument embeds every record of doc and labels it with a cluster.
// The input document is left untouched.
func (e *Engine) ClusterDocument(ctx context.Context, doc *sources.Document) (*sources.Document, error) {
	start := time.Now()
	texts := make([]string, doc.Len())
	for i, r := range doc.Records {
		texts[i] = strings.TrimSpace(r.EmbedText())
		if texts[i] == "" {
			texts[i] = Placeholder
		}
	}

	embeddings, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", doc.FileName, err)
	}

	k := ClusterCount(doc.Len())
	labels := KMeans(e.rng, embeddings, k)
	out, err := doc.WithClusters(embeddings, labels)
	if err != nil {
		return nil, err
	}

	slog.Info("cluster: document clustered",
		"file", doc.FileName,
		"records", doc.Len(),
		"clusters", k,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}
