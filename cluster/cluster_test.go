package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/sources"
)

type fakeEmbedder struct {
	reject func(texts []string) bool
}

func (f *fakeEmbedder) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.reject != nil && f.reject(texts) {
		return nil, errors.New("rejected")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func newEngine(p llm.Provider, batch int) *Engine {
	return NewEngine(dispatch.New(p, dispatch.Options{Concurrency: 4}), Options{BatchSize: batch}, rand.New(rand.NewPCG(7, 7)))
}

func TestClusterCount(t *testing.T) {
	assert.Equal(t, 1, ClusterCount(0))
	assert.Equal(t, 1, ClusterCount(14))
	assert.Equal(t, 1, ClusterCount(15))
	assert.Equal(t, 2, ClusterCount(30))
	assert.Equal(t, 6, ClusterCount(99))
}

func TestBatches(t *testing.T) {
	texts := make([]string, 250)
	b := Batches(texts, 100)
	require.Len(t, b, 3)
	assert.Len(t, b[2], 50)
}

func TestEmbedKeepsCardinality(t *testing.T) {
	texts := make([]string, 230)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	vecs, err := newEngine(&fakeEmbedder{}, 0).Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 230)
	assert.Equal(t, float32(len("text 229")), vecs[229][0])
}

func TestEmbedPlaceholderRetry(t *testing.T) {
	// The second batch is rejected until it is replaced by placeholders.
	p := &fakeEmbedder{reject: func(texts []string) bool { return texts[0] == "poison" }}
	texts := []string{"a", "b", "poison", "c"}
	vecs, err := newEngine(p, 2).Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Equal(t, float32(len(Placeholder)), vecs[2][0])
}

func TestEmbedZeroVectorFallback(t *testing.T) {
	// Placeholders are rejected too, so the batch falls back to zero vectors.
	p := &fakeEmbedder{reject: func(texts []string) bool { return texts[0] == "poison" || texts[0] == Placeholder }}
	vecs, err := newEngine(p, 2).Embed(context.Background(), []string{"a", "b", "poison", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Equal(t, []float32{0, 0}, vecs[2])
	assert.Equal(t, []float32{0, 0}, vecs[3])
}

func TestEmbedAllFailed(t *testing.T) {
	p := &fakeEmbedder{reject: func([]string) bool { return true }}
	_, err := newEngine(p, 2).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrNoEmbeddings)
}

func TestKMeansSeparatesGroups(t *testing.T) {
	var vecs [][]float32
	for i := 0; i < 20; i++ {
		vecs = append(vecs, []float32{0 + float32(i)*0.01, 0})
	}
	for i := 0; i < 20; i++ {
		vecs = append(vecs, []float32{10 + float32(i)*0.01, 10})
	}
	labels := KMeans(rand.New(rand.NewPCG(1, 1)), vecs, 2)
	require.Len(t, labels, 40)
	for i := 1; i < 20; i++ {
		assert.Equal(t, labels[0], labels[i])
		assert.Equal(t, labels[20], labels[20+i])
	}
	assert.NotEqual(t, labels[0], labels[20])
}

func TestKMeansLabelsInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	vecs := make([][]float32, 97)
	for i := range vecs {
		vecs[i] = []float32{rng.Float32(), rng.Float32(), rng.Float32()}
	}
	k := ClusterCount(len(vecs))
	for _, l := range KMeans(rng, vecs, k) {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, k)
	}
}

func TestKMeansDeterministic(t *testing.T) {
	vecs := [][]float32{{0}, {1}, {5}, {6}, {20}, {21}}
	a := KMeans(rand.New(rand.NewPCG(9, 9)), vecs, 3)
	b := KMeans(rand.New(rand.NewPCG(9, 9)), vecs, 3)
	assert.Equal(t, a, b)
}

func TestKMeansDegenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	assert.Nil(t, KMeans(rng, nil, 3))
	assert.Equal(t, []int{0, 0}, KMeans(rng, [][]float32{{1}, {2}}, 1))
	// Identical points with k > 1 still yield valid labels.
	for _, l := range KMeans(rng, [][]float32{{1}, {1}, {1}, {1}}, 3) {
		assert.Less(t, l, 3)
	}
}

func TestClusterDocument(t *testing.T) {
	recs := make([]sources.Record, 31)
	for i := range recs {
		recs[i] = sources.Record{Content: fmt.Sprintf("record number %d", i), Identifier: sources.Identifier(i)}
	}
	doc := sources.NewDocument("paper.pdf", recs)

	out, err := newEngine(&fakeEmbedder{}, 10).ClusterDocument(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, doc.Len(), out.Len())
	for i, r := range out.Records {
		assert.Len(t, r.Embedding, 2)
		assert.Less(t, r.Cluster, 2)
		assert.Equal(t, doc.Records[i].Identifier, r.Identifier)
	}
	assert.Nil(t, doc.Records[0].Embedding)
}
