package selector

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/sources"
)

func doc(n int, typeOf func(i int) sources.Type, clusterOf func(i int) int) *sources.Document {
	recs := make([]sources.Record, n)
	for i := range recs {
		recs[i] = sources.Record{
			Content:    fmt.Sprintf("row %d", i),
			Identifier: sources.Identifier(i),
			Type:       typeOf(i),
			Cluster:    clusterOf(i),
		}
	}
	return sources.NewDocument("doc.pdf", recs)
}

func allText(int) sources.Type { return sources.TypeText }
func oneCluster(int) int        { return 0 }

func TestWindowClipsAtEnd(t *testing.T) {
	start, end := Window(35, 10, 40)
	assert.Equal(t, 30, start)
	assert.Equal(t, 39, end)
}

func TestWindowClipsAtStart(t *testing.T) {
	start, end := Window(2, 10, 40)
	assert.Equal(t, 0, start)
	assert.Equal(t, 6, end)
}

func TestWindowBounds(t *testing.T) {
	for length := 1; length < 30; length++ {
		for anchor := 0; anchor < length; anchor++ {
			for n := 1; n < 20; n++ {
				s, e := Window(anchor, n, length)
				require.GreaterOrEqual(t, s, 0)
				require.LessOrEqual(t, e, length-1)
				require.LessOrEqual(t, e-s+1, n)
				require.True(t, s <= anchor && anchor <= e)
			}
		}
	}
}

func TestProximityTextOnlyIsContiguous(t *testing.T) {
	d := doc(40, allText, oneCluster)
	rng := rand.New(rand.NewPCG(1, 1))
	cfg := sampler.Configuration{Strategy: sampler.Proximity, Modality: sampler.TextOnly, Requested: 10}
	for i := 0; i < 200; i++ {
		sel, err := Select(rng, d, cfg)
		require.NoError(t, err)
		require.NotEmpty(t, sel.Records)
		assert.LessOrEqual(t, len(sel.Records), 10)
		for j := 1; j < len(sel.Identifiers); j++ {
			prev, _ := sources.Ordinal(sel.Identifiers[j-1])
			cur, _ := sources.Ordinal(sel.Identifiers[j])
			assert.Equal(t, prev+1, cur)
		}
	}
}

func TestProximityTextOnlySkipsTables(t *testing.T) {
	d := doc(20, func(i int) sources.Type {
		if i%2 == 0 {
			return sources.TypeTable
		}
		return sources.TypeText
	}, oneCluster)
	cfg := sampler.Configuration{Strategy: sampler.Proximity, Modality: sampler.TextOnly, Requested: 5}
	sel, err := Proximity(rand.New(rand.NewPCG(2, 2)), d, cfg)
	require.NoError(t, err)
	for _, m := range sel.Modalities {
		assert.Equal(t, sources.TypeText, m)
	}
}

func TestProximityTableOnly(t *testing.T) {
	d := doc(10, func(i int) sources.Type {
		if i == 4 || i == 7 {
			return sources.TypeTable
		}
		return sources.TypeText
	}, oneCluster)
	cfg := sampler.Configuration{Strategy: sampler.Proximity, Modality: sampler.TableOnly, Requested: 12}
	sel, err := Proximity(rand.New(rand.NewPCG(3, 3)), d, cfg)
	require.NoError(t, err)
	require.Len(t, sel.Records, 1)
	assert.Equal(t, sources.TypeTable, sel.Records[0].Type)

	_, err = Proximity(rand.New(rand.NewPCG(3, 3)), doc(5, allText, oneCluster), cfg)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestProximityMixedAnchorsOnTable(t *testing.T) {
	d := doc(30, func(i int) sources.Type {
		if i == 20 {
			return sources.TypeTable
		}
		return sources.TypeText
	}, oneCluster)
	cfg := sampler.Configuration{Strategy: sampler.Proximity, Modality: sampler.Mixed, Requested: 6}
	sel, err := Proximity(rand.New(rand.NewPCG(4, 4)), d, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Source_17", "Source_18", "Source_19", "Source_20", "Source_21", "Source_22"}, sel.Identifiers)
	assert.Contains(t, sel.Modalities, sources.TypeTable)
}

func TestClusteringTakesWholeSmallCluster(t *testing.T) {
	// Rows 3, 6, 9, ... form cluster 1 with 12 members.
	d := doc(40, allText, func(i int) int {
		if i%3 == 0 && i > 0 && i <= 36 {
			return 1
		}
		return 0
	})
	cfg := sampler.Configuration{Strategy: sampler.ClusterSampling, Modality: sampler.Clustering, Requested: 20}

	rng := rand.New(rand.NewPCG(5, 5))
	for i := 0; i < 50; i++ {
		sel, err := Select(rng, d, cfg)
		require.NoError(t, err)
		if sel.Records[0].Cluster != 1 {
			continue
		}
		require.Len(t, sel.Records, 12)
		for j := 1; j < len(sel.Records); j++ {
			assert.Less(t, ordinal(sel.Records[j-1]), ordinal(sel.Records[j]))
		}
		return
	}
	t.Fatal("cluster 1 never drawn")
}

func TestClusteringSamplesWithoutReplacement(t *testing.T) {
	d := doc(60, allText, oneCluster)
	cfg := sampler.Configuration{Strategy: sampler.ClusterSampling, Modality: sampler.Clustering, Requested: 15}
	sel, err := Clustering(rand.New(rand.NewPCG(6, 6)), d, cfg)
	require.NoError(t, err)
	require.Len(t, sel.Records, 15)
	seen := map[string]bool{}
	for _, id := range sel.Identifiers {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSelectionBlock(t *testing.T) {
	d := doc(3, allText, oneCluster)
	cfg := sampler.Configuration{Strategy: sampler.ClusterSampling, Modality: sampler.Clustering, Requested: 3}
	sel, err := Select(rand.New(rand.NewPCG(7, 7)), d, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(sel.Block, "(modality: text)"))
	assert.True(t, strings.HasPrefix(sel.Block, "-----\nSource_0 (modality: text): row 0\n-----\n"))
}
