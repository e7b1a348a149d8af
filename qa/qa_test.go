package qa

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/sources"
)

func testDoc() *sources.Document {
	recs := make([]sources.Record, 9)
	for i := range recs {
		recs[i] = sources.Record{
			Content:    strings.Repeat("w ", i+1),
			Identifier: sources.Identifier(i),
			Type:       sources.TypeText,
		}
	}
	recs[4].Type = sources.TypeTable
	return sources.NewDocument("paper.pdf", recs)
}

func testConfig() sampler.Configuration {
	return sampler.Configuration{
		AnswerType:  sampler.Value,
		Reasoning:   sampler.Reason,
		Modality:    sampler.Clustering,
		Quantity:    sampler.Arbitrary,
		Difficulty:  sampler.Medium,
		Strategy:    sampler.ClusterSampling,
		Requested:   6,
		SourcesSeen: 6,
	}
}

func TestDecode(t *testing.T) {
	f, err := Decode("```json\n{\"question\": \"Q?\", \"answer\": \"A\", \"sources\": [\"Source_1\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Q?", f.Question)
	assert.Equal(t, []string{"Source_1"}, f.Sources)
}

func TestDecodeRejects(t *testing.T) {
	bad := []string{
		"not json",
		`{"question": "Q", "answer": "A"}`,
		`{"question": "Q", "answer": "A", "sources": []}`,
		`{"question": "", "answer": "A", "sources": ["Source_1"]}`,
		`{"question": "Q", "answer": 42, "sources": ["Source_1"]}`,
		`{"question": "Q", "answer": "A", "sources": "Source_1"}`,
		`{"question": "Q", "answer": "A", "sources": ["Source_1"], "extra": 1}`,
		`{"question": "Q", "answer": "A", "sources": ["Source_1"]} {}`,
	}
	for _, raw := range bad {
		_, err := Decode(raw)
		assert.ErrorIs(t, err, ErrMalformedAnswer, raw)
	}
}

func TestEnrich(t *testing.T) {
	doc := testDoc()
	it, err := Enrich(Fields{
		Question: "Q?",
		Answer:   "A",
		Sources:  []string{"Source_6", "Source 4", "Source_6", "Source_99"},
	}, testConfig(), doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"Source_6", "Source_4"}, it.Sources)
	assert.Equal(t, 2, it.NumSourcesUsed)
	assert.Equal(t, []sources.Type{sources.TypeText, sources.TypeTable}, it.ModalitiesUsed)
	assert.Equal(t, []string{doc.Records[6].Content, doc.Records[4].Content}, it.SourceText)
	assert.Equal(t, 45, it.FileLength)
	assert.Equal(t, 5+6+7, it.SourceSpread)
	// Ordinals 6 and 4 of 8 fall into different quartiles.
	assert.Equal(t, 25, it.SourcesPosition)
	assert.Equal(t, sampler.Clustering, it.ModalityConfigured)
	assert.Equal(t, sampler.ClusterSampling, it.SamplingStrategy)
	assert.Equal(t, 6, it.SourcesSeen)
	assert.Equal(t, "paper.pdf", it.FileName)

	// Cited sources are a subset of the document.
	for _, id := range it.Sources {
		_, ok := doc.Lookup(id)
		assert.True(t, ok)
	}
}

func TestEnrichUnknownSources(t *testing.T) {
	_, err := Enrich(Fields{Question: "Q", Answer: "A", Sources: []string{"Source_77"}}, testConfig(), testDoc())
	assert.ErrorIs(t, err, ErrNoKnownSources)
}

func TestMajorityBucket(t *testing.T) {
	assert.Equal(t, 25, MajorityBucket([]int{1, 2, 3, 90}, 100))
	assert.Equal(t, 50, MajorityBucket([]int{30, 40, 45}, 100))
	assert.Equal(t, 100, MajorityBucket([]int{76, 99, 100, 10}, 100))
	// Two-two split: no strict majority.
	assert.Equal(t, 25, MajorityBucket([]int{10, 20, 80, 90}, 100))
	assert.Equal(t, 25, MajorityBucket([]int{60, 90}, 100))
	assert.Equal(t, 75, MajorityBucket([]int{75}, 100))
	assert.Equal(t, 25, MajorityBucket(nil, 100))
	assert.Equal(t, 25, MajorityBucket([]int{0}, 0))
}

func TestItemJSONLayout(t *testing.T) {
	raw, formal := "5", "yes"
	iv := ValidScore(4.5)
	invalid := Score{}
	it := &Item{
		Question:         "Q?",
		Answer:           "A",
		Sources:          []string{"Source_1"},
		RawInnerValidity: &raw,
		InnerValidity:    &iv,
		RawOuterValidity: &raw,
		OuterValidity:    &invalid,
		FormalChecks:     &formal,
		Correctness: map[string]Correctness{
			"gpt-4o-mini": {Answer: "A", Raw: "4", Score: &iv, Status: StatusAnswered},
			"small":       {Status: StatusUndeterminable},
		},
	}

	data, err := json.Marshal(it)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, 4.5, m["g-eval_score_IV"])
	assert.Equal(t, InvalidAnswer, m["g-eval_score_OV"])
	assert.Equal(t, "yes", m["formal_checks"])
	assert.Equal(t, "A", m["answer_C_gpt-4o-mini"])
	assert.Equal(t, "4", m["raw_g-eval_score_C_gpt-4o-mini"])
	assert.Equal(t, 4.5, m["g-eval_score_C_gpt-4o-mini"])
	assert.Equal(t, StatusUndeterminable, m["difficulty_status_small"])
	assert.NotContains(t, m, "answer_C_small")
	for _, k := range []string{"modality_configured", "modalities_used", "num_sources_used", "answer_type",
		"reasoning", "difficulty", "source_sampling_strategy", "n_sources_seen", "file_name",
		"file_length", "source_spread", "source_text", "sources_position"} {
		assert.Contains(t, m, k)
	}

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	require.Contains(t, back.Correctness, "gpt-4o-mini")
	assert.Equal(t, 4.5, back.Correctness["gpt-4o-mini"].Score.Value)
	assert.Equal(t, StatusUndeterminable, back.Correctness["small"].Status)
	assert.False(t, back.OuterValidity.Valid)
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "paper_rawQA.json")
	it, err := Enrich(Fields{Question: "Q?", Answer: "A", Sources: []string{"Source_2"}}, testConfig(), testDoc())
	require.NoError(t, err)

	require.NoError(t, WriteFile(path, []*Item{it}))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, it.Sources, got[0].Sources)
	assert.Equal(t, it.SourceSpread, got[0].SourceSpread)
}

func TestWriteEmptyIsArray(t *testing.T) {
	data, err := FormatJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}
