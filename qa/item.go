// Package qa holds generated question/answer items: decoding the model's
// answer, enriching it with provenance, and the persisted record layout.
package qa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/sources"
)

// InvalidAnswer is stored in place of a score the judge did not give as a
// bare rating.
const InvalidAnswer = "Invalid answer"

// Score is a confidence-weighted rating, or the invalid marker.
type Score struct {
	Value float64
	Valid bool
}

// ValidScore wraps a computed rating.
func ValidScore(v float64) Score { return Score{Value: v, Valid: true} }

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return json.Marshal(InvalidAnswer)
	}
	return json.Marshal(s.Value)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*s = ValidScore(v)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Score{}
	return nil
}

func (s Score) String() string {
	if !s.Valid {
		return InvalidAnswer
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

// Difficulty outcome of one answering model.
const (
	StatusAnswered       = "answered"
	StatusUndeterminable = "undeterminable"
)

// Correctness is the difficulty-stage result for one answering model.
type Correctness struct {
	Answer string
	Raw    string
	Score  *Score
	Status string
}

// Item is one generated question with its provenance and scores. Later
// stages only fill in fields, they never clear them.
type Item struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`

	ModalityConfigured sampler.Modality   `json:"modality_configured"`
	ModalitiesUsed     []sources.Type     `json:"modalities_used"`
	NumSourcesUsed     int                `json:"num_sources_used"`
	AnswerType         sampler.AnswerType `json:"answer_type"`
	Reasoning          sampler.Reasoning  `json:"reasoning"`
	Difficulty         sampler.Difficulty `json:"difficulty"`
	SamplingStrategy   sampler.Strategy   `json:"source_sampling_strategy"`
	SourcesSeen        int                `json:"n_sources_seen"`

	FileName        string   `json:"file_name"`
	FileLength      int      `json:"file_length"`
	SourceSpread    int      `json:"source_spread"`
	SourceText      []string `json:"source_text"`
	SourcesPosition int      `json:"sources_position"`

	SourcesExtended    []string `json:"sources_extended,omitempty"`
	SourceTextExtended []string `json:"source_text_extended,omitempty"`

	RawInnerValidity *string `json:"raw_g-eval_score_IV,omitempty"`
	InnerValidity    *Score  `json:"g-eval_score_IV,omitempty"`
	RawOuterValidity *string `json:"raw_g-eval_score_OV,omitempty"`
	OuterValidity    *Score  `json:"g-eval_score_OV,omitempty"`
	FormalChecks     *string `json:"formal_checks,omitempty"`

	// Correctness holds difficulty results keyed by answering model. It is
	// flattened into model-suffixed keys on the wire.
	Correctness map[string]Correctness `json:"-"`
}

const (
	keyAnswer   = "answer_C_"
	keyRawScore = "raw_g-eval_score_C_"
	keyScore    = "g-eval_score_C_"
	keyStatus   = "difficulty_status_"
)

type itemFields Item

func (it Item) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(itemFields(it))
	if err != nil {
		return nil, err
	}
	if len(it.Correctness) == 0 {
		return data, nil
	}

	models := make([]string, 0, len(it.Correctness))
	for m := range it.Correctness {
		models = append(models, m)
	}
	sort.Strings(models)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	add := func(key string, v any) error {
		kb, _ := json.Marshal(key)
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		return nil
	}
	for _, m := range models {
		c := it.Correctness[m]
		if c.Status != StatusUndeterminable {
			if err := add(keyAnswer+m, c.Answer); err != nil {
				return nil, err
			}
			if err := add(keyRawScore+m, c.Raw); err != nil {
				return nil, err
			}
			if c.Score != nil {
				if err := add(keyScore+m, *c.Score); err != nil {
					return nil, err
				}
			}
		}
		if c.Status != "" {
			if err := add(keyStatus+m, c.Status); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var f itemFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*it = Item(f)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	get := func(model string) Correctness {
		if it.Correctness == nil {
			it.Correctness = make(map[string]Correctness)
		}
		return it.Correctness[model]
	}
	for k, v := range raw {
		var err error
		switch {
		case strings.HasPrefix(k, keyAnswer):
			m := strings.TrimPrefix(k, keyAnswer)
			c := get(m)
			err = json.Unmarshal(v, &c.Answer)
			it.Correctness[m] = c
		case strings.HasPrefix(k, keyRawScore):
			m := strings.TrimPrefix(k, keyRawScore)
			c := get(m)
			err = json.Unmarshal(v, &c.Raw)
			it.Correctness[m] = c
		case strings.HasPrefix(k, keyScore):
			m := strings.TrimPrefix(k, keyScore)
			c := get(m)
			var s Score
			err = json.Unmarshal(v, &s)
			c.Score = &s
			it.Correctness[m] = c
		case strings.HasPrefix(k, keyStatus):
			m := strings.TrimPrefix(k, keyStatus)
			c := get(m)
			err = json.Unmarshal(v, &c.Status)
			it.Correctness[m] = c
		}
		if err != nil {
			return fmt.Errorf("decoding %s: %w", k, err)
		}
	}
	return nil
}
