// Package sampler draws random, internally consistent question-generation
// configurations.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

type AnswerType string

const (
	YesNo        AnswerType = "yes-no-question"
	Value        AnswerType = "value-question"
	WordAnswer   AnswerType = "word-answer"
	OneSentence  AnswerType = "one-sentence-answer"
	OpenEndShort AnswerType = "open-ended-question-short"
	OpenEndLong  AnswerType = "open-ended-question-long"
)

// AnswerTypes lists every answer type in draw order.
var AnswerTypes = []AnswerType{YesNo, Value, WordAnswer, OneSentence, OpenEndShort, OpenEndLong}

type Reasoning string

const (
	Replicate Reasoning = "replicate"
	Reason    Reasoning = "reasoning"
)

var ReasoningModes = []Reasoning{Replicate, Reason}

type Modality string

const (
	TextOnly   Modality = "text-only"
	TableOnly  Modality = "table-only"
	Mixed      Modality = "mixed-modality"
	Clustering Modality = "clustering"
)

type Quantity string

const (
	StrictMultiple Quantity = "strict multiple sources"
	Arbitrary      Quantity = "arbitrary sources"
)

var Quantities = []Quantity{StrictMultiple, Arbitrary}

type Difficulty string

const (
	Simple  Difficulty = "simple"
	Medium  Difficulty = "medium"
	Complex Difficulty = "complex"
)

var Difficulties = []Difficulty{Simple, Medium, Complex}

// Strategy is how the sources shown to the model are picked.
type Strategy string

const (
	Proximity       Strategy = "proximity"
	ClusterSampling Strategy = "clustering"
)

// Configuration is one set of generation parameters. The source count
// actually shown to the model is recorded later as SourcesSeen.
type Configuration struct {
	AnswerType  AnswerType `json:"answer_type"`
	Reasoning   Reasoning  `json:"reasoning"`
	Modality    Modality   `json:"modality"`
	Quantity    Quantity   `json:"source_quantity"`
	Difficulty  Difficulty `json:"difficulty"`
	Strategy    Strategy   `json:"source_sampling_strategy"`
	Requested   int        `json:"requested_source_count"`
	SourcesSeen int        `json:"n_sources_seen"`
}

// Options narrows what Sample may draw.
type Options struct {
	// ProximityModalities are the modalities a proximity draw picks from.
	// Empty means text-only.
	ProximityModalities []Modality `json:"proximity_modalities" yaml:"proximity_modalities"`
}

// Sampler draws configurations from an explicit random source.
type Sampler struct {
	rng  *rand.Rand
	opts Options
}

// New creates a sampler.
func New(rng *rand.Rand, opts Options) *Sampler {
	if len(opts.ProximityModalities) == 0 {
		opts.ProximityModalities = []Modality{TextOnly}
	}
	return &Sampler{rng: rng, opts: opts}
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

// Sample draws a configuration. proximity selects the strategy; requested
// is the number of sources to show.
func (s *Sampler) Sample(proximity bool, requested int) Configuration {
	cfg := Configuration{
		AnswerType: pick(s.rng, AnswerTypes),
		Reasoning:  pick(s.rng, ReasoningModes),
		Requested:  requested,
	}
	if proximity {
		cfg.Strategy = Proximity
		cfg.Modality = pick(s.rng, s.opts.ProximityModalities)
	} else {
		cfg.Strategy = ClusterSampling
		cfg.Modality = Clustering
	}

	if cfg.Modality == TableOnly {
		cfg.Quantity = Arbitrary
	} else {
		cfg.Quantity = pick(s.rng, Quantities)
	}

	if cfg.Reasoning == Reason {
		cfg.Difficulty = pick(s.rng, Difficulties)
	} else {
		cfg.Difficulty = Simple
	}
	return cfg
}

// Proximity flips the coin between the two sampling strategies.
func (s *Sampler) Proximity() bool {
	return s.rng.IntN(2) == 1
}

// RequestedCount draws a source count uniformly from [lo, hi].
func (s *Sampler) RequestedCount(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.rng.IntN(hi-lo+1)
}

var ErrInvalidConfiguration = errors.New("sampler: invalid configuration")

// Validate checks the consistency rules between configuration fields.
func (c Configuration) Validate() error {
	if c.Reasoning != Reason && c.Difficulty != Simple {
		return fmt.Errorf("%w: difficulty %q without reasoning", ErrInvalidConfiguration, c.Difficulty)
	}
	switch c.Modality {
	case Clustering, Mixed, TextOnly:
	default:
		if c.Quantity != Arbitrary {
			return fmt.Errorf("%w: quantity %q for modality %q", ErrInvalidConfiguration, c.Quantity, c.Modality)
		}
	}
	if (c.Strategy == ClusterSampling) != (c.Modality == Clustering) {
		return fmt.Errorf("%w: modality %q with strategy %q", ErrInvalidConfiguration, c.Modality, c.Strategy)
	}
	if c.Requested < 1 {
		return fmt.Errorf("%w: requested %d sources", ErrInvalidConfiguration, c.Requested)
	}
	return nil
}
