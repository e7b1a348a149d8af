package qa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/sources"
)

var (
	// ErrMalformedAnswer is returned when a generation response is not the
	// expected JSON object.
	ErrMalformedAnswer = errors.New("qa: malformed answer")

	// ErrNoKnownSources is returned when none of the cited identifiers
	// exist in the document.
	ErrNoKnownSources = errors.New("qa: no cited source exists in document")
)

// Fields is the model's answer to a generation prompt.
type Fields struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
}

// stripFences removes Markdown code fences around a JSON answer.
func stripFences(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Decode parses a generation response. Unknown keys, wrong types, empty
// strings and an empty source list are all rejected.
func Decode(raw string) (Fields, error) {
	dec := json.NewDecoder(strings.NewReader(stripFences(raw)))
	dec.DisallowUnknownFields()

	var f Fields
	if err := dec.Decode(&f); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Fields{}, fmt.Errorf("%w: trailing data after object", ErrMalformedAnswer)
	}
	if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" {
		return Fields{}, fmt.Errorf("%w: empty question or answer", ErrMalformedAnswer)
	}
	if len(f.Sources) == 0 {
		return Fields{}, fmt.Errorf("%w: no sources cited", ErrMalformedAnswer)
	}
	return f, nil
}

// resolve maps a cited identifier onto the document, accepting "Source 7"
// for "Source_7".
func resolve(doc *sources.Document, id string) (string, bool) {
	id = strings.TrimSpace(id)
	if _, ok := doc.Position(id); ok {
		return id, true
	}
	n, err := sources.Ordinal(id)
	if err != nil {
		return "", false
	}
	canon := sources.Identifier(n)
	_, ok := doc.Position(canon)
	return canon, ok
}

// Enrich turns a decoded answer into an Item, attaching the configuration
// snapshot and provenance derived from doc. Citations are deduplicated in
// order; identifiers the document does not contain are dropped.
func Enrich(f Fields, cfg sampler.Configuration, doc *sources.Document) (*Item, error) {
	seen := make(map[string]bool, len(f.Sources))
	var ids []string
	for _, raw := range f.Sources {
		id, ok := resolve(doc, raw)
		if !ok {
			slog.Debug("qa: dropping unknown citation", "file", doc.FileName, "source", raw)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoKnownSources, f.Sources)
	}

	it := &Item{
		Question:           f.Question,
		Answer:             f.Answer,
		Sources:            ids,
		ModalityConfigured: cfg.Modality,
		NumSourcesUsed:     len(ids),
		AnswerType:         cfg.AnswerType,
		Reasoning:          cfg.Reasoning,
		Difficulty:         cfg.Difficulty,
		SamplingStrategy:   cfg.Strategy,
		SourcesSeen:        cfg.SourcesSeen,
		FileName:           doc.FileName,
		FileLength:         doc.WordCount(0, doc.Len()-1),
	}

	lo, hi := doc.Len(), -1
	ordinals := make([]int, 0, len(ids))
	for _, id := range ids {
		pos, _ := doc.Position(id)
		rec := doc.Records[pos]
		it.ModalitiesUsed = append(it.ModalitiesUsed, rec.Type)
		it.SourceText = append(it.SourceText, rec.Content)
		lo, hi = min(lo, pos), max(hi, pos)
		n, _ := sources.Ordinal(id)
		ordinals = append(ordinals, n)
	}
	it.SourceSpread = doc.WordCount(lo, hi)
	it.SourcesPosition = MajorityBucket(ordinals, doc.MaxOrdinal())
	return it, nil
}

// MajorityBucket classifies cited ordinals by their fraction of max into the
// quartile buckets 25, 50, 75 and 100. The bucket holding a strict majority
// wins; without one the result is 25.
func MajorityBucket(values []int, max int) int {
	buckets := []int{25, 50, 75, 100}
	counts := make([]int, len(buckets))
	for _, v := range values {
		pct := 0.0
		if max > 0 {
			pct = float64(v) / float64(max)
		}
		switch {
		case pct <= 0.25:
			counts[0]++
		case pct <= 0.50:
			counts[1]++
		case pct <= 0.75:
			counts[2]++
		default:
			counts[3]++
		}
	}
	for i, c := range counts {
		if 2*c > len(values) {
			return buckets[i]
		}
	}
	return 25
}

// FormatJSON renders items the way they are written to disk.
func FormatJSON(items []*Item) ([]byte, error) {
	if items == nil {
		items = []*Item{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
