// Package selector picks the subset of a document's sources that is shown to
// the model for one generated question.
package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/sources"
)

// ErrNoCandidates is returned when the document has no rows of the kind the
// configuration asks for, e.g. a table-only draw on a document without
// tables.
var ErrNoCandidates = errors.New("selector: no candidate sources")

// Selection is the set of records picked for one prompt, in prompt order.
type Selection struct {
	Records     []sources.Record
	Identifiers []string
	Modalities  []sources.Type
	Block       string
}

func newSelection(recs []sources.Record) Selection {
	s := Selection{Records: recs}
	for _, r := range recs {
		s.Identifiers = append(s.Identifiers, r.Identifier)
		s.Modalities = append(s.Modalities, r.Type)
	}
	s.Block = sources.RenderBlock(recs)
	return s
}

// Select dispatches on the configuration's sampling strategy.
func Select(rng *rand.Rand, doc *sources.Document, cfg sampler.Configuration) (Selection, error) {
	if cfg.Strategy == sampler.ClusterSampling {
		return Clustering(rng, doc, cfg)
	}
	return Proximity(rng, doc, cfg)
}

// Window returns the inclusive row range of n rows centred on anchor,
// clipped to [0, length-1]. Clipping shortens the window rather than
// shifting it.
func Window(anchor, n, length int) (start, end int) {
	if n < 1 {
		n = 1
	}
	start = anchor - n/2
	end = start + n - 1
	if start < 0 {
		start = 0
	}
	if end > length-1 {
		end = length - 1
	}
	return start, end
}

// Proximity picks a contiguous window of rows around a random anchor.
func Proximity(rng *rand.Rand, doc *sources.Document, cfg sampler.Configuration) (Selection, error) {
	switch cfg.Modality {
	case sampler.TextOnly:
		rows := filterType(doc.Records, sources.TypeText)
		if len(rows) == 0 {
			return Selection{}, fmt.Errorf("%w: no text rows in %s", ErrNoCandidates, doc.FileName)
		}
		start, end := Window(rng.IntN(len(rows)), cfg.Requested, len(rows))
		return newSelection(rows[start : end+1]), nil

	case sampler.TableOnly:
		rows := filterType(doc.Records, sources.TypeTable)
		if len(rows) == 0 {
			return Selection{}, fmt.Errorf("%w: no table rows in %s", ErrNoCandidates, doc.FileName)
		}
		i := rng.IntN(len(rows))
		return newSelection(rows[i : i+1]), nil

	case sampler.Mixed:
		var tables []int
		for i, r := range doc.Records {
			if r.Type == sources.TypeTable {
				tables = append(tables, i)
			}
		}
		if len(tables) == 0 {
			return Selection{}, fmt.Errorf("%w: no table rows to anchor on in %s", ErrNoCandidates, doc.FileName)
		}
		anchor := tables[rng.IntN(len(tables))]
		start, end := Window(anchor, cfg.Requested, doc.Len())
		return newSelection(doc.Records[start : end+1]), nil

	default:
		return Selection{}, fmt.Errorf("selector: modality %q has no proximity rule", cfg.Modality)
	}
}

// Clustering samples up to the requested number of rows from one random
// cluster, without replacement, and returns them in document order.
func Clustering(rng *rand.Rand, doc *sources.Document, cfg sampler.Configuration) (Selection, error) {
	ids := doc.ClusterIDs()
	if len(ids) == 0 {
		return Selection{}, fmt.Errorf("%w: empty document %s", ErrNoCandidates, doc.FileName)
	}
	cluster := ids[rng.IntN(len(ids))]

	var members []sources.Record
	for _, r := range doc.Records {
		if r.Cluster == cluster {
			members = append(members, r)
		}
	}

	n := min(max(cfg.Requested, 1), len(members))
	picked := make([]sources.Record, n)
	for i, j := range rng.Perm(len(members))[:n] {
		picked[i] = members[j]
	}
	sort.SliceStable(picked, func(a, b int) bool {
		return ordinal(picked[a]) < ordinal(picked[b])
	})
	return newSelection(picked), nil
}

func ordinal(r sources.Record) int {
	n, _ := sources.Ordinal(r.Identifier)
	return n
}

func filterType(recs []sources.Record, t sources.Type) []sources.Record {
	var out []sources.Record
	for _, r := range recs {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}
