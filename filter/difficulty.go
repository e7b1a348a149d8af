package filter

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/prompt"
	"github.com/brunobiangulo/synqa/qa"
	"github.com/brunobiangulo/synqa/sources"
)

// DifficultyOptions configures the difficulty filter.
type DifficultyOptions struct {
	// AnswerModel re-answers the questions; its name keys the results.
	AnswerModel string `json:"answer_model" yaml:"answer_model"`
	// EvalModel scores the re-answers against the ground truth.
	EvalModel string `json:"eval_model" yaml:"eval_model"`
	// Step is the extra fraction of rows dropped on every retry.
	Step float64 `json:"step" yaml:"step"`
	// MaxAttempts bounds the shrink-and-retry loop, first attempt included.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// ResampleSeed fixes which rows survive a shrink.
	ResampleSeed uint64 `json:"resample_seed" yaml:"resample_seed"`
}

// DefaultDifficultyOptions returns the standard shrink schedule.
func DefaultDifficultyOptions() DifficultyOptions {
	return DifficultyOptions{Step: 0.1, MaxAttempts: 9, ResampleSeed: 42}
}

// Difficulty re-answers quality-approved items from the full document and
// scores the re-answers for correctness.
type Difficulty struct {
	answer *dispatch.Dispatcher
	eval   *dispatch.Dispatcher
	opts   DifficultyOptions
}

// NewDifficulty creates a difficulty filter.
func NewDifficulty(answer, eval *dispatch.Dispatcher, opts DifficultyOptions) *Difficulty {
	def := DefaultDifficultyOptions()
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.EvalModel == "" {
		opts.EvalModel = opts.AnswerModel
	}
	return &Difficulty{answer: answer, eval: eval, opts: opts}
}

// Eligible reports whether an item passed every quality check with the top
// rating.
func Eligible(it *qa.Item) bool {
	return it.RawInnerValidity != nil && *it.RawInnerValidity == "5" &&
		it.RawOuterValidity != nil && *it.RawOuterValidity == "5" &&
		it.FormalChecks != nil && IsYes(*it.FormalChecks)
}

// Run returns the eligible items with a correctness result for the
// answering model attached. Items whose question never fit the model's
// context are kept with status undeterminable.
func (f *Difficulty) Run(ctx context.Context, rows []string, items []*qa.Item) ([]*qa.Item, error) {
	var kept []*qa.Item
	for _, it := range items {
		if Eligible(it) {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	start := time.Now()

	contexts := map[int]string{1: Resample(rows, 0, f.opts.ResampleSeed)}
	contextFor := func(attempt int) (string, bool) {
		frac := f.opts.Step * float64(attempt-1)
		if frac >= 1 {
			return "", false
		}
		c, ok := contexts[attempt]
		if !ok {
			slog.Warn("filter: context too long, shrinking document",
				"attempt", attempt, "drop_fraction", frac)
			c = Resample(rows, frac, f.opts.ResampleSeed)
			contexts[attempt] = c
		}
		return c, true
	}

	build := func(i int, docText string) llm.ChatRequest {
		it := kept[i]
		seed := Seed
		return llm.ChatRequest{
			Model:       f.opts.AnswerModel,
			Messages:    llm.UserMessage(prompt.Answering(docText, it.Question, prompt.AnswerGuideline(it.AnswerType))),
			Temperature: 0,
			Seed:        &seed,
		}
	}

	reqs := make([]llm.ChatRequest, len(kept))
	for i := range kept {
		reqs[i] = build(i, contexts[1])
	}
	answers := f.answer.ChatRetry(ctx, reqs, dispatch.RetryPolicy{MaxAttempts: f.opts.MaxAttempts},
		func(i, attempt int) (llm.ChatRequest, bool) {
			c, ok := contextFor(attempt)
			if !ok {
				return llm.ChatRequest{}, false
			}
			return build(i, c), true
		})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var evalReqs []llm.ChatRequest
	var evalIdx []int
	for i, a := range answers {
		if a.Err != nil {
			continue
		}
		evalReqs = append(evalReqs, judgeRequest(f.opts.EvalModel,
			prompt.Correctness(kept[i].Question, kept[i].Answer, a.Response.Content)))
		evalIdx = append(evalIdx, i)
	}
	scores := f.eval.Chat(ctx, evalReqs)

	undeterminable := 0
	for i, it := range kept {
		if it.Correctness == nil {
			it.Correctness = make(map[string]qa.Correctness)
		}
		if answers[i].Err != nil {
			undeterminable++
			slog.Warn("filter: difficulty undeterminable",
				"file", it.FileName, "question", it.Question, "error", answers[i].Err)
			it.Correctness[f.opts.AnswerModel] = qa.Correctness{Status: qa.StatusUndeterminable}
		}
	}
	for j, r := range scores {
		i := evalIdx[j]
		score := WeightedScore(r.Response)
		kept[i].Correctness[f.opts.AnswerModel] = qa.Correctness{
			Answer: answers[i].Response.Content,
			Raw:    rawContent(r.Response, r.Err),
			Score:  &score,
			Status: qa.StatusAnswered,
		}
	}

	slog.Info("filter: difficulty scored",
		"items", len(items),
		"eligible", len(kept),
		"undeterminable", undeterminable,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return kept, ctx.Err()
}

// Resample keeps a random (1 - drop) share of rows, restores their document
// order and joins them with blank lines. The same seed always keeps the
// same rows for the same fraction.
func Resample(rows []string, drop float64, seed uint64) string {
	if drop <= 0 {
		return strings.Join(rows, "\n\n\n")
	}
	keep := int(math.Round((1 - drop) * float64(len(rows))))
	keep = max(0, min(keep, len(rows)))

	rng := rand.New(rand.NewPCG(seed, seed))
	idx := rng.Perm(len(rows))[:keep]
	sort.Ints(idx)

	out := make([]string, keep)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return strings.Join(out, "\n\n\n")
}

// DocumentRows returns the record contents of a document as context rows.
func DocumentRows(doc *sources.Document) []string {
	rows := make([]string, doc.Len())
	for i, r := range doc.Records {
		rows[i] = r.Content
	}
	return rows
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// chunkWords is the row size used for raw text without paragraph breaks.
const chunkWords = 200

// SplitParagraphs splits a raw document into rows at blank lines. Text
// without paragraph breaks, such as flattened HTML, is cut into fixed-size
// word chunks instead so that shrinking still has rows to drop.
func SplitParagraphs(text string) []string {
	var rows []string
	for _, p := range blankLines.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			rows = append(rows, p)
		}
	}
	if len(rows) > 1 {
		return rows
	}

	words := strings.Fields(text)
	rows = rows[:0]
	for start := 0; start < len(words); start += chunkWords {
		rows = append(rows, strings.Join(words[start:min(start+chunkWords, len(words))], " "))
	}
	return rows
}
