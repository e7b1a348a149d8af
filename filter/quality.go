package filter

import (
	"context"
	"log/slog"
	"time"

	"github.com/brunobiangulo/synqa/cluster"
	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/prompt"
	"github.com/brunobiangulo/synqa/qa"
	"github.com/brunobiangulo/synqa/sources"
)

// QualityOptions configures the quality filter.
type QualityOptions struct {
	// Model is the judge model.
	Model string `json:"model" yaml:"model"`
	// TopK is the number of similar sources added for outer validity.
	TopK int `json:"top_k" yaml:"top_k"`
}

// Quality scores items for inner validity (faithful to the cited sources),
// outer validity (faithful to the wider document) and formal compliance.
type Quality struct {
	chat     *dispatch.Dispatcher
	embed    *dispatch.Dispatcher
	searcher sources.Searcher
	opts     QualityOptions
}

// NewQuality creates a quality filter. chat runs the judges, embed embeds
// the questions for the outer-validity search.
func NewQuality(chat, embed *dispatch.Dispatcher, searcher sources.Searcher, opts QualityOptions) *Quality {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if searcher == nil {
		searcher = sources.MemorySearcher{}
	}
	return &Quality{chat: chat, embed: embed, searcher: searcher, opts: opts}
}

// Run scores every item in place. Judge failures yield the invalid marker
// for that item; nothing is dropped here.
func (q *Quality) Run(ctx context.Context, doc *sources.Document, items []*qa.Item) error {
	if len(items) == 0 {
		return nil
	}
	start := time.Now()

	// Inner validity.
	reqs := make([]llm.ChatRequest, len(items))
	for i, it := range items {
		block := sources.RenderPlain(it.Sources, it.SourceText)
		reqs[i] = judgeRequest(q.opts.Model, prompt.Faithfulness(block, it.Question, it.Answer))
	}
	for i, r := range q.chat.Chat(ctx, reqs) {
		raw, score := rawContent(r.Response, r.Err), WeightedScore(r.Response)
		items[i].RawInnerValidity, items[i].InnerValidity = &raw, &score
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Outer validity.
	q.extend(ctx, doc, items)
	for i, it := range items {
		block := sources.RenderPlain(it.SourcesExtended, it.SourceTextExtended)
		reqs[i] = judgeRequest(q.opts.Model, prompt.Faithfulness(block, it.Question, it.Answer))
	}
	for i, r := range q.chat.Chat(ctx, reqs) {
		raw, score := rawContent(r.Response, r.Err), WeightedScore(r.Response)
		items[i].RawOuterValidity, items[i].OuterValidity = &raw, &score
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Formal checks.
	for i, it := range items {
		p := prompt.FormalCheck(it.Question, prompt.AnswerGuideline(it.AnswerType), it.Answer)
		reqs[i] = judgeRequest(q.opts.Model, p)
	}
	for i, r := range q.chat.Chat(ctx, reqs) {
		raw := rawContent(r.Response, r.Err)
		items[i].FormalChecks = &raw
	}

	slog.Info("filter: quality scored",
		"file", doc.FileName,
		"items", len(items),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return ctx.Err()
}

// extend widens each item's evidence with the top-k sources most similar to
// its question plus the direct neighbours of every included source, all in
// document order.
func (q *Quality) extend(ctx context.Context, doc *sources.Document, items []*qa.Item) {
	questions := make([]string, len(items))
	for i, it := range items {
		questions[i] = it.Question
	}

	vectors := make([][]float32, len(items))
	batches := cluster.Batches(questions, cluster.MaxBatchSize)
	offset := 0
	for b, r := range q.embed.Embed(ctx, batches) {
		if r.Err == nil && len(r.Vectors) == len(batches[b]) {
			copy(vectors[offset:], r.Vectors)
		} else {
			slog.Warn("filter: question embedding failed, outer validity uses cited sources only",
				"file", doc.FileName, "batch", b, "error", r.Err)
		}
		offset += len(batches[b])
	}

	for i, it := range items {
		ids := append([]string(nil), it.Sources...)
		if vectors[i] != nil {
			matches, err := q.searcher.SimilarSources(ctx, doc, vectors[i], it.Sources, q.opts.TopK)
			if err != nil {
				slog.Warn("filter: similarity search failed", "file", doc.FileName, "error", err)
			}
			for _, m := range matches {
				ids = append(ids, m.Identifier)
			}
		}

		it.SourcesExtended = it.SourcesExtended[:0]
		it.SourceTextExtended = it.SourceTextExtended[:0]
		for _, pos := range sources.ExpandNeighbors(doc, ids) {
			rec := doc.Records[pos]
			it.SourcesExtended = append(it.SourcesExtended, rec.Identifier)
			it.SourceTextExtended = append(it.SourceTextExtended, rec.Content)
		}
	}
}
