// Package synqa builds long-document question answering benchmarks: it
// clusters parsed source tables, synthesises grounded question/answer pairs
// from sampled sources, and filters them for faithfulness, form, and
// difficulty with model judges.
package synqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunobiangulo/synqa/cluster"
	"github.com/brunobiangulo/synqa/dispatch"
	"github.com/brunobiangulo/synqa/filter"
	"github.com/brunobiangulo/synqa/ingest"
	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/prompt"
	"github.com/brunobiangulo/synqa/qa"
	"github.com/brunobiangulo/synqa/sampler"
	"github.com/brunobiangulo/synqa/selector"
	"github.com/brunobiangulo/synqa/sources"
	"github.com/brunobiangulo/synqa/store"
)

// Stage names, as recorded in the run log.
const (
	StageCluster    = "cluster"
	StageGenerate   = "generate"
	StageQuality    = "quality"
	StageDifficulty = "difficulty"
)

// Output file suffixes per stage.
const (
	rawQASuffix      = "_rawQA.json"
	qualitySuffix    = "_vfQA.json"
	difficultySuffix = "_cfQA_"
)

// rawFormats is the lookup order for original documents in RawDocsDir.
var rawFormats = []string{"pdf", "htm", "html", "tex", "txt", "md"}

// Report summarises one stage run.
type Report struct {
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	Documents int           `json:"documents"`
	Skipped   int           `json:"skipped"`
	ItemsIn   int           `json:"items_in"`
	ItemsOut  int           `json:"items_out"`
	Dropped   int           `json:"dropped"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Providers supplies one model endpoint per pipeline role.
type Providers struct {
	Embedding  llm.Provider
	Generation llm.Provider
	Judge      llm.Provider
	Answer     llm.Provider
	Eval       llm.Provider
}

// Pipeline runs the four stages over the configured directories.
type Pipeline struct {
	cfg     Config
	store   *store.Store
	readers *ingest.Registry
	rng     *rand.Rand
	cache   *llm.Cache // nil without a Redis address

	embed    *dispatch.Dispatcher
	generate *dispatch.Dispatcher
	judge    *dispatch.Dispatcher
	answer   *dispatch.Dispatcher
	eval     *dispatch.Dispatcher
}

// New opens the store and creates providers for every role from cfg.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var cache *llm.Cache
	if cfg.Cache.Addr != "" {
		cache = llm.NewCache(cfg.Cache)
	}

	var p Providers
	for _, role := range []struct {
		cfg LLMConfig
		dst *llm.Provider
	}{
		{cfg.Embedding, &p.Embedding},
		{cfg.Generation, &p.Generation},
		{cfg.Judge, &p.Judge},
		{cfg.Answer, &p.Answer},
		{cfg.Eval, &p.Eval},
	} {
		prov, err := llm.NewProvider(role.cfg.llm())
		if err != nil {
			closeCache(cache)
			return nil, fmt.Errorf("creating %s provider: %w", role.cfg.Model, err)
		}
		if cache != nil {
			prov = cache.Wrap(prov)
		}
		*role.dst = prov
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		closeCache(cache)
		return nil, fmt.Errorf("opening store: %w", err)
	}
	pl := NewWithProviders(cfg, p, s)
	pl.cache = cache
	return pl, nil
}

func closeCache(c *llm.Cache) {
	if c != nil {
		c.Close()
	}
}

// NewWithProviders assembles a pipeline from ready providers and an open
// store. The pipeline takes ownership of the store.
func NewWithProviders(cfg Config, p Providers, s *store.Store) *Pipeline {
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    s,
		readers:  ingest.NewRegistry(),
		rng:      rand.New(rand.NewPCG(seed, seed)),
		embed:    dispatch.New(p.Embedding, cfg.Dispatch),
		generate: dispatch.New(p.Generation, cfg.Dispatch),
		judge:    dispatch.New(p.Judge, cfg.Dispatch),
		answer:   dispatch.New(p.Answer, cfg.Dispatch),
		eval:     dispatch.New(p.Eval, cfg.Dispatch),
	}
}

// Store returns the underlying store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Close closes the store and the completion cache.
func (p *Pipeline) Close() error {
	var cacheErr error
	if p.cache != nil {
		cacheErr = p.cache.Close()
	}
	return errors.Join(p.store.Close(), cacheErr)
}

// Run executes all four stages in order.
func (p *Pipeline) Run(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	for _, stage := range []func(context.Context) (*Report, error){
		p.Cluster, p.Generate, p.QualityFilter, p.DifficultyFilter,
	} {
		r, err := stage(ctx)
		if r != nil {
			reports = append(reports, r)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// --- stage 1: clustering ---

// Cluster embeds and clusters every source table in InputDir and writes
// <name>_clustered tables to ClusteredDir. Clustered documents are also
// saved to the store for similarity search.
func (p *Pipeline) Cluster(ctx context.Context) (*Report, error) {
	inputs, err := listFiles(p.cfg.InputDir, ".csv", ".xlsx")
	if err != nil {
		return nil, err
	}
	run, err := p.begin(ctx, StageCluster, len(inputs))
	if err != nil {
		return nil, err
	}

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return run.finish(ctx), err
		}
		name := ingest.DocumentName(path)
		out := p.clusteredPath(name)
		if run.skip(out) {
			continue
		}

		tbl, err := ingest.ReadTable(path)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}
		doc := ingest.FilterRows(tbl.Document)
		run.report.ItemsIn += tbl.Document.Len()
		if doc.Len() == 0 {
			run.drop(ctx, name, "", ErrEmptyDocument)
			continue
		}

		rng := rand.New(rand.NewPCG(p.cfg.ClusterSeed, p.cfg.ClusterSeed))
		engine := cluster.NewEngine(p.embed, cluster.Options{BatchSize: p.cfg.EmbedBatchSize}, rng)
		clustered, err := engine.ClusterDocument(ctx, doc)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}

		if err := ingest.WriteTable(out, clustered, p.cfg.Embedding.Model); err != nil {
			return run.finish(ctx), fmt.Errorf("writing %s: %w", out, err)
		}
		if _, err := p.store.SaveDocument(ctx, clustered, p.cfg.Embedding.Model); err != nil {
			slog.Warn("synqa: saving clustered document", "file", name, "error", err)
		}
		run.report.Documents++
		run.report.ItemsOut += clustered.Len()
	}
	return run.finish(ctx), nil
}

// --- stage 2: generation ---

// Generate synthesises QuestionsPerFile items per clustered document and
// writes them to RawQADir.
func (p *Pipeline) Generate(ctx context.Context) (*Report, error) {
	inputs, err := listFiles(p.cfg.ClusteredDir, ingest.ClusteredSuffix+".csv", ingest.ClusteredSuffix+".xlsx")
	if err != nil {
		return nil, err
	}
	run, err := p.begin(ctx, StageGenerate, len(inputs))
	if err != nil {
		return nil, err
	}

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return run.finish(ctx), err
		}
		name := ingest.DocumentName(path)
		out := filepath.Join(p.cfg.RawQADir, name+rawQASuffix)
		if run.skip(out) {
			continue
		}

		tbl, err := ingest.ReadTable(path)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}
		items := p.generateDocument(ctx, run, name, tbl.Document)
		if err := ctx.Err(); err != nil {
			return run.finish(ctx), err
		}
		if err := qa.WriteFile(out, items); err != nil {
			return run.finish(ctx), fmt.Errorf("writing %s: %w", out, err)
		}
		run.report.Documents++
		run.report.ItemsOut += len(items)
	}
	return run.finish(ctx), nil
}

func (p *Pipeline) generateDocument(ctx context.Context, run *stageRun, name string, doc *sources.Document) []*qa.Item {
	smp := sampler.New(p.rng, p.cfg.Sampler)

	var reqs []llm.ChatRequest
	var configs []sampler.Configuration
	for i := 0; i < p.cfg.QuestionsPerFile; i++ {
		run.report.ItemsIn++
		n := smp.RequestedCount(p.cfg.MinSources, p.cfg.MaxSources)
		cfg := smp.Sample(smp.Proximity(), n)
		if err := cfg.Validate(); err != nil {
			run.drop(ctx, name, "", err)
			continue
		}

		sel, err := selector.Select(p.rng, doc, cfg)
		if err != nil {
			run.drop(ctx, name, "", fmt.Errorf("%s %s: %w", cfg.Strategy, cfg.Modality, err))
			continue
		}
		cfg.SourcesSeen = len(sel.Records)

		text, err := prompt.Generation(p.cfg.Domain, sel.Block, prompt.Guidelines(cfg))
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}

		seed := p.cfg.SamplingSeed
		reqs = append(reqs, llm.ChatRequest{
			Model:       p.cfg.Generation.Model,
			Messages:    llm.UserMessage(text),
			Temperature: 0,
			Seed:        &seed,
		})
		configs = append(configs, cfg)
	}

	results := p.generate.Chat(ctx, reqs)
	items := make([]*qa.Item, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			run.drop(ctx, name, "", fmt.Errorf("%w: %w", ErrGenerationFailed, r.Err))
			continue
		}
		fields, err := qa.Decode(r.Response.Content)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}
		it, err := qa.Enrich(fields, configs[i], doc)
		if err != nil {
			run.drop(ctx, name, fields.Question, err)
			continue
		}
		items = append(items, it)
	}

	slog.Info("synqa: document generated",
		"file", name,
		"requested", p.cfg.QuestionsPerFile,
		"dispatched", len(reqs),
		"items", len(items),
	)
	return items
}

// --- stage 3: quality filter ---

// QualityFilter scores every generated item for inner and outer validity
// and formal compliance, writing <name>_vfQA.json to QualityDir.
func (p *Pipeline) QualityFilter(ctx context.Context) (*Report, error) {
	inputs, err := listFiles(p.cfg.RawQADir, rawQASuffix)
	if err != nil {
		return nil, err
	}
	run, err := p.begin(ctx, StageQuality, len(inputs))
	if err != nil {
		return nil, err
	}

	var searcher sources.Searcher = sources.MemorySearcher{}
	if p.cfg.Searcher == "store" {
		searcher = p.store
	}
	quality := filter.NewQuality(p.judge, p.embed, searcher, filter.QualityOptions{
		Model: p.cfg.Judge.Model,
		TopK:  p.cfg.TopK,
	})

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return run.finish(ctx), err
		}
		name := strings.TrimSuffix(filepath.Base(path), rawQASuffix)
		out := filepath.Join(p.cfg.QualityDir, name+qualitySuffix)
		if run.skip(out) {
			continue
		}

		items, err := qa.ReadFile(path)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}
		doc, err := p.loadDocument(ctx, name)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}

		run.report.ItemsIn += len(items)
		if err := quality.Run(ctx, doc, items); err != nil {
			return run.finish(ctx), err
		}
		if err := qa.WriteFile(out, items); err != nil {
			return run.finish(ctx), fmt.Errorf("writing %s: %w", out, err)
		}
		run.report.Documents++
		run.report.ItemsOut += len(items)
	}
	return run.finish(ctx), nil
}

// --- stage 4: difficulty filter ---

// DifficultyFilter re-answers every item that passed all quality checks
// from the full document and writes the scored survivors to
// <name>_cfQA_<answer model>.json in DifficultyDir.
func (p *Pipeline) DifficultyFilter(ctx context.Context) (*Report, error) {
	inputs, err := listFiles(p.cfg.QualityDir, qualitySuffix)
	if err != nil {
		return nil, err
	}
	run, err := p.begin(ctx, StageDifficulty, len(inputs))
	if err != nil {
		return nil, err
	}

	difficulty := filter.NewDifficulty(p.answer, p.eval, filter.DifficultyOptions{
		AnswerModel:  p.cfg.Answer.Model,
		EvalModel:    p.cfg.Eval.Model,
		Step:         p.cfg.ShrinkStep,
		MaxAttempts:  p.cfg.ShrinkMaxAttempts,
		ResampleSeed: p.cfg.ResampleSeed,
	})

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return run.finish(ctx), err
		}
		name := strings.TrimSuffix(filepath.Base(path), qualitySuffix)
		out := filepath.Join(p.cfg.DifficultyDir, name+difficultySuffix+modelSlug(p.cfg.Answer.Model)+".json")
		if run.skip(out) {
			continue
		}

		items, err := qa.ReadFile(path)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}
		rows, err := p.contextRows(ctx, name)
		if err != nil {
			run.drop(ctx, name, "", err)
			continue
		}

		run.report.ItemsIn += len(items)
		for _, it := range items {
			if !filter.Eligible(it) {
				run.drop(ctx, name, it.Question, ErrBelowThreshold)
			}
		}
		kept, err := difficulty.Run(ctx, rows, items)
		if err != nil {
			return run.finish(ctx), err
		}
		if err := qa.WriteFile(out, kept); err != nil {
			return run.finish(ctx), fmt.Errorf("writing %s: %w", out, err)
		}
		run.report.Documents++
		run.report.ItemsOut += len(kept)
	}
	return run.finish(ctx), nil
}

// --- documents ---

func (p *Pipeline) clusteredPath(name string) string {
	return filepath.Join(p.cfg.ClusteredDir, name+ingest.ClusteredSuffix+"."+p.cfg.TableFormat)
}

// loadDocument returns a clustered document from the store, falling back to
// its clustered table, which is then saved for later similarity searches.
func (p *Pipeline) loadDocument(ctx context.Context, name string) (*sources.Document, error) {
	tbl, err := p.readClustered(name)
	if err != nil {
		return nil, err
	}
	doc, err := p.store.LoadDocument(ctx, tbl.Document.FileName)
	if err == nil && doc.Len() == tbl.Document.Len() {
		return doc, nil
	}
	if err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
		slog.Warn("synqa: loading stored document", "file", name, "error", err)
	}
	if _, err := p.store.SaveDocument(ctx, tbl.Document, tbl.EmbeddingModel); err != nil {
		slog.Warn("synqa: saving document", "file", name, "error", err)
	}
	return tbl.Document, nil
}

func (p *Pipeline) readClustered(name string) (*ingest.Table, error) {
	for _, format := range []string{p.cfg.TableFormat, "csv", "xlsx"} {
		path := filepath.Join(p.cfg.ClusteredDir, name+ingest.ClusteredSuffix+"."+format)
		if _, err := os.Stat(path); err == nil {
			return ingest.ReadTable(path)
		}
	}
	return nil, fmt.Errorf("%w: no clustered table for %s", ErrNoInputs, name)
}

// contextRows returns the full-document context for re-answering: the
// original document's paragraphs when RawDocsDir holds it, the clustered
// source rows otherwise.
func (p *Pipeline) contextRows(ctx context.Context, name string) ([]string, error) {
	if p.cfg.RawDocsDir != "" {
		for _, format := range rawFormats {
			path := filepath.Join(p.cfg.RawDocsDir, name+"."+format)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			text, err := p.readers.RawText(ctx, path)
			if err != nil {
				slog.Warn("synqa: raw document unreadable, using source rows", "file", name, "error", err)
				break
			}
			return filter.SplitParagraphs(text), nil
		}
	}
	tbl, err := p.readClustered(name)
	if err != nil {
		return nil, err
	}
	return filter.DocumentRows(tbl.Document), nil
}

// --- run bookkeeping ---

type stageRun struct {
	p      *Pipeline
	report *Report
	start  time.Time
}

func (p *Pipeline) begin(ctx context.Context, stage string, inputs int) (*stageRun, error) {
	id, err := p.store.BeginRun(ctx, stage)
	if err != nil {
		return nil, err
	}
	slog.Info("synqa: stage started", "stage", stage, "run_id", id, "inputs", inputs)
	return &stageRun{p: p, report: &Report{RunID: id, Stage: stage}, start: time.Now()}, nil
}

// skip reports whether out already exists and the stage is not forced.
func (r *stageRun) skip(out string) bool {
	if r.p.cfg.Force {
		return false
	}
	if _, err := os.Stat(out); err != nil {
		return false
	}
	slog.Info("synqa: output exists, skipping", "stage", r.report.Stage, "output", out)
	r.report.Skipped++
	return true
}

// drop logs a discarded item or document to the failure log.
func (r *stageRun) drop(ctx context.Context, file, question string, reason error) {
	r.report.Dropped++
	slog.Warn("synqa: item dropped", "stage", r.report.Stage, "file", file, "reason", reason)
	err := r.p.store.RecordDrop(ctx, store.Drop{
		RunID:    r.report.RunID,
		Stage:    r.report.Stage,
		FileName: file,
		Question: question,
		Reason:   reason.Error(),
	})
	if err != nil {
		slog.Warn("synqa: recording dropped item", "error", err)
	}
}

func (r *stageRun) finish(ctx context.Context) *Report {
	r.report.Elapsed = time.Since(r.start).Round(time.Millisecond)
	// The run log outlives a cancelled stage.
	err := r.p.store.FinishRun(context.WithoutCancel(ctx), r.report.RunID,
		r.report.Documents, r.report.ItemsIn, r.report.ItemsOut)
	if err != nil {
		slog.Warn("synqa: recording run", "run_id", r.report.RunID, "error", err)
	}
	slog.Info("synqa: stage finished",
		"stage", r.report.Stage,
		"documents", r.report.Documents,
		"skipped", r.report.Skipped,
		"items_in", r.report.ItemsIn,
		"items_out", r.report.ItemsOut,
		"dropped", r.report.Dropped,
		"elapsed", r.report.Elapsed,
	)
	return r.report
}

// --- helpers ---

// listFiles returns the files in dir ending in any of the suffixes, in
// name order. A missing directory is an error.
func listFiles(dir string, suffixes ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInputs, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, s := range suffixes {
			if strings.HasSuffix(e.Name(), s) {
				out = append(out, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	return out, nil
}

// modelSlug makes a model id safe for use in a file name.
func modelSlug(model string) string {
	return strings.NewReplacer("/", "-", ":", "-", " ", "_").Replace(model)
}
