// Package dispatch issues batches of independent model requests
// concurrently and returns their results in request order.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/brunobiangulo/synqa/llm"
)

// Options bounds a dispatcher's fan-out.
type Options struct {
	// Concurrency caps in-flight requests. Zero means one goroutine per
	// request with no cap.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// RequestsPerSecond paces request starts. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// Dispatcher sends batches of requests to a provider.
type Dispatcher struct {
	provider llm.Provider
	limit    int
	limiter  *rate.Limiter
}

// New creates a dispatcher for the given provider.
func New(p llm.Provider, opts Options) *Dispatcher {
	d := &Dispatcher{provider: p, limit: opts.Concurrency}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return d
}

// ChatResult is the outcome of one chat request. Exactly one of Response
// and Err is set.
type ChatResult struct {
	Response *llm.ChatResponse
	Err      error
}

// EmbedResult is the outcome of one embedding batch.
type EmbedResult struct {
	Vectors [][]float32
	Err     error
}

// Chat sends every request concurrently and waits for all of them. The
// result slice is index-aligned with reqs. A failed request does not cancel
// its siblings.
func (d *Dispatcher) Chat(ctx context.Context, reqs []llm.ChatRequest) []ChatResult {
	resps, errs := fanOut(ctx, d, reqs, d.provider.Chat)
	out := make([]ChatResult, len(reqs))
	for i := range reqs {
		out[i] = ChatResult{Response: resps[i], Err: errs[i]}
	}
	return out
}

// Embed sends every batch concurrently. The result slice is index-aligned
// with batches.
func (d *Dispatcher) Embed(ctx context.Context, batches [][]string) []EmbedResult {
	vecs, errs := fanOut(ctx, d, batches, d.provider.Embed)
	out := make([]EmbedResult, len(batches))
	for i := range batches {
		out[i] = EmbedResult{Vectors: vecs[i], Err: errs[i]}
	}
	return out
}

// fanOut runs call for every item and stores each outcome at the item's
// index. Goroutines never return an error to the group, so one failure
// leaves the rest of the batch running.
func fanOut[Req, Res any](ctx context.Context, d *Dispatcher, items []Req, call func(context.Context, Req) (Res, error)) ([]Res, []error) {
	results := make([]Res, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}

	start := time.Now()
	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}

	for i, item := range items {
		g.Go(func() error {
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					errs[i] = err
					return nil
				}
			}
			results[i], errs[i] = call(ctx, item)
			return nil
		})
	}
	// Goroutines always return nil; outcomes are in errs.
	g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	slog.Info("dispatch: batch complete",
		"requests", len(items),
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return results, errs
}
