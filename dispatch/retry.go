package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/synqa/llm"
)

// ErrRetriesExhausted marks an item that still failed after the last
// permitted attempt.
var ErrRetriesExhausted = errors.New("dispatch: retries exhausted")

// RetryPolicy bounds how often failed items of a batch are re-issued.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. Values below 1 mean 1.
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ChatRetry sends reqs, then re-issues only the failed ones until they
// succeed or the policy runs out. rebuild produces the request for item i
// on the given attempt (2, 3, ...); returning false gives up on that item
// early. A nil rebuild re-sends the original request.
func (d *Dispatcher) ChatRetry(ctx context.Context, reqs []llm.ChatRequest, policy RetryPolicy, rebuild func(i, attempt int) (llm.ChatRequest, bool)) []ChatResult {
	out := d.Chat(ctx, reqs)
	errs := make([]error, len(out))
	for i, r := range out {
		errs[i] = r.Err
	}

	retryLoop(ctx, policy, errs, func(pending []int, attempt int) []error {
		batch := make([]llm.ChatRequest, 0, len(pending))
		idx := make([]int, 0, len(pending))
		res := make([]error, len(pending))
		for j, i := range pending {
			req := reqs[i]
			if rebuild != nil {
				next, ok := rebuild(i, attempt)
				if !ok {
					res[j] = errGaveUp
					continue
				}
				req = next
			}
			batch = append(batch, req)
			idx = append(idx, j)
		}
		for k, r := range d.Chat(ctx, batch) {
			j := idx[k]
			res[j] = r.Err
			if r.Err == nil {
				out[pending[j]] = r
			}
		}
		return res
	})

	for i := range out {
		if errs[i] != nil {
			out[i] = ChatResult{Err: errs[i]}
		}
	}
	return out
}

// EmbedRetry is ChatRetry for embedding batches.
func (d *Dispatcher) EmbedRetry(ctx context.Context, batches [][]string, policy RetryPolicy, rebuild func(i, attempt int) ([]string, bool)) []EmbedResult {
	out := d.Embed(ctx, batches)
	errs := make([]error, len(out))
	for i, r := range out {
		errs[i] = r.Err
	}

	retryLoop(ctx, policy, errs, func(pending []int, attempt int) []error {
		batch := make([][]string, 0, len(pending))
		idx := make([]int, 0, len(pending))
		res := make([]error, len(pending))
		for j, i := range pending {
			texts := batches[i]
			if rebuild != nil {
				next, ok := rebuild(i, attempt)
				if !ok {
					res[j] = errGaveUp
					continue
				}
				texts = next
			}
			batch = append(batch, texts)
			idx = append(idx, j)
		}
		for k, r := range d.Embed(ctx, batch) {
			j := idx[k]
			res[j] = r.Err
			if r.Err == nil {
				out[pending[j]] = r
			}
		}
		return res
	})

	for i := range out {
		if errs[i] != nil {
			out[i] = EmbedResult{Err: errs[i]}
		}
	}
	return out
}

var errGaveUp = errors.New("no further attempt")

// retryLoop drives attempts 2..MaxAttempts over the failed indexes of errs.
// run receives the pending indexes and returns their new errors, aligned
// with pending. On return every remaining error wraps ErrRetriesExhausted.
func retryLoop(ctx context.Context, policy RetryPolicy, errs []error, run func(pending []int, attempt int) []error) {
	last := make([]error, len(errs))
	copy(last, errs)
	done := make([]bool, len(errs))
	attempts := make([]int, len(errs))
	for i := range errs {
		attempts[i] = 1
	}

loop:
	for attempt := 2; attempt <= policy.attempts(); attempt++ {
		var pending []int
		for i, err := range last {
			if err != nil && !done[i] {
				pending = append(pending, i)
			}
		}
		if len(pending) == 0 {
			break
		}
		if policy.Backoff > 0 {
			select {
			case <-time.After(policy.Backoff):
			case <-ctx.Done():
				for _, i := range pending {
					last[i] = ctx.Err()
				}
				break loop
			}
		}

		slog.Info("dispatch: retrying failed items", "attempt", attempt, "pending", len(pending))
		for j, err := range run(pending, attempt) {
			i := pending[j]
			if errors.Is(err, errGaveUp) {
				done[i] = true
				continue
			}
			attempts[i] = attempt
			last[i] = err
		}
	}

	for i, err := range last {
		if err != nil {
			errs[i] = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts[i], err)
		} else {
			errs[i] = nil
		}
	}
}
