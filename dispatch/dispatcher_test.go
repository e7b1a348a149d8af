package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/synqa/llm"
)

// echoProvider answers every prompt with the prompt itself after a random
// delay, so completion order differs from request order.
type echoProvider struct {
	rng      *rand.Rand
	mu       sync.Mutex
	fail     func(prompt string) bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *echoProvider) delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.IntN(5)) * time.Millisecond
}

func (p *echoProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(p.delay())
	prompt := req.Messages[0].Content
	if p.fail != nil && p.fail(prompt) {
		return nil, errors.New("boom")
	}
	return &llm.ChatResponse{Content: prompt}, nil
}

func (p *echoProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(p.delay())
	for _, t := range texts {
		if p.fail != nil && p.fail(t) {
			return nil, errors.New("boom")
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func newEcho(fail func(string) bool) *echoProvider {
	return &echoProvider{rng: rand.New(rand.NewPCG(1, 2)), fail: fail}
}

func prompts(n int) []llm.ChatRequest {
	reqs := make([]llm.ChatRequest, n)
	for i := range reqs {
		reqs[i] = llm.ChatRequest{Messages: llm.UserMessage(fmt.Sprintf("p%d", i))}
	}
	return reqs
}

func TestChatResultsAlignWithRequests(t *testing.T) {
	d := New(newEcho(nil), Options{})
	reqs := prompts(50)
	got := d.Chat(context.Background(), reqs)
	require.Len(t, got, 50)
	for i, r := range got {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("p%d", i), r.Response.Content)
	}
}

func TestChatPartialFailureKeepsSiblings(t *testing.T) {
	p := newEcho(func(s string) bool { return s == "p3" || s == "p7" })
	got := New(p, Options{}).Chat(context.Background(), prompts(10))
	for i, r := range got {
		if i == 3 || i == 7 {
			assert.Error(t, r.Err)
			assert.Nil(t, r.Response)
			continue
		}
		require.NoError(t, r.Err, "item %d", i)
		assert.Equal(t, fmt.Sprintf("p%d", i), r.Response.Content)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	p := newEcho(nil)
	New(p, Options{Concurrency: 3}).Chat(context.Background(), prompts(30))
	assert.LessOrEqual(t, p.peak.Load(), int32(3))
}

func TestEmptyBatch(t *testing.T) {
	assert.Empty(t, New(newEcho(nil), Options{}).Chat(context.Background(), nil))
}

func TestEmbedAligned(t *testing.T) {
	got := New(newEcho(nil), Options{RequestsPerSecond: 1000, Burst: 10}).
		Embed(context.Background(), [][]string{{"a"}, {"bb", "ccc"}})
	require.Len(t, got, 2)
	assert.Equal(t, [][]float32{{1}}, got[0].Vectors)
	assert.Equal(t, [][]float32{{2}, {3}}, got[1].Vectors)
}

func TestChatRetryRebuildsOnlyFailures(t *testing.T) {
	// Prompts longer than 3 characters fail; the rebuild trims one
	// character per attempt.
	p := newEcho(func(s string) bool { return len(s) > 3 })
	reqs := []llm.ChatRequest{
		{Messages: llm.UserMessage("ok")},
		{Messages: llm.UserMessage("abcde")},
	}

	var mu sync.Mutex
	var rebuilt []int
	got := New(p, Options{}).ChatRetry(context.Background(), reqs, RetryPolicy{MaxAttempts: 5},
		func(i, attempt int) (llm.ChatRequest, bool) {
			mu.Lock()
			rebuilt = append(rebuilt, i)
			mu.Unlock()
			s := "abcde"[:5-(attempt-1)]
			return llm.ChatRequest{Messages: llm.UserMessage(s)}, true
		})

	require.NoError(t, got[0].Err)
	assert.Equal(t, "ok", got[0].Response.Content)
	require.NoError(t, got[1].Err)
	assert.Equal(t, "abc", got[1].Response.Content)
	assert.Equal(t, []int{1, 1}, rebuilt)
}

func TestChatRetryExhausted(t *testing.T) {
	p := newEcho(func(string) bool { return true })
	got := New(p, Options{}).ChatRetry(context.Background(), prompts(2), RetryPolicy{MaxAttempts: 3}, nil)
	for _, r := range got {
		assert.ErrorIs(t, r.Err, ErrRetriesExhausted)
		assert.True(t, strings.Contains(r.Err.Error(), "after 3 attempts"), r.Err.Error())
	}
}

func TestChatRetryGiveUpEarly(t *testing.T) {
	p := newEcho(func(string) bool { return true })
	got := New(p, Options{}).ChatRetry(context.Background(), prompts(1), RetryPolicy{MaxAttempts: 9},
		func(int, int) (llm.ChatRequest, bool) { return llm.ChatRequest{}, false })
	assert.ErrorIs(t, got[0].Err, ErrRetriesExhausted)
	assert.Contains(t, got[0].Err.Error(), "after 1 attempts")
}

func TestEmbedRetryPlaceholder(t *testing.T) {
	p := newEcho(func(s string) bool { return s == "bad" })
	got := New(p, Options{}).EmbedRetry(context.Background(), [][]string{{"bad", "x"}}, RetryPolicy{MaxAttempts: 2},
		func(i, attempt int) ([]string, bool) { return []string{"NA", "NA"}, true })
	require.NoError(t, got[0].Err)
	assert.Len(t, got[0].Vectors, 2)
}
