// Package filter scores generated items with model judges: the quality
// filter checks faithfulness and form, the difficulty filter re-answers each
// surviving question from the full document.
package filter

import (
	"math"
	"strings"

	"github.com/brunobiangulo/synqa/llm"
	"github.com/brunobiangulo/synqa/qa"
)

// Seed is the fixed sampling seed of every judge and answering call.
const Seed = 23

// TopLogprobs is the number of alternatives requested per judged token.
const TopLogprobs = 5

// judgeRequest builds a deterministic request that asks for logprobs.
func judgeRequest(model, prompt string) llm.ChatRequest {
	seed := Seed
	return llm.ChatRequest{
		Model:       model,
		Messages:    llm.UserMessage(prompt),
		Temperature: 0,
		Seed:        &seed,
		Logprobs:    true,
		TopLogprobs: TopLogprobs,
	}
}

// WeightedScore turns a judge response into a rating weighted by the
// model's confidence in it: rating × P(emitted token), with the probability
// rounded to whole hundredths of a percent. Anything but a single digit is
// invalid.
func WeightedScore(resp *llm.ChatResponse) qa.Score {
	if resp == nil || len(resp.Content) != 1 {
		return qa.Score{}
	}
	c := resp.Content[0]
	if c < '0' || c > '9' || len(resp.Logprobs) == 0 {
		return qa.Score{}
	}
	rating := float64(c - '0')

	tok := resp.Logprobs[0]
	prob := tok.Probability()
	if len(tok.TopLogprobs) > 0 {
		prob = tok.TopLogprobs[0].Probability()
	}
	pct := math.Round(prob*100*100) / 100
	return qa.ValidScore(rating * pct / 100)
}

// rawContent is the stored verbatim judge answer; failed calls store the
// invalid marker.
func rawContent(resp *llm.ChatResponse, err error) string {
	if err != nil || resp == nil {
		return qa.InvalidAnswer
	}
	return resp.Content
}

// IsYes reports whether a formal check answer is an affirmative.
func IsYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!")
	return s == "yes"
}
