package llm

import (
	"context"
	"fmt"
	"math"
)

// Provider is the interface for model interactions: chat completions for
// generation and judging, embeddings for clustering and retrieval.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts, index-aligned with
	// the input.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	// Seed requests deterministic sampling where the backend supports it.
	Seed      *int `json:"seed,omitempty"`
	MaxTokens int  `json:"max_tokens,omitempty"`
	// Logprobs asks for per-token log-probabilities; TopLogprobs sets the
	// number of alternatives returned per position.
	Logprobs    bool `json:"logprobs,omitempty"`
	TopLogprobs int  `json:"top_logprobs,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage wraps a prompt as a single-message conversation.
func UserMessage(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}

// TokenLogprob is the log-probability of one emitted token together with
// the most likely alternatives at that position.
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	TopLogprobs []TopLogprob `json:"top_logprobs,omitempty"`
}

// TopLogprob is one alternative token at a position.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// Probability converts the log-probability to a linear probability.
func (t TokenLogprob) Probability() float64 {
	return math.Exp(t.Logprob)
}

// Probability converts the log-probability to a linear probability.
func (t TopLogprob) Probability() float64 {
	return math.Exp(t.Logprob)
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string         `json:"content"`
	Model            string         `json:"model"`
	FinishReason     string         `json:"finish_reason"`
	Logprobs         []TokenLogprob `json:"logprobs,omitempty"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // openai, ollama, lmstudio, gemini, groq, openrouter, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// defaultBaseURLs holds the endpoint used when Config.BaseURL is empty.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com",
	"ollama":     "http://localhost:11434",
	"lmstudio":   "http://localhost:1234",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"groq":       "https://api.groq.com/openai",
	"openrouter": "https://openrouter.ai/api",
}

// DefaultBaseURL returns the default endpoint of a known provider.
func DefaultBaseURL(provider string) string {
	return defaultBaseURLs[provider]
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "gemini":
		// Gemini's OpenAI-compatible surface has no /v1 prefix.
		return newHosted(cfg, ""), nil
	case "lmstudio", "groq", "openrouter":
		return newHosted(cfg, "/v1"), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
