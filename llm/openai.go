package llm

import "context"

// openAIProvider implements Provider for the OpenAI API.
//
// Log-probabilities (needed by the confidence-weighted judge scores) are
// supported by the chat completions endpoint for the gpt-4o and gpt-4.1
// families. The default embedding model is text-embedding-3-small (1536 dim).
//
// API key: set via config, the SYNQA_<ROLE>_API_KEY variables, or OPENAI_API_KEY.
type openAIProvider struct {
	base openAICompatClient
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL("openai")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	return &openAIProvider{base: newOpenAICompatClient(cfg)}
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}

// hostedProvider covers the remaining OpenAI-compatible hosts (LM Studio,
// Gemini, Groq, OpenRouter). They differ only in base URL and path prefix.
type hostedProvider struct {
	base openAICompatClient
}

func newHosted(cfg Config, prefix string) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(cfg.Provider)
	}
	return &hostedProvider{base: newOpenAICompatClientPrefix(cfg, prefix)}
}

func (p *hostedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *hostedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}
