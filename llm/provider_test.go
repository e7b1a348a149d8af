package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"openai", "*llm.openAIProvider"},
		{"ollama", "*llm.ollamaProvider"},
		{"lmstudio", "*llm.hostedProvider"},
		{"gemini", "*llm.hostedProvider"},
		{"groq", "*llm.hostedProvider"},
		{"openrouter", "*llm.hostedProvider"},
		{"custom", "*llm.openAICompatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			gotType := fmt.Sprintf("%T", p)
			if gotType != tt.wantType {
				t.Errorf("NewProvider(%q) type = %s, want %s", tt.provider, gotType, tt.wantType)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist"})
	if err == nil || err.Error() != "unknown llm provider: doesnotexist" {
		t.Errorf("unknown provider error = %v", err)
	}
	_, err = NewProvider(Config{})
	if err == nil || err.Error() != "llm provider not specified" {
		t.Errorf("empty provider error = %v", err)
	}
}

func baseField(p Provider, name string) reflect.Value {
	return reflect.ValueOf(p).Elem().FieldByName("base").FieldByName(name)
}

func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider   string
		wantURL    string
		wantPrefix string
	}{
		{"openai", "https://api.openai.com", "/v1"},
		{"ollama", "http://localhost:11434", "/v1"},
		{"lmstudio", "http://localhost:1234", "/v1"},
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai", ""},
		{"groq", "https://api.groq.com/openai", "/v1"},
		{"openrouter", "https://openrouter.ai/api", "/v1"},
		{"custom", "", "/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", tt.provider, err)
			}
			if got := baseField(p, "cfg").FieldByName("BaseURL").String(); got != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", got, tt.wantURL)
			}
			if got := baseField(p, "pathPrefix").String(); got != tt.wantPrefix {
				t.Errorf("pathPrefix = %q, want %q", got, tt.wantPrefix)
			}
		})
	}
}

func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"
	for _, provider := range []string{"openai", "ollama", "lmstudio", "gemini", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: provider, Model: "m", BaseURL: customURL})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", provider, err)
			}
			if got := baseField(p, "cfg").FieldByName("BaseURL").String(); got != customURL {
				t.Errorf("BaseURL = %q, want %q", got, customURL)
			}
		})
	}
}

func TestOpenAIDefaultEmbeddingModel(t *testing.T) {
	p := NewOpenAI(Config{Provider: "openai"})
	if got := baseField(p, "cfg").FieldByName("Model").String(); got != "text-embedding-3-small" {
		t.Errorf("model = %q", got)
	}
}

func TestChatSendsSamplingFieldsAndDecodesLogprobs(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{
			"model": "judge",
			"choices": [{
				"message": {"content": "5"},
				"finish_reason": "stop",
				"logprobs": {"content": [
					{"token": "5", "logprob": -0.1053605, "top_logprobs": [
						{"token": "5", "logprob": -0.1053605},
						{"token": "4", "logprob": -2.3}
					]}
				]}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Model: "judge", BaseURL: srv.URL, APIKey: "k"})
	seed := 23
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:    UserMessage("rate it"),
		Temperature: 0,
		Seed:        &seed,
		Logprobs:    true,
		TopLogprobs: 5,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if _, ok := got["temperature"]; !ok {
		t.Error("temperature 0 must be sent explicitly")
	}
	if got["seed"] != float64(23) || got["logprobs"] != true || got["top_logprobs"] != float64(5) {
		t.Errorf("request body = %v", got)
	}

	if resp.Content != "5" || len(resp.Logprobs) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if p := resp.Logprobs[0].Probability(); math.Abs(p-0.9) > 1e-6 {
		t.Errorf("probability = %v, want 0.9", p)
	}
	if len(resp.Logprobs[0].TopLogprobs) != 2 {
		t.Errorf("top logprobs = %v", resp.Logprobs[0].TopLogprobs)
	}
	if resp.TotalTokens != 11 {
		t.Errorf("total tokens = %d", resp.TotalTokens)
	}
}

func TestChatClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "context length exceeded", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Model: "m", BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: UserMessage("x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [
			{"embedding": [2, 2], "index": 1},
			{"embedding": [1, 1], "index": 0}
		]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Model: "emb", BaseURL: srv.URL})
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors out of order: %v", vecs)
	}

	if _, err := p.Embed(context.Background(), []string{"a", "b", "c"}); err == nil {
		t.Error("expected cardinality mismatch error")
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"embeddings": [[0.5, 0.25]]}`)
	}))
	defer srv.Close()

	p := NewOllama(Config{Model: "nomic-embed-text", BaseURL: srv.URL})
	vecs, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 || vecs[0][1] != 0.25 {
		t.Errorf("vecs = %v", vecs)
	}
}
