package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CivicIndex/internal/config"
	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

func TestAnthropicClientComplete(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("unexpected version header: %s", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"title\":\"Budget\"}"}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(config.AnthropicConfig{
		Endpoint: srv.URL,
		Model:    "claude-test",
		APIKey:   "sk-ant",
	}, time.Second)

	reply, err := client.Complete(context.Background(), ports.CompletionRequest{
		System: "system prompt",
		History: []domain.ChatMessage{
			{Role: "assistant", Content: "Hello! Ask me about the town."},
			{Role: "user", Content: "What is the budget?"},
			{Role: "assistant", Content: "About $128M."},
		},
		Prompt:    "And last year?",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != `{"title":"Budget"}` {
		t.Fatalf("unexpected reply: %s", reply)
	}

	if captured["system"] != "system prompt" || captured["model"] != "claude-test" {
		t.Fatalf("unexpected payload: %v", captured)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected leading assistant turn dropped, got %v", messages)
	}
	first, _ := messages[0].(map[string]any)
	last, _ := messages[2].(map[string]any)
	if first["role"] != "user" || last["role"] != "user" || last["content"] != "And last year?" {
		t.Fatalf("unexpected messages: %v", messages)
	}
}

func TestAnthropicClientErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewAnthropicClient(config.AnthropicConfig{Endpoint: "http://x", Model: "m"}, 0).
		Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewAnthropicClient(config.AnthropicConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"}, time.Second)
	if _, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestChatGPTClientComplete(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-openai" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"answer text"}}]}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{
		Endpoint: srv.URL,
		Model:    "gpt-test",
		APIKey:   "sk-openai",
	}, time.Second)

	reply, err := client.Complete(context.Background(), ports.CompletionRequest{
		System:     "be brief",
		History:    []domain.ChatMessage{{Role: "user", Content: "earlier"}},
		Prompt:     "now",
		JSONOutput: true,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != "answer text" {
		t.Fatalf("unexpected reply: %s", reply)
	}

	messages, _ := captured["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected system, history and prompt messages, got %v", messages)
	}
	format, _ := captured["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", captured["response_format"])
	}
}

func TestChatGPTClientEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"}, time.Second)
	if _, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestRegistryOrdered(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(NewAnthropicClient(config.AnthropicConfig{}, 0))
	reg.Register(NewChatGPTClient(config.ChatGPTConfig{}, 0))

	providers, err := reg.Ordered([]string{"OpenAI", "anthropic", "chatgpt"})
	if err != nil {
		t.Fatalf("Ordered returned error: %v", err)
	}
	if len(providers) != 2 || providers[0].Name() != "chatgpt" || providers[1].Name() != "anthropic" {
		t.Fatalf("unexpected providers: %v", providers)
	}

	if _, err := reg.Resolve("gemini"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
