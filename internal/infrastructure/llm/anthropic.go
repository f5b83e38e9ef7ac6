package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CivicIndex/internal/config"
	"CivicIndex/internal/ports"
)

// ErrMisconfigured marks a provider without endpoint, model or key; the
// extraction chain treats it like any other provider failure.
var ErrMisconfigured = errors.New("llm provider misconfigured")

// AnthropicClient implements ports.LLMProvider over the Messages API.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiKey     string
	version    string
	maxTokens  int
	httpClient *http.Client
}

var _ ports.LLMProvider = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.AnthropicConfig, timeout time.Duration) *AnthropicClient {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}
	return &AnthropicClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		version:    version,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider inside the registry.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete posts one Messages request and joins the returned text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, creq ports.CompletionRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("anthropic client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("anthropic: %w", ErrMisconfigured)
	}

	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  firstPositive(creq.MaxTokens, c.maxTokens, 2000),
		"temperature": creq.Temperature,
		"messages":    anthropicMessages(creq),
	}
	if system := strings.TrimSpace(creq.System); system != "" {
		payload["system"] = system
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("anthropic returned no text")
	}
	return sb.String(), nil
}

// anthropicMessages builds an alternating user/assistant list starting with
// the user; consecutive turns of the same role are merged.
func anthropicMessages(creq ports.CompletionRequest) []chatMessage {
	messages := make([]chatMessage, 0, len(creq.History)+1)
	add := func(role, content string) {
		if len(messages) == 0 && role != "user" {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + content
			return
		}
		messages = append(messages, chatMessage{Role: role, Content: content})
	}
	for _, m := range creq.History {
		add(normalizeRole(m.Role), m.Content)
	}
	add("user", creq.Prompt)
	return messages
}
