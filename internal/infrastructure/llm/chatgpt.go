package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CivicIndex/internal/config"
	"CivicIndex/internal/ports"
)

// ChatGPTClient implements ports.LLMProvider backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

var _ ports.LLMProvider = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig, timeout time.Duration) *ChatGPTClient {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ChatGPTClient{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name identifies the provider inside the registry.
func (c *ChatGPTClient) Name() string {
	return "chatgpt"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt as the final user message and returns the reply.
func (c *ChatGPTClient) Complete(ctx context.Context, creq ports.CompletionRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chatgpt: %w", ErrMisconfigured)
	}

	messages := make([]chatMessage, 0, len(creq.History)+2)
	if system := strings.TrimSpace(creq.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range creq.History {
		messages = append(messages, chatMessage{Role: normalizeRole(m.Role), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: creq.Prompt})

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": creq.Temperature,
		"max_tokens":  firstPositive(creq.MaxTokens, c.maxTokens, 2000),
	}
	if creq.JSONOutput {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chatgpt returned no content")
	}
	return decoded.Choices[0].Message.Content, nil
}

func normalizeRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), "assistant") {
		return "assistant"
	}
	return "user"
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
