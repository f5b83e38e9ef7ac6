package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const defaultMaxInputChars = 50000

// ProviderStrategy runs the extraction prompt against one provider.
type ProviderStrategy struct {
	provider  ports.LLMProvider
	maxTokens int
}

var _ ports.ExtractionStrategy = (*ProviderStrategy)(nil)

// NewProviderStrategy wraps a provider as an extraction strategy.
func NewProviderStrategy(provider ports.LLMProvider, maxTokens int) *ProviderStrategy {
	return &ProviderStrategy{provider: provider, maxTokens: maxTokens}
}

// Name reports the wrapped provider's name.
func (s *ProviderStrategy) Name() string {
	return s.provider.Name()
}

// AttemptExtract makes exactly one provider call and validates the reply.
func (s *ProviderStrategy) AttemptExtract(ctx context.Context, text string, hints domain.Hints) (domain.Extraction, error) {
	reply, err := s.provider.Complete(ctx, ports.CompletionRequest{
		System:      extractionSystemPrompt,
		Prompt:      buildExtractionPrompt(text, hints),
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
		JSONOutput:  true,
	})
	if err != nil {
		return domain.Extraction{}, err
	}
	return ParseExtraction(reply)
}

// Chain tries its strategies in order and returns the first valid
// extraction, with caller hints applied on top.
type Chain struct {
	strategies    []ports.ExtractionStrategy
	maxInputChars int
	timeout       time.Duration
	logger        *slog.Logger
}

var _ ports.Extractor = (*Chain)(nil)

// NewChain builds an extractor; maxInputChars <= 0 means 50000 and timeout
// bounds every single attempt.
func NewChain(strategies []ports.ExtractionStrategy, maxInputChars int, timeout time.Duration, logger *slog.Logger) *Chain {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &Chain{
		strategies:    strategies,
		maxInputChars: maxInputChars,
		timeout:       timeout,
		logger:        logger,
	}
}

// Extract sends the truncated text to each strategy until one succeeds.
func (c *Chain) Extract(ctx context.Context, text string, hints domain.Hints) (domain.Extraction, error) {
	if len(c.strategies) == 0 {
		return domain.Extraction{}, fmt.Errorf("%w: no providers configured", domain.ErrExtractionServiceUnavailable)
	}

	text = truncateRunes(text, c.maxInputChars)

	var errs []error
	for _, strategy := range c.strategies {
		ex, err := c.attempt(ctx, strategy, text, hints)
		if err == nil {
			hints.Apply(&ex)
			return ex, nil
		}
		c.warn("extraction attempt failed", "provider", strategy.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	return domain.Extraction{}, fmt.Errorf("%w: %v", domain.ErrExtractionServiceUnavailable, errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, strategy ports.ExtractionStrategy, text string, hints domain.Hints) (domain.Extraction, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return strategy.AttemptExtract(ctx, text, hints)
}

func truncateRunes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

func (c *Chain) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
