package llm

import (
	"fmt"
	"strings"

	"CivicIndex/internal/ports"
)

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	providers map[string]ports.LLMProvider
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]ports.LLMProvider{}}
}

// Register adds or replaces a provider implementation.
func (r *Registry) Register(provider ports.LLMProvider) {
	if r.providers == nil {
		r.providers = map[string]ports.LLMProvider{}
	}
	r.providers[provider.Name()] = provider
}

// Resolve returns a provider by name or an error if it is absent. "openai"
// is accepted as an alias of "chatgpt".
func (r *Registry) Resolve(name string) (ports.LLMProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "openai" {
		key = "chatgpt"
	}
	if provider, ok := r.providers[key]; ok {
		return provider, nil
	}
	return nil, fmt.Errorf("llm provider %s is not registered", name)
}

// Ordered resolves names in order, skipping repeats.
func (r *Registry) Ordered(names []string) ([]ports.LLMProvider, error) {
	seen := map[string]struct{}{}
	out := make([]ports.LLMProvider, 0, len(names))
	for _, name := range names {
		provider, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[provider.Name()]; dup {
			continue
		}
		seen[provider.Name()] = struct{}{}
		out = append(out, provider)
	}
	return out, nil
}

// Strategies wraps the ordered providers as extraction strategies.
func (r *Registry) Strategies(names []string, maxTokens int) ([]ports.ExtractionStrategy, error) {
	providers, err := r.Ordered(names)
	if err != nil {
		return nil, err
	}
	out := make([]ports.ExtractionStrategy, 0, len(providers))
	for _, p := range providers {
		out = append(out, NewProviderStrategy(p, maxTokens))
	}
	return out, nil
}
