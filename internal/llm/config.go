package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultModels is the default candidate order.
var DefaultModels = []string{
	"gemini:gemini-2.5-flash",
	"gemini:gemini-2.5-pro",
	"gemini:gemini-1.0-pro",
	"gemini:gemini-pro",
}

// Config holds provider credentials and the candidate list.
type Config struct {
	GeminiKey     string
	OpenAIKey     string
	OpenAIBaseURL string
	AnthropicKey  string

	// Models lists candidates as "provider:model". A bare model name means gemini.
	Models []string

	Timeout time.Duration
}

// ParseCandidate splits "provider:model" into its parts.
func ParseCandidate(s string) (provider, model string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty candidate")
	}
	provider, model, found := strings.Cut(s, ":")
	if !found {
		return "gemini", s, nil
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if model == "" {
		return "", "", fmt.Errorf("candidate %q: missing model", s)
	}
	switch provider {
	case "gemini", "openai", "anthropic":
		return provider, model, nil
	}
	return "", "", fmt.Errorf("candidate %q: unknown provider %q", s, provider)
}

// NewChainFromConfig builds the fallback chain. Candidates whose provider
// has no API key are dropped. It returns nil when no candidate remains,
// meaning generation is not configured.
func NewChainFromConfig(ctx context.Context, cfg Config) (*Chain, error) {
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}

	providers := map[string]Provider{}
	getProvider := func(name string) (Provider, error) {
		if p, ok := providers[name]; ok {
			return p, nil
		}
		var p Provider
		var err error
		switch name {
		case "gemini":
			if cfg.GeminiKey == "" {
				return nil, nil
			}
			p, err = NewGeminiProvider(ctx, cfg.GeminiKey)
		case "openai":
			if cfg.OpenAIKey == "" {
				return nil, nil
			}
			p, err = NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIKey)
		case "anthropic":
			if cfg.AnthropicKey == "" {
				return nil, nil
			}
			p, err = NewAnthropicProvider(cfg.AnthropicKey)
		}
		if err != nil {
			return nil, err
		}
		providers[name] = p
		return p, nil
	}

	var candidates []Candidate
	for _, m := range models {
		providerName, model, err := ParseCandidate(m)
		if err != nil {
			return nil, err
		}
		p, err := getProvider(providerName)
		if err != nil {
			return nil, err
		}
		if p == nil {
			slog.Debug("skipping candidate without API key", "candidate", m)
			continue
		}
		candidates = append(candidates, Candidate{Provider: p, Model: model})
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	return NewChain(candidates, cfg.Timeout), nil
}
