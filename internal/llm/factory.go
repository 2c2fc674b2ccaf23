package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewClient creates a raw LLM client based on the provided configuration.
// The returned client is wrapped in a rate limiter when cfg.RateLimit is set.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	case "gemini":
		client, err = newGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return RateLimited(client, cfg.RateLimit), nil
}

// Close releases provider resources if the client holds any.
func Close(c Client) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Reject tells a caching client that its response to req was unusable.
// Clients without a cache ignore it.
func Reject(c Client, req Request) {
	if f, ok := c.(interface{ Forget(Request) }); ok {
		f.Forget(req)
	}
}
