package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedClient shares one outbound request budget across all callers.
type rateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// RateLimited wraps a client so that at most requestsPerMinute calls start per
// minute. A non-positive limit returns the client unchanged.
func RateLimited(next Client, requestsPerMinute int) Client {
	if requestsPerMinute <= 0 {
		return next
	}
	return &rateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
	}
}

// Complete waits for a token before delegating.
func (c *rateLimitedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter canceled: %w", err)
	}
	return c.next.Complete(ctx, req)
}

// Close closes the wrapped client.
func (c *rateLimitedClient) Close() error {
	return Close(c.next)
}
