package llm

import (
	"context"
	"encoding/base64"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Image is an attached page image.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL encodes the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Request is a single model call.
type Request struct {
	System string
	Prompt string
	Images []Image
	// JSON asks the provider for a JSON-only response where supported.
	JSON bool
}

// Config holds configuration for an LLM client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	CacheTTL    time.Duration
	Temperature float64
	MaxTokens   int
	RateLimit   int // requests per minute, 0 disables limiting
}
