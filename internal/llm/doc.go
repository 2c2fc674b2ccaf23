// Package llm provides language model interfaces for transcription and grading.
// It supports multiple vision-capable providers (OpenAI, Anthropic and Gemini)
// behind one Client interface, plus rate limiting and response caching
// wrappers. Timeouts and retries belong to the callers, not to the clients.
package llm
