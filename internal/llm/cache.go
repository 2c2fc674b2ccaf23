package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry represents a cached model response.
type cacheEntry struct {
	expiry   time.Time
	response string
}

// responseCache provides thread-safe caching for model responses.
type responseCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

// newResponseCache creates a new cache with the specified TTL.
func newResponseCache(ttl time.Duration) *responseCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	cache := &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a response from the cache if it exists and hasn't expired.
func (c *responseCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return "", false
	}
	return entry.response, true
}

// set stores a response in the cache.
func (c *responseCache) set(key, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		response: response,
		expiry:   time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *responseCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// remove drops a single entry.
func (c *responseCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// size returns the number of entries in the cache.
func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedClient remembers successful responses for identical requests.
// Only use it for idempotent calls such as page transcription.
type CachedClient struct {
	next  Client
	cache *responseCache
	once  sync.Once
}

// Cached wraps a client with a response cache.
func Cached(next Client, ttl time.Duration) *CachedClient {
	return &CachedClient{
		next:  next,
		cache: newResponseCache(ttl),
	}
}

// Complete returns a cached response when available, otherwise delegates.
func (c *CachedClient) Complete(ctx context.Context, req Request) (string, error) {
	key := requestKey(req)
	if resp, ok := c.cache.get(key); ok {
		return resp, nil
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	c.cache.set(key, resp)
	return resp, nil
}

// Forget drops the cached response for req so the next identical request
// reaches the provider again.
func (c *CachedClient) Forget(req Request) {
	c.cache.remove(requestKey(req))
}

// Close stops the cleanup goroutine and closes the wrapped client.
func (c *CachedClient) Close() error {
	c.once.Do(func() { close(c.cache.stopCh) })
	return Close(c.next)
}

// requestKey hashes every field that influences the response.
func requestKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	for _, img := range req.Images {
		h.Write([]byte(img.MIMEType))
		h.Write([]byte{0})
		h.Write(img.Data)
		h.Write([]byte{0})
	}
	if req.JSON {
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
