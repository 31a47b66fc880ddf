package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/shared"
)

// payloadEntry represents a cached report payload with expiration
type payloadEntry struct {
	payload   []byte
	expiresAt time.Time
}

// InMemoryReportCache implements analytics.PayloadCache using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryReportCache struct {
	mu        sync.RWMutex
	entries   map[string]payloadEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryReportCache creates a new in-memory report payload cache
// It starts a background goroutine to clean up expired entries
func NewInMemoryReportCache() *InMemoryReportCache {
	cache := &InMemoryReportCache{
		entries:  make(map[string]payloadEntry),
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

// GetPayload returns the cached payload for a fingerprint
// A miss or an expired entry is reported as shared.ErrNotFound
func (c *InMemoryReportCache) GetPayload(ctx context.Context, fingerprint string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[fingerprint]
	if !exists {
		return nil, shared.ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		return nil, shared.ErrNotFound // Expired, treat as missing
	}

	return e.payload, nil
}

// SetPayload stores a payload with a time-to-live
func (c *InMemoryReportCache) SetPayload(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = payloadEntry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// DeletePayload drops the cached payload for a fingerprint
func (c *InMemoryReportCache) DeletePayload(ctx context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, fingerprint)
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (c *InMemoryReportCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryReportCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemoryReportCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for fingerprint, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, fingerprint)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryReportCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryReportCache implements PayloadCache
var _ analytics.PayloadCache = (*InMemoryReportCache)(nil)
