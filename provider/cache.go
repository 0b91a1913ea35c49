package provider

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenStore is a TTL-bounded store for bearer tokens. Implementations
// must treat an expired or missing entry as absent; callers refresh on
// absence. Entries carry their own TTL because token lifetimes come from
// the gateway, not from the store.
type TokenStore interface {
	// Get retrieves a live token, reporting ok=false when the key is
	// absent or expired
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a token that expires after ttl
	Set(ctx context.Context, key, token string, ttl time.Duration) error

	// Delete removes a token
	Delete(ctx context.Context, key string) error

	// Clear removes all tokens
	Clear(ctx context.Context) error

	// Stats returns store statistics
	Stats() CacheStats
}

// TokenCacheKey builds the store key for a provider's token in a given
// environment. The consumer key scopes the entry so two merchant accounts
// on the same gateway never share a token.
func TokenCacheKey(providerName, environment, consumerKey string) string {
	return fmt.Sprintf("token:%s:%s:%s", providerName, environment, consumerKey)
}

// CacheStats represents token store performance metrics
type CacheStats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	TTLExpiries int64   `json:"ttl_expiries"`
	HitRatio    float64 `json:"hit_ratio"`
}

// tokenEntry is a stored token with its own expiry
type tokenEntry struct {
	key         string
	value       string
	expiresAt   time.Time
	listElement *list.Element // For LRU tracking
}

// InMemoryTokenStore implements TokenStore with LRU eviction. Reads that
// find an expired entry delete it and count a miss, so the store never
// hands out a stale token.
type InMemoryTokenStore struct {
	entries     map[string]*tokenEntry
	accessOrder *list.List // most recent at front
	maxSize     int
	mu          sync.Mutex

	// Stats tracking
	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewInMemoryTokenStore creates a new in-memory token store holding at
// most maxSize entries
func NewInMemoryTokenStore(maxSize int) *InMemoryTokenStore {
	return &InMemoryTokenStore{
		entries:     make(map[string]*tokenEntry),
		accessOrder: list.New(),
		maxSize:     maxSize,
	}
}

// Get retrieves a live token from the store
func (s *InMemoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		s.misses++
		return "", false, nil
	}

	if time.Now().After(entry.expiresAt) {
		s.deleteEntryUnsafe(key, entry)
		s.ttlExpiries++
		s.misses++
		return "", false, nil
	}

	s.accessOrder.MoveToFront(entry.listElement)
	s.hits++
	return entry.value, true, nil
}

// Set stores a token that expires after ttl. A non-positive ttl drops the
// entry instead of storing an already-dead token.
func (s *InMemoryTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := time.Now().Add(ttl)

	if existing, exists := s.entries[key]; exists {
		existing.value = token
		existing.expiresAt = expiresAt
		s.accessOrder.MoveToFront(existing.listElement)
		return nil
	}

	if len(s.entries) >= s.maxSize {
		s.evictLRUUnsafe()
	}

	entry := &tokenEntry{
		key:       key,
		value:     token,
		expiresAt: expiresAt,
	}
	entry.listElement = s.accessOrder.PushFront(entry)
	s.entries[key] = entry
	return nil
}

// Delete removes a token from the store
func (s *InMemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[key]; exists {
		s.deleteEntryUnsafe(key, entry)
	}
	return nil
}

// Clear removes all entries from the store
func (s *InMemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*tokenEntry)
	s.accessOrder = list.New()
	return nil
}

// Size returns the current number of stored tokens
func (s *InMemoryTokenStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Stats returns store statistics
func (s *InMemoryTokenStore) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalRequests := s.hits + s.misses
	hitRatio := 0.0
	if totalRequests > 0 {
		hitRatio = float64(s.hits) / float64(totalRequests)
	}

	return CacheStats{
		Size:        len(s.entries),
		MaxSize:     s.maxSize,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		TTLExpiries: s.ttlExpiries,
		HitRatio:    hitRatio,
	}
}

// Cleanup removes expired entries
func (s *InMemoryTokenStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expiredKeys []string

	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		if entry, exists := s.entries[key]; exists {
			s.deleteEntryUnsafe(key, entry)
			s.ttlExpiries++
		}
	}
}

// evictLRUUnsafe removes the least recently used entry (must be called with lock held)
func (s *InMemoryTokenStore) evictLRUUnsafe() {
	lruElement := s.accessOrder.Back()
	if lruElement == nil {
		return
	}

	lruEntry := lruElement.Value.(*tokenEntry)
	s.deleteEntryUnsafe(lruEntry.key, lruEntry)
	s.evictions++
}

// deleteEntryUnsafe removes an entry from both map and list (must be called with lock held)
func (s *InMemoryTokenStore) deleteEntryUnsafe(key string, entry *tokenEntry) {
	delete(s.entries, key)
	if entry.listElement != nil {
		s.accessOrder.Remove(entry.listElement)
	}
}
