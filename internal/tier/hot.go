package tier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hupe1980/tiercache/internal/entry"
)

// HotConfig configures the in-memory tier.
type HotConfig struct {
	MaxEntries   int
	MaxSizeBytes int64
	TTL          time.Duration
	Listener     Listener
	Clock        Clock
}

// HotTier is a bounded in-memory LRU store.
type HotTier struct {
	mu   sync.Mutex
	lru  *simplelru.LRU[string, *entry.Entry]
	size int64

	maxEntries int
	maxSize    int64
	ttl        time.Duration
	listener   Listener
	now        Clock

	counters
}

var _ Tier = (*HotTier)(nil)

// NewHot creates the hot tier.
func NewHot(cfg HotConfig) (*HotTier, error) {
	if cfg.MaxEntries <= 0 || cfg.MaxSizeBytes <= 0 || cfg.TTL <= 0 {
		return nil, errors.New("hot tier: MaxEntries, MaxSizeBytes and TTL must be positive")
	}
	if cfg.Listener == nil {
		cfg.Listener = noopListener{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	// Capacity eviction is done by hand so every victim is counted and
	// reported; the LRU's own limit is never reached.
	lru, err := simplelru.NewLRU[string, *entry.Entry](cfg.MaxEntries+1, nil)
	if err != nil {
		return nil, fmt.Errorf("hot tier: %w", err)
	}

	return &HotTier{
		lru:        lru,
		maxEntries: cfg.MaxEntries,
		maxSize:    cfg.MaxSizeBytes,
		ttl:        cfg.TTL,
		listener:   cfg.Listener,
		now:        cfg.Clock,
	}, nil
}

func (h *HotTier) Kind() Kind         { return Hot }
func (h *HotTier) TTL() time.Duration { return h.ttl }

// Get returns the entry and marks it most recently used.
func (h *HotTier) Get(_ context.Context, key string) (*entry.Entry, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.lru.Get(key)
	if !ok {
		h.misses.Add(1)
		return nil, false, nil
	}
	if e.Expired(h.now()) {
		h.removeLocked(key, e)
		h.expirations.Add(1)
		h.misses.Add(1)
		h.listener.Removed(Hot, key, Expired)
		return nil, false, nil
	}
	h.hits.Add(1)
	return e, true, nil
}

// Peek returns a live entry without changing its recency.
func (h *HotTier) Peek(_ context.Context, key string) (*entry.Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.lru.Peek(key)
	if !ok || e.Expired(h.now()) {
		return nil, false
	}
	return e, true
}

// Set inserts or overwrites e, evicting least recently used entries until
// both the entry-count and byte budgets hold.
func (h *HotTier) Set(_ context.Context, e *entry.Entry) error {
	size := e.SizeBytes()
	if size > h.maxSize {
		return fmt.Errorf("hot tier: %w: %d > %d bytes", ErrTooLarge, size, h.maxSize)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.lru.Peek(e.Key); ok {
		h.removeLocked(e.Key, old)
	}

	for h.lru.Len() >= h.maxEntries || h.size+size > h.maxSize {
		key, victim, ok := h.lru.RemoveOldest()
		if !ok {
			break
		}
		h.size -= victim.SizeBytes()
		h.evictions.Add(1)
		h.listener.Removed(Hot, key, Evicted)
	}

	h.lru.Add(e.Key, e)
	h.size += size
	h.listener.Stored(Hot, e.Key, e.QueryText, e.ExpiresAt)
	return nil
}

// Delete removes key.
func (h *HotTier) Delete(_ context.Context, key string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.lru.Peek(key)
	if !ok {
		return false, nil
	}
	h.removeLocked(key, e)
	h.listener.Removed(Hot, key, Deleted)
	return true, nil
}

// Clear drops every entry. Historical counters are kept.
func (h *HotTier) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lru.Purge()
	h.size = 0
	h.listener.Cleared(Hot)
	return nil
}

// Keys returns the keys from least to most recently used.
func (h *HotTier) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lru.Keys()
}

func (h *HotTier) Stats() Snapshot {
	s := h.snapshot()

	h.mu.Lock()
	s.Entries = int64(h.lru.Len())
	s.SizeBytes = h.size
	h.mu.Unlock()

	s.CapacityBytes = h.maxSize
	return s
}

func (h *HotTier) removeLocked(key string, e *entry.Entry) {
	h.lru.Remove(key)
	h.size -= e.SizeBytes()
}
