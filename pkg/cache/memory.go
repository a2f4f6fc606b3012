package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
	"github.com/objectfs/tiercache/pkg/types"
)

// DefaultMemoryMaxEntries bounds the memory tier when no limit is configured
const DefaultMemoryMaxEntries = 1000

// MemoryConfig represents memory tier configuration
type MemoryConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// MemoryStore is a bounded, thread-safe LRU map with per-entry TTL
type MemoryStore[V any] struct {
	mu         sync.RWMutex
	maxEntries int
	defaultTTL time.Duration
	items      map[string]*list.Element
	evictList  *list.List // front is most recently used
	totalSize  int64

	codec types.Codec[V]
	opts  options
}

var _ types.Store[int] = (*MemoryStore[int])(nil)

// NewMemoryStore creates a memory tier. The codec is only used to estimate
// entry sizes and may be nil.
func NewMemoryStore[V any](config *MemoryConfig, c types.Codec[V], opts ...Option) (*MemoryStore[V], error) {
	if config == nil {
		config = &MemoryConfig{MaxEntries: DefaultMemoryMaxEntries}
	}
	if config.MaxEntries < 0 {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "max_entries must not be negative").
			WithComponent("memory_store").
			WithDetail("max_entries", config.MaxEntries)
	}
	if config.DefaultTTL < 0 {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "default_ttl must not be negative").
			WithComponent("memory_store")
	}

	maxEntries := config.MaxEntries
	if maxEntries == 0 {
		maxEntries = DefaultMemoryMaxEntries
	}

	o := applyOptions(opts)
	o.logger = o.logger.WithComponent("memory_store")

	return &MemoryStore[V]{
		maxEntries: maxEntries,
		defaultTTL: config.DefaultTTL,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		codec:      c,
		opts:       o,
	}, nil
}

// Get returns the value for key. Expired entries are removed and reported as
// absent; hits move the entry to the most recently used position.
func (s *MemoryStore[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	element, exists := s.items[key]
	if !exists {
		return zero, false
	}

	entry := element.Value.(*types.Entry[V])
	now := s.opts.now()
	if entry.IsExpired(now) {
		s.removeElement(element)
		s.opts.recorder.RecordEviction(types.TierMemory, types.ReasonExpired, 1)
		s.reportSize()
		return zero, false
	}

	entry.Touch(now)
	s.evictList.MoveToFront(element)
	return entry.Value, true
}

// Set stores value under key, replacing any previous entry. A ttl <= 0 uses
// the store's default TTL.
func (s *MemoryStore[V]) Set(key string, value V, ttl time.Duration) {
	// sizing may encode the value, keep it outside the lock
	size := codec.SizeOf(s.codec, value)
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if element, exists := s.items[key]; exists {
		s.removeElement(element)
	}

	entry := types.NewEntry(key, value, ttl, size, s.opts.now())
	s.items[key] = s.evictList.PushFront(entry)
	s.totalSize += entry.SizeBytes

	s.evictIfNeeded()
	s.reportSize()
}

// Delete removes key and reports whether it was present
func (s *MemoryStore[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, exists := s.items[key]
	if !exists {
		return false
	}
	s.removeElement(element)
	s.reportSize()
	return true
}

// Clear removes every entry
func (s *MemoryStore[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.evictList.Init()
	s.totalSize = 0
	s.reportSize()
}

// CleanupExpired removes all expired entries and returns how many were removed
func (s *MemoryStore[V]) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	removed := 0
	for element := s.evictList.Back(); element != nil; {
		prev := element.Prev()
		if element.Value.(*types.Entry[V]).IsExpired(now) {
			s.removeElement(element)
			removed++
		}
		element = prev
	}

	if removed > 0 {
		s.opts.recorder.RecordEviction(types.TierMemory, types.ReasonExpired, removed)
		s.reportSize()
	}
	return removed
}

// Resize changes the entry bound at runtime, evicting as many least recently
// used entries as needed.
func (s *MemoryStore[V]) Resize(maxEntries int) error {
	if maxEntries <= 0 {
		return cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "max_entries must be positive").
			WithComponent("memory_store").
			WithOperation("resize")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxEntries = maxEntries
	s.evictIfNeeded()
	s.reportSize()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns the stored keys, most recently used first
func (s *MemoryStore[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for element := s.evictList.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*types.Entry[V]).Key)
	}
	return keys
}

// Stats returns a snapshot of the tier
func (s *MemoryStore[V]) Stats() types.MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.MemoryStats{
		EntryCount:     len(s.items),
		MaxEntries:     s.maxEntries,
		TotalSizeBytes: s.totalSize,
	}
	for element := s.evictList.Front(); element != nil; element = element.Next() {
		stats.TotalAccessCount += element.Value.(*types.Entry[V]).AccessCount
	}
	if stats.EntryCount > 0 {
		stats.AvgSizeBytes = float64(stats.TotalSizeBytes) / float64(stats.EntryCount)
	}
	return stats
}

// Helper methods

func (s *MemoryStore[V]) removeElement(element *list.Element) {
	entry := element.Value.(*types.Entry[V])
	s.evictList.Remove(element)
	delete(s.items, entry.Key)
	s.totalSize -= entry.SizeBytes
}

func (s *MemoryStore[V]) evictIfNeeded() {
	evicted := 0
	for len(s.items) > s.maxEntries {
		oldest := s.evictList.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
		evicted++
	}

	if evicted > 0 {
		s.opts.recorder.RecordEviction(types.TierMemory, types.ReasonCapacity, evicted)
		s.opts.logger.Debug("evicted least recently used entries", map[string]interface{}{
			"evicted":     evicted,
			"max_entries": s.maxEntries,
		})
	}
}

func (s *MemoryStore[V]) reportSize() {
	s.opts.recorder.UpdateTier(types.TierMemory, len(s.items), s.totalSize)
}
