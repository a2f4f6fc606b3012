package types

import (
	"time"
)

// Tier identifies a cache level
type Tier string

const (
	TierMemory Tier = "memory"
	TierFile   Tier = "file"
)

// EvictionReason explains why an entry left a tier
type EvictionReason string

const (
	ReasonCapacity EvictionReason = "capacity"
	ReasonExpired  EvictionReason = "expired"
	ReasonCorrupt  EvictionReason = "corrupt"
)

// Entry pairs a cached value with its bookkeeping metadata
type Entry[V any] struct {
	Key            string        `json:"key"`
	Value          V             `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	AccessCount    int64         `json:"access_count"`
	TTL            time.Duration `json:"ttl"`
	SizeBytes      int64         `json:"size_bytes"`
}

// NewEntry creates an entry stamped with now. A zero TTL never expires.
func NewEntry[V any](key string, value V, ttl time.Duration, size int64, now time.Time) *Entry[V] {
	if ttl < 0 {
		ttl = 0
	}
	if size < 0 {
		size = 0
	}
	return &Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            ttl,
		SizeBytes:      size,
	}
}

// IsExpired reports whether the entry outlived its TTL at now
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Remaining returns how long the entry has left to live. Entries without a
// TTL, and entries that already expired, report 0.
func (e *Entry[V]) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	left := e.TTL - now.Sub(e.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Touch records a successful read
func (e *Entry[V]) Touch(now time.Time) {
	if now.Before(e.CreatedAt) {
		now = e.CreatedAt
	}
	e.LastAccessedAt = now
	e.AccessCount++
}

// MemoryStats describes the memory tier
type MemoryStats struct {
	EntryCount       int     `json:"entry_count"`
	MaxEntries       int     `json:"max_entries"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	TotalAccessCount int64   `json:"total_access_count"`
	AvgSizeBytes     float64 `json:"avg_size_bytes"`
}

// UsagePercent is the share of MaxEntries currently occupied
func (s MemoryStats) UsagePercent() float64 {
	if s.MaxEntries <= 0 {
		return 0
	}
	return float64(s.EntryCount) / float64(s.MaxEntries) * 100
}

// FileStats describes the file tier
type FileStats struct {
	EntryCount       int     `json:"entry_count"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	MaxSizeBytes     int64   `json:"max_size_bytes"`
	TotalAccessCount int64   `json:"total_access_count"`
	AvgSizeBytes     float64 `json:"avg_size_bytes"`
	Directory        string  `json:"directory"`
}

const bytesPerMB = 1024 * 1024

// TotalSizeMB returns the tracked size in megabytes
func (s FileStats) TotalSizeMB() float64 {
	return float64(s.TotalSizeBytes) / bytesPerMB
}

// MaxSizeMB returns the size budget in megabytes
func (s FileStats) MaxSizeMB() float64 {
	return float64(s.MaxSizeBytes) / bytesPerMB
}

// UsagePercent is the share of the size budget currently used
func (s FileStats) UsagePercent() float64 {
	if s.MaxSizeBytes <= 0 {
		return 0
	}
	return float64(s.TotalSizeBytes) / float64(s.MaxSizeBytes) * 100
}

// BreakerStats describes the breaker guarding file tier writes
type BreakerStats struct {
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
	Rejected            uint64 `json:"rejected"`
}

// ManagerStats aggregates the manager counters and both tiers
type ManagerStats struct {
	MemoryHits     uint64      `json:"memory_hits"`
	FileHits       uint64      `json:"file_hits"`
	Misses         uint64      `json:"misses"`
	Sets           uint64      `json:"sets"`
	TotalRequests  uint64      `json:"total_requests"`
	HitRatePercent float64     `json:"hit_rate_percent"`
	Memory         MemoryStats `json:"memory_cache"`
	File           FileStats   `json:"file_cache"`

	FileBreaker BreakerStats `json:"file_breaker"`
}

// CleanupResult reports what an expiry sweep removed
type CleanupResult struct {
	MemoryCleaned int `json:"memory_cleaned"`
	FileCleaned   int `json:"file_cleaned"`
	TotalCleaned  int `json:"total_cleaned"`
}
