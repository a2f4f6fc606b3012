package cache

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/objectfs/tiercache/internal/circuit"
	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
	"github.com/objectfs/tiercache/pkg/types"
	"github.com/objectfs/tiercache/pkg/utils"
)

// Config represents two-tier cache configuration
type Config struct {
	MemoryMaxEntries int           `yaml:"memory_max_entries"`
	FileMaxSizeBytes int64         `yaml:"file_max_size_bytes"`
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	Compress         bool          `yaml:"compress"`
	Compression      string        `yaml:"compression"`
	CacheDir         string        `yaml:"cache_dir"`
	MetadataFile     string        `yaml:"metadata_file"`
	Codec            string        `yaml:"codec"`

	// Consecutive disk failures after which file writes are skipped for FileCooldown
	FileFailureThreshold int           `yaml:"file_failure_threshold"`
	FileCooldown         time.Duration `yaml:"file_cooldown"`
}

const (
	DefaultFileFailureThreshold = 5
	DefaultFileCooldown         = 30 * time.Second
)

// DefaultConfig returns the two-tier defaults
func DefaultConfig() *Config {
	return &Config{
		MemoryMaxEntries: DefaultMemoryMaxEntries,
		FileMaxSizeBytes: DefaultFileMaxSizeBytes,
		Compress:         true,
		Compression:      codec.CompressionGzip,
		CacheDir:         DefaultCacheDir,
		MetadataFile:     DefaultMetadataFile,
		Codec:            "msgpack",

		FileFailureThreshold: DefaultFileFailureThreshold,
		FileCooldown:         DefaultFileCooldown,
	}
}

// Manager composes a memory tier and a file tier. Reads fall through from
// memory to file and promote file hits; writes go to both tiers unless the
// caller asks for memory-only placement.
type Manager[V any] struct {
	memory     *MemoryStore[V]
	file       *FileStore[V]
	defaultTTL time.Duration
	breaker    *circuit.Breaker

	memoryHits atomic.Uint64
	fileHits   atomic.Uint64
	misses     atomic.Uint64
	sets       atomic.Uint64

	opts options
}

var _ types.ExpiryCleaner = (*Manager[int])(nil)

// New builds both tiers from config and composes them
func New[V any](config *Config, opts ...Option) (*Manager[V], error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.FileFailureThreshold < 0 || config.FileCooldown < 0 {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation,
			"file failure threshold and cooldown must not be negative").WithComponent("cache_manager")
	}

	c, err := codec.ByName[V](config.Codec)
	if err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeConfigValidation, "invalid codec", err).
			WithComponent("cache_manager")
	}

	memory, err := NewMemoryStore[V](&MemoryConfig{
		MaxEntries: config.MemoryMaxEntries,
		DefaultTTL: config.DefaultTTL,
	}, c, opts...)
	if err != nil {
		return nil, err
	}

	file, err := NewFileStore[V](&FileConfig{
		Directory:    config.CacheDir,
		MaxSizeBytes: config.FileMaxSizeBytes,
		DefaultTTL:   config.DefaultTTL,
		Compress:     config.Compress,
		Compression:  config.Compression,
		MetadataFile: config.MetadataFile,
	}, c, opts...)
	if err != nil {
		return nil, err
	}

	m, err := NewManager(memory, file, opts...)
	if err != nil {
		return nil, err
	}
	m.defaultTTL = config.DefaultTTL
	m.breaker = m.newFileBreaker(config.FileFailureThreshold, config.FileCooldown)
	return m, nil
}

// NewManager composes existing tiers. Both are required.
func NewManager[V any](memory *MemoryStore[V], file *FileStore[V], opts ...Option) (*Manager[V], error) {
	if memory == nil || file == nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeInvalidConfig, "both cache tiers are required").
			WithComponent("cache_manager")
	}

	o := applyOptions(opts)
	o.logger = o.logger.WithComponent("cache_manager")

	m := &Manager[V]{
		memory: memory,
		file:   file,
		opts:   o,
	}
	m.breaker = m.newFileBreaker(DefaultFileFailureThreshold, DefaultFileCooldown)
	return m, nil
}

// newFileBreaker trips on disk errors only; a value the codec cannot encode
// says nothing about the health of the file tier.
func (m *Manager[V]) newFileBreaker(threshold int, cooldown time.Duration) *circuit.Breaker {
	return circuit.New("file_tier", circuit.Config{
		FailureThreshold: uint32(threshold),
		Cooldown:         cooldown,
		IsFailure: func(err error) bool {
			return cacheerrors.HasCategory(err, cacheerrors.CategoryStorage)
		},
		OnStateChange: func(name string, from, to circuit.State) {
			m.opts.logger.Warn("file tier breaker changed state", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		Now: m.opts.now,
	})
}

// Memory returns the memory tier
func (m *Manager[V]) Memory() *MemoryStore[V] { return m.memory }

// File returns the file tier
func (m *Manager[V]) File() *FileStore[V] { return m.file }

// Get looks key up in memory, then on disk. A file hit is copied into memory
// with whatever lifetime it has left.
func (m *Manager[V]) Get(key string) (V, bool) {
	if value, ok := m.memory.Get(key); ok {
		m.memoryHits.Add(1)
		m.opts.recorder.RecordHit(types.TierMemory)
		return value, true
	}

	if entry, ok := m.file.Lookup(key); ok {
		m.fileHits.Add(1)
		m.opts.recorder.RecordHit(types.TierFile)
		m.promote(entry)
		return entry.Value, true
	}

	m.misses.Add(1)
	m.opts.recorder.RecordMiss()
	var zero V
	return zero, false
}

// SetOption configures a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	ttl        time.Duration
	memoryOnly bool
}

// WithTTL overrides the default TTL for one write
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// MemoryOnly keeps the value out of the file tier
func MemoryOnly() SetOption {
	return func(o *setOptions) { o.memoryOnly = true }
}

// Set writes value to memory and, unless MemoryOnly is given, to disk.
// Whenever the value does not reach disk (memory-only placement, a failed
// write, an open file breaker) any older copy of key on disk is dropped so it
// cannot resurface after memory eviction or in another process. A file tier
// failure is logged and does not fail the write.
func (m *Manager[V]) Set(key string, value V, opts ...SetOption) {
	var so setOptions
	for _, opt := range opts {
		opt(&so)
	}
	if so.ttl <= 0 {
		so.ttl = m.defaultTTL
	}

	m.sets.Add(1)
	m.opts.recorder.RecordSet(so.memoryOnly)

	m.memory.Set(key, value, so.ttl)
	if so.memoryOnly {
		m.file.Delete(key)
		return
	}

	err := m.breaker.Execute(func() error {
		return m.file.Set(key, value, so.ttl)
	})
	switch {
	case err == nil:
		return
	case errors.Is(err, circuit.ErrOpenState):
		m.opts.logger.Debug("file tier write skipped, breaker open", map[string]interface{}{
			"key": key,
		})
	default:
		fields := map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		}
		var cacheErr *cacheerrors.CacheError
		if errors.As(err, &cacheErr) {
			for k, v := range cacheErr.Details {
				fields[k] = v
			}
			fields["code"] = string(cacheErr.Code)
			fields["recommendation"] = cacheErr.GetRecommendation()
		}
		m.opts.logger.Warn("file tier write failed, value kept in memory only", fields)
	}
	m.file.Delete(key)
}

// Delete removes key from both tiers and reports whether either held it
func (m *Manager[V]) Delete(key string) bool {
	inMemory := m.memory.Delete(key)
	onDisk := m.file.Delete(key)
	return inMemory || onDisk
}

// Clear empties both tiers and resets the counters and the file breaker
func (m *Manager[V]) Clear() {
	m.memory.Clear()
	m.file.Clear()

	m.memoryHits.Store(0)
	m.fileHits.Store(0)
	m.misses.Store(0)
	m.sets.Store(0)
	m.breaker.Reset()
}

// CleanupExpired sweeps expired entries from both tiers
func (m *Manager[V]) CleanupExpired() types.CleanupResult {
	result := types.CleanupResult{
		MemoryCleaned: m.memory.CleanupExpired(),
		FileCleaned:   m.file.CleanupExpired(),
	}
	result.TotalCleaned = result.MemoryCleaned + result.FileCleaned

	if result.TotalCleaned > 0 {
		m.opts.logger.Info("removed expired entries", map[string]interface{}{
			"memory_cleaned": result.MemoryCleaned,
			"file_cleaned":   result.FileCleaned,
		})
	}
	return result
}

// Stats aggregates the counters and both tiers
func (m *Manager[V]) Stats() types.ManagerStats {
	stats := types.ManagerStats{
		MemoryHits: m.memoryHits.Load(),
		FileHits:   m.fileHits.Load(),
		Misses:     m.misses.Load(),
		Sets:       m.sets.Load(),
		Memory:     m.memory.Stats(),
		File:       m.file.Stats(),
	}

	counts := m.breaker.Counts()
	stats.FileBreaker = types.BreakerStats{
		State:               m.breaker.State().String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		TotalFailures:       counts.TotalFailures,
		Rejected:            counts.Rejected,
	}

	stats.TotalRequests = stats.MemoryHits + stats.FileHits + stats.Misses
	if stats.TotalRequests > 0 {
		stats.HitRatePercent = float64(stats.MemoryHits+stats.FileHits) / float64(stats.TotalRequests) * 100
	}
	return stats
}

// Close flushes the file tier metadata
func (m *Manager[V]) Close() error {
	return m.file.Close()
}

// FileBreaker returns the breaker guarding file tier writes
func (m *Manager[V]) FileBreaker() *circuit.Breaker {
	return m.breaker
}

// Logger returns the manager's logger
func (m *Manager[V]) Logger() *utils.StructuredLogger {
	return m.opts.logger
}

func (m *Manager[V]) promote(entry *types.Entry[V]) {
	ttl := entry.TTL
	if ttl > 0 {
		ttl = entry.Remaining(m.opts.now())
		if ttl <= 0 {
			// about to expire, promoting would extend its life
			return
		}
	}
	m.memory.Set(entry.Key, entry.Value, ttl)
}
