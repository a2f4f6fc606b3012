package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
	"github.com/objectfs/tiercache/pkg/types"
)

const (
	// DefaultFileMaxSizeBytes is the file tier budget when none is configured
	DefaultFileMaxSizeBytes int64 = 1000 * 1024 * 1024
	// DefaultMetadataFile names the metadata side-table inside the cache directory
	DefaultMetadataFile = "cache_metadata.json"
	// DefaultCacheDir is used when no directory is configured
	DefaultCacheDir = "cache"
)

// EvictionTarget is the share of the size budget eviction shrinks the tier
// down to once the budget is exceeded.
var EvictionTarget = 0.8

const tempPrefix = ".tmp-"

// FileConfig represents file tier configuration
type FileConfig struct {
	Directory    string        `yaml:"directory"`
	MaxSizeBytes int64         `yaml:"max_size_bytes"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	Compress     bool          `yaml:"compress"`
	Compression  string        `yaml:"compression"`
	MetadataFile string        `yaml:"metadata_file"`
}

// DefaultFileConfig returns the file tier defaults
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Directory:    DefaultCacheDir,
		MaxSizeBytes: DefaultFileMaxSizeBytes,
		Compress:     true,
		Compression:  codec.CompressionGzip,
		MetadataFile: DefaultMetadataFile,
	}
}

// fileRecord is the persisted metadata of one blob
type fileRecord struct {
	Key            string    `json:"key"`
	FilePath       string    `json:"file_path"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
	TTLSeconds     float64   `json:"ttl_seconds,omitempty"`
	SizeBytes      int64     `json:"size_bytes"`
	Compression    string    `json:"compression"`
}

func (r *fileRecord) ttl() time.Duration {
	return time.Duration(r.TTLSeconds * float64(time.Second))
}

func (r *fileRecord) isExpired(now time.Time) bool {
	ttl := r.ttl()
	return ttl > 0 && now.Sub(r.CreatedAt) > ttl
}

// FileStore persists values as one blob per key plus a JSON metadata table.
// The blob is always on disk before the metadata that references it.
type FileStore[V any] struct {
	mu           sync.RWMutex
	directory    string
	metadataPath string
	maxSize      int64
	defaultTTL   time.Duration
	index        map[string]*fileRecord
	totalSize    int64
	dirty        bool
	closed       bool

	codec      types.Codec[V]
	compressor types.Compressor
	opts       options
}

var _ types.Store[int] = (*FileStore[int])(nil)

// NewFileStore opens or creates a file tier in config.Directory. Existing
// metadata is loaded and reconciled with the blobs actually present.
func NewFileStore[V any](config *FileConfig, c types.Codec[V], opts ...Option) (*FileStore[V], error) {
	if config == nil {
		config = DefaultFileConfig()
	}
	if config.MaxSizeBytes < 0 {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "max_size_bytes must not be negative").
			WithComponent("file_store").
			WithDetail("max_size_bytes", config.MaxSizeBytes)
	}
	if config.DefaultTTL < 0 {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "default_ttl must not be negative").
			WithComponent("file_store")
	}
	if c == nil {
		c = codec.Msgpack[V]{}
	}

	compression := codec.CompressionNone
	if config.Compress {
		compression = config.Compression
	}
	compressor, err := codec.NewCompressor(compression)
	if err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeConfigValidation, "invalid compression", err).
			WithComponent("file_store")
	}

	// Apply defaults for zero/empty values
	directory := config.Directory
	if directory == "" {
		directory = DefaultCacheDir
	}
	maxSize := config.MaxSizeBytes
	if maxSize == 0 {
		maxSize = DefaultFileMaxSizeBytes
	}
	metadataFile := config.MetadataFile
	if metadataFile == "" {
		metadataFile = DefaultMetadataFile
	}
	if filepath.Base(metadataFile) != metadataFile {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeConfigValidation, "metadata_file must be a plain file name").
			WithComponent("file_store").
			WithDetail("metadata_file", metadataFile)
	}

	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to create cache directory", err).
			WithComponent("file_store").
			WithDetail("directory", directory)
	}

	o := applyOptions(opts)
	o.logger = o.logger.WithComponent("file_store")

	s := &FileStore[V]{
		directory:    directory,
		metadataPath: filepath.Join(directory, metadataFile),
		maxSize:      maxSize,
		defaultTTL:   config.DefaultTTL,
		index:        make(map[string]*fileRecord),
		codec:        c,
		compressor:   compressor,
		opts:         o,
	}

	s.loadMetadata()
	if s.reconcile() {
		if err := s.saveMetadata(); err != nil {
			s.opts.logger.Warn("failed to persist reconciled metadata", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	s.reportSize()

	return s, nil
}

// Get returns the value stored under key. Missing, expired, unreadable and
// undecodable entries are all reported as absent; the broken ones are removed.
func (s *FileStore[V]) Get(key string) (V, bool) {
	entry, ok := s.Lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Lookup is Get returning the entry metadata alongside the value
func (s *FileStore[V]) Lookup(key string) (*types.Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.index[key]
	if !exists || s.closed {
		return nil, false
	}

	now := s.opts.now()
	if record.isExpired(now) {
		s.removeRecord(record)
		s.opts.recorder.RecordEviction(types.TierFile, types.ReasonExpired, 1)
		s.persist("get")
		return nil, false
	}

	value, err := s.readBlob(record)
	if err != nil {
		s.opts.logger.Debug("discarding unreadable cache entry", map[string]interface{}{
			"key":   key,
			"file":  record.FilePath,
			"error": err.Error(),
		})
		s.removeRecord(record)
		s.opts.recorder.RecordEviction(types.TierFile, types.ReasonCorrupt, 1)
		s.persist("get")
		return nil, false
	}

	if now.Before(record.CreatedAt) {
		now = record.CreatedAt
	}
	record.LastAccessedAt = now
	record.AccessCount++
	s.dirty = true

	return &types.Entry[V]{
		Key:            record.Key,
		Value:          value,
		CreatedAt:      record.CreatedAt,
		LastAccessedAt: record.LastAccessedAt,
		AccessCount:    record.AccessCount,
		TTL:            record.ttl(),
		SizeBytes:      record.SizeBytes,
	}, true
}

// Set writes value to disk under key. A ttl <= 0 uses the store's default TTL.
// On failure the previous entry for key, if any, is left untouched.
func (s *FileStore[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	// encoding and compression do not touch shared state
	encoded, err := s.codec.Marshal(value)
	if err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeSerialization, "failed to encode value", err).
			WithComponent("file_store").
			WithOperation("set").
			WithDetail("key", key)
	}
	if int64(len(encoded)) > s.maxSize {
		return cacheerrors.NewError(cacheerrors.ErrCodeValueTooLarge, "encoded value exceeds the file tier budget").
			WithComponent("file_store").
			WithOperation("set").
			WithDetail("key", key).
			WithDetail("size_bytes", len(encoded)).
			WithDetail("max_size_bytes", s.maxSize)
	}
	blob, err := s.compressor.Compress(encoded)
	if err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeSerialization, "failed to compress value", err).
			WithComponent("file_store").
			WithOperation("set").
			WithDetail("key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cacheerrors.NewError(cacheerrors.ErrCodeComponentStopped, "file store is closed").
			WithComponent("file_store").
			WithOperation("set")
	}

	fileName := s.blobName(key)
	if err := s.writeBlob(fileName, blob); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to write blob", err).
			WithComponent("file_store").
			WithOperation("set").
			WithDetail("key", key)
	}

	if old, exists := s.index[key]; exists {
		s.totalSize -= old.SizeBytes
		if old.FilePath != fileName {
			_ = os.Remove(filepath.Join(s.directory, old.FilePath))
		}
	}

	now := s.opts.now()
	record := &fileRecord{
		Key:            key,
		FilePath:       fileName,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTLSeconds:     ttl.Seconds(),
		SizeBytes:      int64(len(blob)),
		Compression:    s.compressor.Name(),
	}
	s.index[key] = record
	s.totalSize += record.SizeBytes

	s.evictIfNeeded()

	if err := s.saveMetadata(); err != nil {
		s.reportSize()
		return cacheerrors.Wrap(cacheerrors.ErrCodeMetadataWrite, "failed to persist metadata", err).
			WithComponent("file_store").
			WithOperation("set").
			WithDetail("key", key)
	}
	s.reportSize()
	return nil
}

// Delete removes key and its blob and reports whether it was present
func (s *FileStore[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.index[key]
	if !exists || s.closed {
		return false
	}
	s.removeRecord(record)
	s.persist("delete")
	return true
}

// Clear removes every entry and every blob in the cache directory
func (s *FileStore[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, record := range s.index {
		_ = os.Remove(filepath.Join(s.directory, record.FilePath))
	}
	s.index = make(map[string]*fileRecord)
	s.totalSize = 0
	s.removeStrayFiles()
	s.persist("clear")
}

// CleanupExpired removes all expired entries and returns how many were removed
func (s *FileStore[V]) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	now := s.opts.now()
	removed := 0
	for _, record := range s.index {
		if record.isExpired(now) {
			s.removeRecord(record)
			removed++
		}
	}

	if removed > 0 {
		s.opts.recorder.RecordEviction(types.TierFile, types.ReasonExpired, removed)
		s.persist("cleanup")
	}
	return removed
}

// Len returns the number of tracked entries, expired ones included
func (s *FileStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Directory returns the cache directory
func (s *FileStore[V]) Directory() string {
	return s.directory
}

// Stats returns a snapshot of the tier
func (s *FileStore[V]) Stats() types.FileStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.FileStats{
		EntryCount:     len(s.index),
		TotalSizeBytes: s.totalSize,
		MaxSizeBytes:   s.maxSize,
		Directory:      s.directory,
	}
	for _, record := range s.index {
		stats.TotalAccessCount += record.AccessCount
	}
	if stats.EntryCount > 0 {
		stats.AvgSizeBytes = float64(stats.TotalSizeBytes) / float64(stats.EntryCount)
	}
	return stats
}

// Flush writes pending access bookkeeping to the metadata file
func (s *FileStore[V]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.closed {
		return nil
	}
	if err := s.saveMetadata(); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeMetadataWrite, "failed to persist metadata", err).
			WithComponent("file_store").
			WithOperation("flush")
	}
	return nil
}

// Close flushes the metadata and stops the store. Later reads miss and
// later writes fail.
func (s *FileStore[V]) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Helper methods

// blobName maps a key to its file name. Distinct keys hashing to the same
// name would share a blob; with SHA-256 that is not a practical concern.
// An overwrite with unchanged compression renames over the old blob before
// the metadata is rewritten. A crash in between leaves the new value on disk
// described by the old record's size, TTL and timestamps. The entry still
// decodes, and the size is corrected by its next overwrite or removal.
func (s *FileStore[V]) blobName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:]) + s.compressor.Extension()
}

func (s *FileStore[V]) writeBlob(fileName string, blob []byte) error {
	tmp, err := os.CreateTemp(s.directory, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Atomic replace
	if err := os.Rename(tmpPath, filepath.Join(s.directory, fileName)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *FileStore[V]) readBlob(record *fileRecord) (V, error) {
	var zero V

	data, err := os.ReadFile(filepath.Join(s.directory, record.FilePath))
	if err != nil {
		return zero, cacheerrors.Wrap(cacheerrors.ErrCodeStorageRead, "failed to read blob", err)
	}

	compressor, err := codec.NewCompressor(record.Compression)
	if err != nil {
		return zero, cacheerrors.Wrap(cacheerrors.ErrCodeCacheCorrupted, "unknown blob compression", err)
	}
	// nothing larger than the budget is ever written, so a bigger output is damage
	raw, err := compressor.Decompress(data, s.maxSize)
	if err != nil {
		return zero, cacheerrors.Wrap(cacheerrors.ErrCodeCacheCorrupted, "failed to decompress blob", err)
	}

	value, err := s.codec.Unmarshal(raw)
	if err != nil {
		return zero, cacheerrors.Wrap(cacheerrors.ErrCodeDeserialization, "failed to decode blob", err)
	}
	return value, nil
}

func (s *FileStore[V]) removeRecord(record *fileRecord) {
	_ = os.Remove(filepath.Join(s.directory, record.FilePath))
	delete(s.index, record.Key)
	s.totalSize -= record.SizeBytes
}

// evictIfNeeded removes least recently accessed entries once the budget is
// exceeded, until usage is back at EvictionTarget of it.
func (s *FileStore[V]) evictIfNeeded() {
	if s.totalSize <= s.maxSize {
		return
	}

	target := int64(float64(s.maxSize) * EvictionTarget)
	records := make([]*fileRecord, 0, len(s.index))
	for _, record := range s.index {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Key < b.Key
	})

	evicted := 0
	for _, record := range records {
		if s.totalSize <= target {
			break
		}
		s.removeRecord(record)
		evicted++
	}

	s.opts.recorder.RecordEviction(types.TierFile, types.ReasonCapacity, evicted)
	s.opts.logger.Debug("evicted least recently accessed blobs", map[string]interface{}{
		"evicted":    evicted,
		"total_size": s.totalSize,
		"max_size":   s.maxSize,
	})
}

// persist saves metadata after a structural change. Failures are logged only:
// the blobs on disk are already consistent with the in-memory index.
func (s *FileStore[V]) persist(operation string) {
	if err := s.saveMetadata(); err != nil {
		s.opts.logger.Warn("failed to persist metadata", map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
	}
	s.reportSize()
}

func (s *FileStore[V]) loadMetadata() {
	data, err := os.ReadFile(s.metadataPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.opts.logger.Warn("failed to read metadata, starting empty", map[string]interface{}{
				"path":  s.metadataPath,
				"error": err.Error(),
			})
		}
		return
	}

	var records map[string]*fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.opts.logger.Warn("corrupt metadata, starting empty", map[string]interface{}{
			"path":  s.metadataPath,
			"error": err.Error(),
		})
		return
	}

	for key, record := range records {
		if record == nil || record.FilePath == "" || filepath.Base(record.FilePath) != record.FilePath {
			continue
		}
		record.Key = key
		s.index[key] = record
		s.totalSize += record.SizeBytes
	}
}

// reconcile drops records whose blob is gone and removes blobs no record
// references. It reports whether the index changed.
func (s *FileStore[V]) reconcile() bool {
	changed := false
	for _, record := range s.index {
		if _, err := os.Stat(filepath.Join(s.directory, record.FilePath)); err != nil {
			delete(s.index, record.Key)
			s.totalSize -= record.SizeBytes
			changed = true
		}
	}

	if removed := s.removeStrayFiles(); removed > 0 {
		s.opts.logger.Debug("removed unreferenced cache files", map[string]interface{}{
			"removed": removed,
		})
	}
	return changed
}

// removeStrayFiles deletes leftover temp files and blobs without a record.
// Files that do not look like ours are left alone.
func (s *FileStore[V]) removeStrayFiles() int {
	dirEntries, err := os.ReadDir(s.directory)
	if err != nil {
		return 0
	}

	referenced := make(map[string]struct{}, len(s.index))
	for _, record := range s.index {
		referenced[record.FilePath] = struct{}{}
	}

	removed := 0
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || name == filepath.Base(s.metadataPath) {
			continue
		}
		if _, ok := referenced[name]; ok {
			continue
		}
		if strings.HasPrefix(name, tempPrefix) || isBlobName(name) {
			if os.Remove(filepath.Join(s.directory, name)) == nil {
				removed++
			}
		}
	}
	return removed
}

func (s *FileStore[V]) saveMetadata() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(s.directory, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.metadataPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	s.dirty = false
	return nil
}

func (s *FileStore[V]) reportSize() {
	s.opts.recorder.UpdateTier(types.TierFile, len(s.index), s.totalSize)
}

var blobExtensions = []string{".gz", ".zst", ".bin"}

func isBlobName(name string) bool {
	for _, ext := range blobExtensions {
		if stem, ok := strings.CutSuffix(name, ext); ok {
			if len(stem) != sha256.Size*2 {
				return false
			}
			_, err := hex.DecodeString(stem)
			return err == nil
		}
	}
	return false
}
