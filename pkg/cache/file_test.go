package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
)

func newTestFileStore(t *testing.T, dir string, clock *fakeClock, mutate func(*FileConfig), opts ...Option) *FileStore[string] {
	t.Helper()
	config := &FileConfig{
		Directory:    dir,
		MaxSizeBytes: 1000,
	}
	if mutate != nil {
		mutate(config)
	}
	opts = append(opts, WithClock(clock.Now))
	s, err := NewFileStore[string](config, rawCodec{}, opts...)
	require.NoError(t, err)
	return s
}

func readMetadata(t *testing.T, dir string) map[string]fileRecord {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, DefaultMetadataFile))
	require.NoError(t, err)
	var records map[string]fileRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestNewFileStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      FileConfig
		wantErrCode cacheerrors.ErrorCode
	}{
		{name: "negative max size", config: FileConfig{MaxSizeBytes: -1}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
		{name: "unknown compression", config: FileConfig{Compress: true, Compression: "lz77"}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
		{name: "metadata outside directory", config: FileConfig{MetadataFile: "../meta.json"}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
		{name: "negative ttl", config: FileConfig{DefaultTTL: -time.Minute}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
		{name: "defaults applied", config: FileConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.config
			config.Directory = filepath.Join(t.TempDir(), "nested", "cache")
			s, err := NewFileStore[string](&config, rawCodec{})
			if tt.wantErrCode != "" {
				require.Error(t, err)
				assert.True(t, cacheerrors.HasCode(err, tt.wantErrCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			stats := s.Stats()
			assert.Equal(t, DefaultFileMaxSizeBytes, stats.MaxSizeBytes)
			assert.Equal(t, config.Directory, stats.Directory)
			assert.DirExists(t, config.Directory)
		})
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		compress    bool
		compression string
		ext         string
	}{
		{name: "uncompressed", compress: false, ext: ".bin"},
		{name: "gzip", compress: true, compression: codec.CompressionGzip, ext: ".gz"},
		{name: "zstd", compress: true, compression: codec.CompressionZstd, ext: ".zst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := newTestFileStore(t, dir, newFakeClock(), func(c *FileConfig) {
				c.Compress = tt.compress
				c.Compression = tt.compression
			})

			require.NoError(t, s.Set("quote:AAPL", "189.95", 0))

			v, ok := s.Get("quote:AAPL")
			require.True(t, ok)
			assert.Equal(t, "189.95", v)

			name := s.blobName("quote:AAPL")
			assert.Equal(t, tt.ext, filepath.Ext(name))
			assert.FileExists(t, filepath.Join(dir, name))

			records := readMetadata(t, dir)
			require.Contains(t, records, "quote:AAPL")
			assert.Equal(t, name, records["quote:AAPL"].FilePath)
			assert.Equal(t, s.compressor.Name(), records["quote:AAPL"].Compression)
		})
	}
}

func TestFileStore_ReopenRecoversEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := newFakeClock()

	s := newTestFileStore(t, dir, clock, nil)
	require.NoError(t, s.Set("a", "alpha", time.Hour))
	require.NoError(t, s.Set("b", "beta", 0))
	_, ok := s.Get("a")
	require.True(t, ok)
	require.NoError(t, s.Close())

	reopened := newTestFileStore(t, dir, clock, nil)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, int64(1), reopened.Stats().TotalAccessCount, "access bookkeeping is flushed on close")

	entry, ok := reopened.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", entry.Value)
	assert.Equal(t, time.Hour, entry.TTL)
	assert.Equal(t, int64(2), entry.AccessCount)

	// TTL still counts from the original creation time
	clock.Advance(2 * time.Hour)
	_, ok = reopened.Get("a")
	assert.False(t, ok)
	_, ok = reopened.Get("b")
	assert.True(t, ok)
}

func TestFileStore_SelfHealsMissingBlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := newRecordingRecorder()
	s := newTestFileStore(t, dir, newFakeClock(), nil, WithRecorder(recorder))

	require.NoError(t, s.Set("a", "alpha", 0))
	require.NoError(t, s.Set("b", "beta", 0))
	require.Equal(t, 2, s.Stats().EntryCount)

	require.NoError(t, os.Remove(filepath.Join(dir, s.blobName("a"))))

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Stats().EntryCount)
	assert.NotContains(t, readMetadata(t, dir), "a")
	assert.Equal(t, 1, recorder.evictions["corrupt"])
}

func TestFileStore_SelfHealsCorruptBlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), func(c *FileConfig) {
		c.Compress = true
		c.Compression = codec.CompressionGzip
	})

	require.NoError(t, s.Set("a", "alpha", 0))
	blob := filepath.Join(dir, s.blobName("a"))
	require.NoError(t, os.WriteFile(blob, []byte("not gzip at all"), 0600))

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.NoFileExists(t, blob)
}

func TestFileStore_Expiry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := newFakeClock()
	s := newTestFileStore(t, dir, clock, func(c *FileConfig) { c.DefaultTTL = time.Minute })

	require.NoError(t, s.Set("short", "x", time.Second))
	require.NoError(t, s.Set("default", "y", 0))
	require.NoError(t, s.Set("long", "z", time.Hour))

	clock.Advance(2 * time.Second)
	_, ok := s.Get("short")
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, s.blobName("short")))
	assert.NotContains(t, readMetadata(t, dir), "short")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, s.CleanupExpired())
	assert.Equal(t, 1, s.Len())
	_, ok = s.Get("long")
	assert.True(t, ok)
}

func TestFileStore_SizeHysteresis(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := newFakeClock()
	s := newTestFileStore(t, dir, clock, nil)
	value := string(make([]byte, 100))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i), value, 0))
		clock.Advance(time.Second)
	}
	require.Equal(t, int64(1000), s.Stats().TotalSizeBytes, "exactly at budget, nothing evicted")

	// k0 becomes the most recently accessed
	_, ok := s.Get("k0")
	require.True(t, ok)
	clock.Advance(time.Second)

	require.NoError(t, s.Set("k10", value, 0))

	stats := s.Stats()
	assert.LessOrEqual(t, float64(stats.TotalSizeBytes), 0.8*float64(stats.MaxSizeBytes))
	assert.Equal(t, int64(800), stats.TotalSizeBytes)

	for _, evicted := range []string{"k1", "k2", "k3"} {
		_, ok := s.Get(evicted)
		assert.False(t, ok, "%s should have been evicted", evicted)
		assert.NoFileExists(t, filepath.Join(dir, s.blobName(evicted)))
	}
	for _, kept := range []string{"k0", "k4", "k5", "k9", "k10"} {
		_, ok := s.Get(kept)
		assert.True(t, ok, "%s should have been kept", kept)
	}
}

func TestFileStore_OversizedValue(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newTestFileStore(t, t.TempDir(), clock, nil)
	require.NoError(t, s.Set("small", "x", 0))
	clock.Advance(time.Second)

	err := s.Set("huge", string(make([]byte, 2000)), 0)
	require.Error(t, err)
	assert.True(t, cacheerrors.HasCode(err, cacheerrors.ErrCodeValueTooLarge))
	assert.False(t, cacheerrors.HasCategory(err, cacheerrors.CategoryStorage))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(1), s.Stats().TotalSizeBytes)
	assert.NoFileExists(t, filepath.Join(s.Directory(), s.blobName("huge")))
	_, ok := s.Get("small")
	assert.True(t, ok)
}

func TestFileStore_OversizedBlobOnDiskIsDiscarded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), func(c *FileConfig) {
		c.Compress = true
		c.Compression = codec.CompressionGzip
	})
	require.NoError(t, s.Set("k", "v", 0))

	gz, err := codec.NewCompressor(codec.CompressionGzip)
	require.NoError(t, err)
	bomb, err := gz.Compress(make([]byte, 64*1024))
	require.NoError(t, err)
	require.Less(t, len(bomb), 1000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, s.blobName("k")), bomb, 0600))

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
	assert.NoFileExists(t, filepath.Join(dir, s.blobName("k")))
}

func TestFileStore_EncodeFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), nil)
	require.NoError(t, s.Set("k", "good", 0))

	err := s.Set("k", "bad", 0)
	require.Error(t, err)
	assert.True(t, cacheerrors.HasCode(err, cacheerrors.ErrCodeSerialization))

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "good", v)

	err = s.Set("other", "bad", 0)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, s.blobName("other")))
	assert.NotContains(t, readMetadata(t, dir), "other")

	dirEntries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, dirEntries, 2, "one blob and the metadata file")
}

func TestFileStore_Overwrite(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newTestFileStore(t, t.TempDir(), clock, nil)

	require.NoError(t, s.Set("k", "one", 0))
	s.Get("k")
	clock.Advance(time.Minute)
	require.NoError(t, s.Set("k", "three", 0))

	entry, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "three", entry.Value)
	assert.Equal(t, int64(1), entry.AccessCount)
	assert.Equal(t, clock.Now(), entry.CreatedAt)
	assert.Equal(t, int64(5), s.Stats().TotalSizeBytes)
}

func TestFileStore_DeleteAndClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), nil)
	require.NoError(t, s.Set("a", "alpha", 0))
	require.NoError(t, s.Set("b", "beta", 0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0600))

	assert.False(t, s.Delete("missing"))
	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.NoFileExists(t, filepath.Join(dir, s.blobName("a")))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, readMetadata(t, dir))
	assert.NoFileExists(t, filepath.Join(dir, s.blobName("b")))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestFileStore_ReconcileOnOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := newFakeClock()
	s := newTestFileStore(t, dir, clock, nil)
	require.NoError(t, s.Set("kept", "value", 0))
	require.NoError(t, s.Set("lost", "value", 0))
	require.NoError(t, s.Close())

	orphan := filepath.Join(dir, s.blobName("orphan"))
	require.NoError(t, os.WriteFile(orphan, []byte("no record"), 0600))
	tmp := filepath.Join(dir, tempPrefix+"12345")
	require.NoError(t, os.WriteFile(tmp, []byte("half written"), 0600))
	unrelated := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(unrelated, []byte("not ours"), 0600))
	require.NoError(t, os.Remove(filepath.Join(dir, s.blobName("lost"))))

	reopened := newTestFileStore(t, dir, clock, nil)
	assert.Equal(t, 1, reopened.Len())
	assert.NoFileExists(t, orphan)
	assert.NoFileExists(t, tmp)
	assert.FileExists(t, unrelated)
	assert.NotContains(t, readMetadata(t, dir), "lost")

	v, ok := reopened.Get("kept")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestFileStore_CorruptMetadataStartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), nil)
	require.NoError(t, s.Set("a", "alpha", 0))
	blob := filepath.Join(dir, s.blobName("a"))
	require.NoError(t, s.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMetadataFile), []byte("{not json"), 0600))

	reopened := newTestFileStore(t, dir, newFakeClock(), nil)
	assert.Equal(t, 0, reopened.Len())
	assert.NoFileExists(t, blob, "blobs without metadata are orphans")

	require.NoError(t, reopened.Set("b", "beta", 0))
	assert.Contains(t, readMetadata(t, dir), "b")
}

func TestFileStore_FlushPersistsAccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestFileStore(t, dir, newFakeClock(), nil)
	require.NoError(t, s.Set("a", "alpha", 0))

	s.Get("a")
	s.Get("a")
	assert.Equal(t, int64(0), readMetadata(t, dir)["a"].AccessCount, "touches are not written eagerly")

	require.NoError(t, s.Flush())
	assert.Equal(t, int64(2), readMetadata(t, dir)["a"].AccessCount)
}

func TestFileStore_Closed(t *testing.T) {
	t.Parallel()

	s := newTestFileStore(t, t.TempDir(), newFakeClock(), nil)
	require.NoError(t, s.Set("a", "alpha", 0))
	require.NoError(t, s.Close())

	err := s.Set("b", "beta", 0)
	require.Error(t, err)
	assert.True(t, cacheerrors.HasCode(err, cacheerrors.ErrCodeComponentStopped))
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.False(t, s.Delete("a"))
	assert.NoError(t, s.Close())
}

func TestIsBlobName(t *testing.T) {
	t.Parallel()

	s := newTestFileStore(t, t.TempDir(), newFakeClock(), nil)

	assert.True(t, isBlobName(s.blobName("anything")))
	assert.False(t, isBlobName(DefaultMetadataFile))
	assert.False(t, isBlobName("abc.gz"))
	assert.False(t, isBlobName("notes.txt"))
}
