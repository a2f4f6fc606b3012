package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/tiercache/pkg/codec"
	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
)

func newTestMemoryStore(t *testing.T, maxEntries int, clock *fakeClock, opts ...Option) *MemoryStore[int] {
	t.Helper()
	opts = append(opts, WithClock(clock.Now))
	s, err := NewMemoryStore[int](&MemoryConfig{MaxEntries: maxEntries}, codec.JSON[int]{}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewMemoryStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      *MemoryConfig
		wantMax     int
		wantErrCode cacheerrors.ErrorCode
	}{
		{name: "nil config uses defaults", config: nil, wantMax: DefaultMemoryMaxEntries},
		{name: "zero max entries uses default", config: &MemoryConfig{}, wantMax: DefaultMemoryMaxEntries},
		{name: "custom max entries", config: &MemoryConfig{MaxEntries: 5}, wantMax: 5},
		{name: "negative max entries", config: &MemoryConfig{MaxEntries: -1}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
		{name: "negative ttl", config: &MemoryConfig{DefaultTTL: -time.Second}, wantErrCode: cacheerrors.ErrCodeConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewMemoryStore[string](tt.config, nil)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				assert.True(t, cacheerrors.HasCode(err, tt.wantErrCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, s.Stats().MaxEntries)
		})
	}
}

func TestMemoryStore_LRUBound(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t, 3, newFakeClock())
	for i := 0; i < 20; i++ {
		s.Set(fmt.Sprintf("k%d", i), i, 0)
		require.LessOrEqual(t, s.Len(), 3, "bound violated after set %d", i)
	}
	assert.Equal(t, []string{"k19", "k18", "k17"}, s.Keys())
}

func TestMemoryStore_EvictionOrder(t *testing.T) {
	t.Parallel()

	recorder := newRecordingRecorder()
	s := newTestMemoryStore(t, 2, newFakeClock(), WithRecorder(recorder))

	s.Set("a", 1, 0)
	s.Set("b", 2, 0)
	_, ok := s.Get("a")
	require.True(t, ok)
	s.Set("c", 3, 0)

	_, ok = s.Get("b")
	assert.False(t, ok, "b was least recently used and should be evicted")
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, recorder.evictions["capacity"])
}

func TestMemoryStore_TTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newTestMemoryStore(t, 10, clock)

	s.Set("a", 42, time.Second)
	s.Set("forever", 7, 0)

	clock.Advance(500 * time.Millisecond)
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// exactly at the TTL boundary the entry is still live
	clock.Advance(500 * time.Millisecond)
	_, ok = s.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len(), "expired entry should be removed on read")

	_, ok = s.Get("forever")
	assert.True(t, ok)
}

func TestMemoryStore_DefaultTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s, err := NewMemoryStore[int](&MemoryConfig{MaxEntries: 10, DefaultTTL: time.Minute}, nil, WithClock(clock.Now))
	require.NoError(t, err)

	s.Set("default", 1, 0)
	s.Set("explicit", 2, time.Hour)

	clock.Advance(2 * time.Minute)
	_, ok := s.Get("default")
	assert.False(t, ok)
	_, ok = s.Get("explicit")
	assert.True(t, ok)
}

func TestMemoryStore_Overwrite(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := newTestMemoryStore(t, 10, clock)

	s.Set("k", 1, time.Minute)
	s.Get("k")
	s.Get("k")
	require.Equal(t, int64(2), s.Stats().TotalAccessCount)

	clock.Advance(50 * time.Second)
	s.Set("k", 2, time.Minute)
	assert.Equal(t, int64(0), s.Stats().TotalAccessCount, "overwrite must not carry the old access count")

	// the new entry's lifetime starts at the overwrite
	clock.Advance(30 * time.Second)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(1), s.Stats().TotalAccessCount)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t, 10, newFakeClock())
	s.Set("a", 1, 0)

	assert.False(t, s.Delete("missing"))
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Delete("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.False(t, s.Delete("a"))
	assert.Equal(t, int64(0), s.Stats().TotalSizeBytes)
}

func TestMemoryStore_Clear(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t, 10, newFakeClock())
	for i := 0; i < 5; i++ {
		s.Set(fmt.Sprintf("k%d", i), i, 0)
	}
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Keys())
	assert.Equal(t, int64(0), s.Stats().TotalSizeBytes)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	recorder := newRecordingRecorder()
	s := newTestMemoryStore(t, 10, clock, WithRecorder(recorder))

	s.Set("a", 1, time.Second)
	s.Set("b", 2, time.Second)
	s.Set("c", 3, time.Minute)
	s.Set("d", 4, 0)

	assert.Equal(t, 0, s.CleanupExpired())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, s.CleanupExpired())
	assert.Equal(t, 2, s.Len())
	assert.ElementsMatch(t, []string{"c", "d"}, s.Keys())
	assert.Equal(t, 2, recorder.evictions["expired"])
	assert.Equal(t, 2, recorder.entries["memory"])
}

func TestMemoryStore_Resize(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t, 5, newFakeClock())
	for i := 0; i < 5; i++ {
		s.Set(fmt.Sprintf("k%d", i), i, 0)
	}
	s.Get("k0")

	require.NoError(t, s.Resize(2))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"k0", "k4"}, s.Keys())
	assert.Equal(t, 2, s.Stats().MaxEntries)

	err := s.Resize(0)
	require.Error(t, err)
	assert.True(t, cacheerrors.HasCode(err, cacheerrors.ErrCodeConfigValidation))
}

func TestMemoryStore_Stats(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore[string](&MemoryConfig{MaxEntries: 4}, codec.JSON[string]{})
	require.NoError(t, err)

	assert.Zero(t, s.Stats().AvgSizeBytes)

	s.Set("a", "abc", 0)   // "abc" encodes to 5 bytes
	s.Set("b", "abcde", 0) // 7 bytes
	s.Get("a")

	stats := s.Stats()
	assert.Equal(t, 2, stats.EntryCount)
	assert.Equal(t, 4, stats.MaxEntries)
	assert.Equal(t, int64(12), stats.TotalSizeBytes)
	assert.Equal(t, int64(1), stats.TotalAccessCount)
	assert.InDelta(t, 6.0, stats.AvgSizeBytes, 0.001)
	assert.InDelta(t, 50.0, stats.UsagePercent(), 0.001)
}

func TestMemoryStore_UnsizableValue(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore[any](&MemoryConfig{MaxEntries: 4}, codec.JSON[any]{})
	require.NoError(t, err)

	ch := make(chan int)
	s.Set("ch", ch, 0)

	v, ok := s.Get("ch")
	require.True(t, ok)
	assert.Equal(t, ch, v)
	assert.Equal(t, int64(0), s.Stats().TotalSizeBytes)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	s, err := NewMemoryStore[int](&MemoryConfig{MaxEntries: 50}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%120)
				s.Set(key, i, 0)
				s.Get(key)
				if i%50 == 0 {
					s.CleanupExpired()
					_ = s.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
	assert.Len(t, s.Keys(), s.Len())
}
