package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/objectfs/tiercache/pkg/types"
)

// fakeClock is a manually advanced clock for TTL tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// rawCodec stores strings verbatim so blob sizes are predictable. It refuses
// to encode the value "bad".
type rawCodec struct{}

func (rawCodec) Marshal(v string) ([]byte, error) {
	if v == "bad" {
		return nil, errors.New("refusing to encode")
	}
	return []byte(v), nil
}

func (rawCodec) Unmarshal(data []byte) (string, error) { return string(data), nil }
func (rawCodec) Name() string                          { return "raw" }

// recordingRecorder counts the events it receives
type recordingRecorder struct {
	mu        sync.Mutex
	hits      map[types.Tier]int
	misses    int
	sets      int
	memOnly   int
	evictions map[types.EvictionReason]int
	entries   map[types.Tier]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		hits:      make(map[types.Tier]int),
		evictions: make(map[types.EvictionReason]int),
		entries:   make(map[types.Tier]int),
	}
}

func (r *recordingRecorder) RecordHit(tier types.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[tier]++
}

func (r *recordingRecorder) RecordMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recordingRecorder) RecordSet(memoryOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets++
	if memoryOnly {
		r.memOnly++
	}
}

func (r *recordingRecorder) RecordEviction(_ types.Tier, reason types.EvictionReason, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions[reason] += count
}

func (r *recordingRecorder) UpdateTier(tier types.Tier, entries int, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tier] = entries
}
