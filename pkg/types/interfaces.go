package types

// Store defines the operations shared by both cache tiers. Set is tier specific:
// the memory tier cannot fail, the file tier reports encoding and I/O errors.
type Store[V any] interface {
	Get(key string) (V, bool)
	Delete(key string) bool
	Clear()
	CleanupExpired() int
	Len() int
}

// Codec serializes values for the file tier and for best-effort size accounting.
// The memory tier never needs a codec to hold a value.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
	Name() string
}

// Compressor wraps blob bytes on their way to and from disk. Decompress fails
// once the output would exceed limit bytes; limit <= 0 means unbounded.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, limit int64) ([]byte, error)
	Name() string
	Extension() string
}

// ExpiryCleaner is anything a background sweep can drive
type ExpiryCleaner interface {
	CleanupExpired() CleanupResult
}

// Recorder receives cache events for metrics collection
type Recorder interface {
	RecordHit(tier Tier)
	RecordMiss()
	RecordSet(memoryOnly bool)
	RecordEviction(tier Tier, reason EvictionReason, count int)
	UpdateTier(tier Tier, entries int, sizeBytes int64)
}

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) RecordHit(Tier) {}
func (NopRecorder) RecordMiss() {}
func (NopRecorder) RecordSet(bool) {}
func (NopRecorder) RecordEviction(Tier, EvictionReason, int) {}
func (NopRecorder) UpdateTier(Tier, int, int64) {}
