// Package codec provides value codecs and blob compressors for the file tier.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/objectfs/tiercache/pkg/types"
)

// Msgpack encodes values with MessagePack. It is the default codec: compact,
// schema-less, and able to round-trip arbitrary structs and maps.
type Msgpack[V any] struct{}

var _ types.Codec[int] = Msgpack[int]{}

func (Msgpack[V]) Marshal(v V) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack: marshal: %w", err)
	}
	return data, nil
}

func (Msgpack[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(data, &v); err != nil {
		var zero V
		return zero, fmt.Errorf("msgpack: unmarshal: %w", err)
	}
	return v, nil
}

func (Msgpack[V]) Name() string { return "msgpack" }

// JSON encodes values as JSON, for caches other tools need to inspect
type JSON[V any] struct{}

var _ types.Codec[int] = JSON[int]{}

func (JSON[V]) Marshal(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json: marshal: %w", err)
	}
	return data, nil
}

func (JSON[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		var zero V
		return zero, fmt.Errorf("json: unmarshal: %w", err)
	}
	return v, nil
}

func (JSON[V]) Name() string { return "json" }

// ByName resolves a codec from its configured name
func ByName[V any](name string) (types.Codec[V], error) {
	switch name {
	case "", "msgpack":
		return Msgpack[V]{}, nil
	case "json":
		return JSON[V]{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// SizeOf returns the encoded size of v, or 0 when v cannot be encoded or c is nil
func SizeOf[V any](c types.Codec[V], v V) int64 {
	if c == nil {
		return 0
	}
	data, err := c.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
