package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// MemoizeOption configures a memoized function
type MemoizeOption[A any] func(*memoizeOptions[A])

type memoizeOptions[A any] struct {
	ttl        time.Duration
	memoryOnly bool
	keyFunc    func(A) (string, error)
}

// WithMemoTTL sets the lifetime of memoized results
func WithMemoTTL[A any](ttl time.Duration) MemoizeOption[A] {
	return func(o *memoizeOptions[A]) { o.ttl = ttl }
}

// WithMemoMemoryOnly keeps memoized results out of the file tier
func WithMemoMemoryOnly[A any]() MemoizeOption[A] {
	return func(o *memoizeOptions[A]) { o.memoryOnly = true }
}

// WithKeyFunc replaces the default argument hashing
func WithKeyFunc[A any](keyFunc func(A) (string, error)) MemoizeOption[A] {
	return func(o *memoizeOptions[A]) { o.keyFunc = keyFunc }
}

// MemoizeKey returns the cache key the default key derivation uses for a call
// to the function memoized as name with argument arg.
func MemoizeKey[A any](name string, arg A) (string, error) {
	encoded, err := msgpack.Marshal(arg)
	if err != nil {
		return "", err
	}

	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("|")
	_, _ = h.Write(encoded)
	return name + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}

// Memoize wraps fn so its results are cached in m under a key derived from
// name and the argument. Errors from fn are returned and never cached. If the
// key cannot be derived, fn is called without caching.
//
// Concurrent calls missing on the same key all run fn; the last one to
// finish wins.
func Memoize[A, V any](m *Manager[V], name string, fn func(context.Context, A) (V, error), opts ...MemoizeOption[A]) func(context.Context, A) (V, error) {
	var o memoizeOptions[A]
	for _, opt := range opts {
		opt(&o)
	}
	if o.keyFunc == nil {
		o.keyFunc = func(arg A) (string, error) {
			return MemoizeKey(name, arg)
		}
	}

	setOpts := []SetOption{WithTTL(o.ttl)}
	if o.memoryOnly {
		setOpts = append(setOpts, MemoryOnly())
	}

	logger := m.opts.logger.WithField("function", name)

	return func(ctx context.Context, arg A) (V, error) {
		key, err := o.keyFunc(arg)
		if err != nil {
			logger.Warn("cannot derive cache key, calling uncached", map[string]interface{}{
				"error": err.Error(),
			})
			return fn(ctx, arg)
		}

		if value, ok := m.Get(key); ok {
			return value, nil
		}

		value, err := fn(ctx, arg)
		if err != nil {
			return value, err
		}

		m.Set(key, value, setOpts...)
		return value, nil
	}
}
