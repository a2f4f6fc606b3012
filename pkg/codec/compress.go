package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/objectfs/tiercache/pkg/types"
)

// Compression names accepted by NewCompressor
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// ErrTooLarge is returned when a blob decompresses past the caller's limit
var ErrTooLarge = errors.New("decompressed blob exceeds limit")

// readLimited reads r to the end, failing once more than limit bytes arrive.
// A limit <= 0 disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}

// NewCompressor returns the compressor registered under name. An empty name
// selects gzip.
func NewCompressor(name string) (types.Compressor, error) {
	switch name {
	case "", CompressionGzip:
		return Gzip{Level: gzip.DefaultCompression}, nil
	case CompressionZstd:
		return Zstd{}, nil
	case CompressionNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// None stores blobs as-is
type None struct{}

func (None) Compress(data []byte) ([]byte, error) { return data, nil }

func (None) Decompress(data []byte, limit int64) ([]byte, error) {
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func (None) Name() string      { return CompressionNone }
func (None) Extension() string { return ".bin" }

// Gzip compresses blobs with gzip
type Gzip struct {
	Level int
}

func (g Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gzip: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gzip) Decompress(data []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = r.Close() }()

	out, err := readLimited(r, limit)
	if err != nil {
		return nil, fmt.Errorf("gzip: read: %w", err)
	}
	return out, nil
}

func (Gzip) Name() string      { return CompressionGzip }
func (Gzip) Extension() string { return ".gz" }

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll calls
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Zstd compresses blobs with Zstandard
type Zstd struct{}

func (Zstd) Compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

func (Zstd) Decompress(data []byte, limit int64) ([]byte, error) {
	if limit > 0 {
		// DecodeAll sizes its output from the frame, so bounded reads stream instead
		dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()

		out, err := readLimited(dec, limit)
		if err != nil {
			return nil, fmt.Errorf("zstd: decode: %w", err)
		}
		return out, nil
	}

	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: decode: %w", err)
	}
	return out, nil
}

func (Zstd) Name() string      { return CompressionZstd }
func (Zstd) Extension() string { return ".zst" }
