package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol" msgpack:"symbol"`
	Price  float64 `json:"price" msgpack:"price"`
}

func TestCodecs(t *testing.T) {
	tests := []struct {
		name string
		enc  func(quote) ([]byte, error)
		dec  func([]byte) (quote, error)
	}{
		{"msgpack", Msgpack[quote]{}.Marshal, Msgpack[quote]{}.Unmarshal},
		{"json", JSON[quote]{}.Marshal, JSON[quote]{}.Unmarshal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := quote{Symbol: "600519", Price: 1688.5}
			data, err := tt.enc(in)
			require.NoError(t, err)

			out, err := tt.dec(data)
			require.NoError(t, err)
			assert.Equal(t, in, out)

			_, err = tt.dec([]byte{0xc1, 0xff, 0x00})
			assert.Error(t, err)
		})
	}
}

func TestByName(t *testing.T) {
	c, err := ByName[int]("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	c, err = ByName[int]("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = ByName[int]("pickle")
	assert.Error(t, err)
}

func TestSizeOf(t *testing.T) {
	assert.Zero(t, SizeOf[int](nil, 42))
	assert.Positive(t, SizeOf[string](Msgpack[string]{}, "hello"))

	// channels cannot be encoded; size degrades to zero
	assert.Zero(t, SizeOf[chan int](JSON[chan int]{}, make(chan int)))
}

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte("tiercache blob payload "), 200)

	for _, name := range []string{"", CompressionGzip, CompressionZstd, CompressionNone} {
		t.Run("compression="+name, func(t *testing.T) {
			c, err := NewCompressor(name)
			require.NoError(t, err)
			assert.NotEmpty(t, c.Extension())

			packed, err := c.Compress(payload)
			require.NoError(t, err)
			if c.Name() != CompressionNone {
				assert.Less(t, len(packed), len(payload))
			}

			unpacked, err := c.Decompress(packed, 0)
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)

			unpacked, err = c.Decompress(packed, int64(len(payload)))
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)

			_, err = c.Decompress(packed, int64(len(payload))-1)
			assert.ErrorIs(t, err, ErrTooLarge)
		})
	}

	_, err := NewCompressor("lz4")
	assert.Error(t, err)
}

func TestDecompressGarbage(t *testing.T) {
	for _, name := range []string{CompressionGzip, CompressionZstd} {
		c, err := NewCompressor(name)
		require.NoError(t, err)
		_, err = c.Decompress([]byte("definitely not compressed"), 1024)
		assert.Error(t, err, name)
	}
}
