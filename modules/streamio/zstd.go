package streamio

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdReader = sync.Pool{
		New: func() any {
			d, _ := zstd.NewReader(nil)
			return &ZstdDecoder{
				Decoder: d,
			}
		},
	}
)

type ZstdDecoder struct {
	*zstd.Decoder
}

// GetZstdReader returns a ZstdDecoder that is managed by a sync.Pool.
//
// After use, the ZstdDecoder should be put back into the sync.Pool
// by calling PutZstdReader.
func GetZstdReader(r io.Reader) (*ZstdDecoder, error) {
	z := zstdReader.Get().(*ZstdDecoder)

	err := z.Reset(r)

	return z, err
}

// PutZstdReader puts z back into its sync.Pool, first resetting the reader.
func PutZstdReader(z *ZstdDecoder) {
	_ = z.Reset(nil)
	zstdReader.Put(z)
}

type zstdReadCloser struct {
	*ZstdDecoder
}

func (z *zstdReadCloser) Close() error {
	PutZstdReader(z.ZstdDecoder)
	return nil
}

// NewZstdReader wraps r into a pooled zstd decompressor with Close semantics.
func NewZstdReader(r io.Reader) (io.ReadCloser, error) {
	z, err := GetZstdReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{ZstdDecoder: z}, nil
}

// NewGzipReader wraps r into a gzip decompressor.
func NewGzipReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
