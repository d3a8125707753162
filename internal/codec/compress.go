package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/LavishGent/keyv/internal/types"
)

// maxDecompressedSize bounds decompression output.
const maxDecompressedSize = 64 << 20

type GzipCompressor struct {
	level int
}

func NewGzipCompressor(level int) *GzipCompressor {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readLimited(r)
}

// ZstdCompressor shares one encoder and decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstdCompressor() (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}

type BrotliCompressor struct {
	level int
}

func NewBrotliCompressor(level int) *BrotliCompressor {
	if level == 0 {
		level = brotli.DefaultCompression
	}
	return &BrotliCompressor{level: level}
}

func (c *BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.level)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	return readLimited(brotli.NewReader(bytes.NewReader(data)))
}

type LZ4Compressor struct{}

func NewLZ4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	return readLimited(lz4.NewReader(bytes.NewReader(data)))
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("codec: decompressed payload exceeds %d bytes", maxDecompressedSize)
	}
	return out, nil
}

// CompressorByName resolves a configured compression tag. The empty name and
// "none" return nil.
func CompressorByName(name string) (types.Compressor, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "gzip":
		return NewGzipCompressor(0), nil
	case "zstd":
		return NewZstdCompressor()
	case "brotli":
		return NewBrotliCompressor(0), nil
	case "lz4":
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("codec: unknown compression %q", name)
	}
}

var (
	_ types.Compressor = (*GzipCompressor)(nil)
	_ types.Compressor = (*ZstdCompressor)(nil)
	_ types.Compressor = (*BrotliCompressor)(nil)
	_ types.Compressor = (*LZ4Compressor)(nil)
)
