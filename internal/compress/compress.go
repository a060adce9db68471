// Package compress implements the block compression used by the Cold tier.
//
// Every compressed block carries an 8-byte header:
//
//	[UncompressedSize u32][CompressedSize u32][Data...]
//
// CompressedSize == 0 means the payload is stored raw because compression did
// not pay off. The algorithm is not recorded in the block; a tier must be
// reopened with the algorithm it was written with.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression algorithm.
type Algorithm string

const (
	// ZSTD gives the best ratio; suited to the long-tail archive.
	ZSTD Algorithm = "zstd"
	// LZ4 trades ratio for speed.
	LZ4 Algorithm = "lz4"
)

// DefaultLevel is the zstd level used when none is configured.
const DefaultLevel = 3

const headerSize = 8

// MaxBlockSize bounds the uncompressed size of a block. It also keeps a
// corrupted header from requesting a huge allocation.
const MaxBlockSize = 256 << 20

var (
	// ErrCorrupt is returned when a block cannot be decompressed.
	ErrCorrupt = errors.New("compress: corrupt block")
	// ErrTooLarge is returned when the input exceeds MaxBlockSize.
	ErrTooLarge = errors.New("compress: block too large")
)

// Compressor compresses and decompresses blocks.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(block []byte) ([]byte, error)
	Algorithm() Algorithm
	Level() int
}

// ValidateLevel reports whether level is accepted by algo.
// zstd accepts 1..22, lz4 accepts 0 (fast) through 9 (high compression).
func ValidateLevel(algo Algorithm, level int) error {
	switch algo {
	case ZSTD:
		if level < 1 || level > 22 {
			return fmt.Errorf("zstd level %d out of range 1..22", level)
		}
	case LZ4:
		if level < 0 || level > 9 {
			return fmt.Errorf("lz4 level %d out of range 0..9", level)
		}
	default:
		return fmt.Errorf("unknown compression algorithm %q", algo)
	}
	return nil
}

// New returns a Compressor for algo at level.
func New(algo Algorithm, level int) (Compressor, error) {
	if err := ValidateLevel(algo, level); err != nil {
		return nil, err
	}

	switch algo {
	case LZ4:
		return &lz4Compressor{level: level}, nil
	default:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		return &zstdCompressor{enc: enc, dec: dec, level: level}, nil
	}
}

type zstdCompressor struct {
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	level int
}

func (z *zstdCompressor) Algorithm() Algorithm { return ZSTD }
func (z *zstdCompressor) Level() int           { return z.level }

// Compress is safe for concurrent use: EncodeAll does not share state between calls.
func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) > MaxBlockSize {
		return nil, ErrTooLarge
	}
	return frame(data, z.enc.EncodeAll(data, nil)), nil
}

func (z *zstdCompressor) Decompress(block []byte) ([]byte, error) {
	raw, payload, stored, err := unframe(block)
	if err != nil || stored {
		return raw, err
	}
	out, err := z.dec.DecodeAll(payload, make([]byte, 0, len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if len(out) != cap(raw) {
		return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return out, nil
}

type lz4Compressor struct {
	level int
}

func (l *lz4Compressor) Algorithm() Algorithm { return LZ4 }
func (l *lz4Compressor) Level() int           { return l.level }

func (l *lz4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) > MaxBlockSize {
		return nil, ErrTooLarge
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	var (
		n   int
		err error
	)
	if l.level == 0 {
		var c lz4.Compressor
		n, err = c.CompressBlock(data, dst)
	} else {
		c := lz4.CompressorHC{Level: lz4.CompressionLevel(1 << (8 + l.level))}
		n, err = c.CompressBlock(data, dst)
	}
	if err != nil {
		return nil, err
	}
	// n == 0 means the input is incompressible.
	return frame(data, dst[:n]), nil
}

func (l *lz4Compressor) Decompress(block []byte) ([]byte, error) {
	raw, payload, stored, err := unframe(block)
	if err != nil || stored {
		return raw, err
	}
	out := raw[:cap(raw)]
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if n != len(out) {
		return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return out, nil
}

// frame wraps compressed output with the block header, falling back to the raw
// data when compression does not help (ratio > 0.9).
func frame(data, compressed []byte) []byte {
	if len(data) == 0 || len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[headerSize:], data)
		return out
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out
}

// unframe validates the header. For stored blocks it returns the data directly
// (stored=true). For compressed blocks it returns an empty buffer with the
// expected uncompressed capacity and the compressed payload.
func unframe(block []byte) (raw, payload []byte, stored bool, err error) {
	if len(block) < headerSize {
		return nil, nil, false, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}

	uncompressed := binary.LittleEndian.Uint32(block[0:])
	compressed := binary.LittleEndian.Uint32(block[4:])
	if uncompressed > MaxBlockSize {
		return nil, nil, false, fmt.Errorf("%w: declared size %d exceeds limit", ErrCorrupt, uncompressed)
	}

	if compressed == 0 {
		if uint64(len(block)) != headerSize+uint64(uncompressed) {
			return nil, nil, false, fmt.Errorf("%w: stored block size mismatch", ErrCorrupt)
		}
		return block[headerSize:], nil, true, nil
	}

	if uint64(len(block)) != headerSize+uint64(compressed) {
		return nil, nil, false, fmt.Errorf("%w: compressed block size mismatch", ErrCorrupt)
	}
	return make([]byte, 0, uncompressed), block[headerSize:], false, nil
}
