// Package entry defines the cache entry and its on-disk frame.
//
// Frame layout (little endian):
//
//	[magic "TCE" | version u8][crc32c u32][createdAt i64][expiresAt i64]
//	[keyLen u16][queryLen u32][valueLen u32][key][query][value]
//
// The checksum covers every byte after the checksum field. A frame that is
// truncated, carries the wrong magic or version, or fails the checksum decodes
// to ErrCorrupt.
package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"time"
)

// ErrCorrupt is returned when a frame cannot be decoded.
var ErrCorrupt = errors.New("entry: corrupt frame")

const (
	version    = 1
	headerSize = 4 + 4 + 8 + 8 + 2 + 4 + 4
	// fixedOverhead approximates the in-memory cost of an entry beyond its byte fields.
	fixedOverhead = 64
)

var (
	magic       = [3]byte{'T', 'C', 'E'}
	castagnoli  = crc32.MakeTable(crc32.Castagnoli)
	errTooLarge = errors.New("entry: field too large")
)

// MaxExpiry is the latest expiry a frame can hold. Longer TTLs are clamped to it.
var MaxExpiry = time.Unix(0, math.MaxInt64)

// Entry is a single cached value together with its bookkeeping.
// Value holds the codec-encoded payload; the cache never interprets it.
type Entry struct {
	Key       string
	QueryText string
	Value     []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// New builds an entry that expires ttl after now, or at MaxExpiry if that
// comes first.
func New(key, queryText string, value []byte, now time.Time, ttl time.Duration) *Entry {
	expires := now.Add(ttl)
	if expires.After(MaxExpiry) {
		expires = MaxExpiry
	}
	return &Entry{
		Key:       key,
		QueryText: queryText,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: expires,
	}
}

// SizeBytes is the accounting size of the entry.
func (e *Entry) SizeBytes() int64 {
	return int64(len(e.Key)+len(e.QueryText)+len(e.Value)) + fixedOverhead
}

// Expired reports whether the entry is no longer valid at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// WithExpiry returns a shallow copy whose expiry is capped at now+ttl.
// Promotion uses it so a copied entry never outlives its source.
func (e *Entry) WithExpiry(now time.Time, ttl time.Duration) *Entry {
	cp := *e
	if limit := now.Add(ttl); limit.Before(cp.ExpiresAt) {
		cp.ExpiresAt = limit
	}
	return &cp
}

// Marshal encodes the entry into a checksummed frame.
func Marshal(e *Entry) ([]byte, error) {
	if len(e.Key) > math.MaxUint16 || len(e.QueryText) > math.MaxUint32 || len(e.Value) > math.MaxUint32 {
		return nil, errTooLarge
	}

	buf := make([]byte, headerSize+len(e.Key)+len(e.QueryText)+len(e.Value))
	copy(buf[0:3], magic[:])
	buf[3] = version

	off := 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(unixNano(e.CreatedAt)))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(unixNano(e.ExpiresAt)))
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(e.Key)))
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.QueryText)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Value)))
	off += 4
	off += copy(buf[off:], e.Key)
	off += copy(buf[off:], e.QueryText)
	copy(buf[off:], e.Value)

	binary.LittleEndian.PutUint32(buf[4:], crc32.Checksum(buf[8:], castagnoli))
	return buf, nil
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(data []byte) (*Entry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if data[3] != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[3])
	}
	if want, got := binary.LittleEndian.Uint32(data[4:]), crc32.Checksum(data[8:], castagnoli); want != got {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	off := 8
	created := int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	expires := int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	keyLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	queryLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	valueLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	if len(data)-off != keyLen+queryLen+valueLen {
		return nil, fmt.Errorf("%w: length mismatch", ErrCorrupt)
	}

	e := &Entry{
		Key:       string(data[off : off+keyLen]),
		QueryText: string(data[off+keyLen : off+keyLen+queryLen]),
		Value:     append([]byte(nil), data[off+keyLen+queryLen:]...),
		CreatedAt: time.Unix(0, created),
		ExpiresAt: time.Unix(0, expires),
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		return nil, fmt.Errorf("%w: expiry precedes creation", ErrCorrupt)
	}
	return e, nil
}

func unixNano(t time.Time) int64 {
	if t.After(MaxExpiry) {
		return math.MaxInt64
	}
	return t.UnixNano()
}
