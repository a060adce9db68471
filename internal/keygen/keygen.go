package keygen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// MaxKeyLen bounds key length so keys stay usable as file names.
const MaxKeyLen = 200

// bucketChars is the number of hex characters used for a bucket (256 buckets).
const bucketChars = 2

// Generate returns the cache key for the given triple.
func Generate(query, namespace, category string) string {
	// Each field is length-prefixed, so no choice of field contents can
	// shift bytes from one field into another.
	var buf []byte
	for _, f := range [...]string{namespace, category, query} {
		f = normalize(f)
		buf = binary.AppendUvarint(buf, uint64(len(f)))
		buf = append(buf, f...)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Bucket returns the shard directory name for key.
func Bucket(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:bucketChars]
}

// Valid reports whether key can be used as a file name inside a bucket.
func Valid(key string) bool {
	if key == "" || len(key) > MaxKeyLen || key == "." || key == ".." {
		return false
	}
	// Disk tiers name their temp files "<key>.tmp-<uuid>".
	if strings.Contains(key, ".tmp-") {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
