// Package codec turns cached values into bytes and back.
//
// A cache encodes each value once per Set and stores the same bytes in the
// frame of every tier, so the codec is part of the warm and cold on-disk
// format: entries written with one codec cannot be read back with another.
// The tiercache CLI opens caches with Raw and decodes values for display by
// looking the configured codec up with ByName.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by the name reported by its Name method.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	case "raw":
		return Raw{}, true
	default:
		return nil, false
	}
}

// Names lists the names ByName accepts, sorted.
func Names() []string { return []string{"go-json", "json", "raw"} }

// MustMarshal encodes v with c, or with Default when c is nil, and panics on
// failure. It is meant for tests and benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
