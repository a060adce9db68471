package tiercache

import (
	"fmt"
	"strings"

	"github.com/hupe1980/tiercache/internal/tier"
)

// Tier identifies one cache layer. Lower values are faster.
type Tier int

const (
	Hot Tier = iota
	Warm
	Cold
)

// Tiers lists every tier, fastest first.
var Tiers = []Tier{Hot, Warm, Cold}

func (t Tier) String() string { return tier.Kind(t).String() }

// Valid reports whether t is one of Hot, Warm or Cold.
func (t Tier) Valid() bool { return t >= Hot && t <= Cold }

// ParseTier parses "hot", "warm" or "cold" (case-insensitive).
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hot":
		return Hot, nil
	case "warm":
		return Warm, nil
	case "cold":
		return Cold, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	v, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
