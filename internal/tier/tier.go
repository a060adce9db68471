package tier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tiercache/internal/entry"
)

// Kind identifies a tier. Lower kinds are faster.
type Kind int

const (
	Hot Kind = iota
	Warm
	Cold
)

// Kinds lists every tier, fastest first.
var Kinds = [...]Kind{Hot, Warm, Cold}

func (k Kind) String() string {
	switch k {
	case Hot:
		return "hot"
	case Warm:
		return "warm"
	case Cold:
		return "cold"
	default:
		return fmt.Sprintf("tier(%d)", int(k))
	}
}

// ErrTooLarge is returned when a single entry exceeds the tier's capacity.
var ErrTooLarge = errors.New("entry exceeds tier capacity")

// RemovalReason says why an entry left a tier.
type RemovalReason int

const (
	Evicted RemovalReason = iota
	Expired
	Corrupted
	Deleted
)

func (r RemovalReason) String() string {
	switch r {
	case Evicted:
		return "evicted"
	case Expired:
		return "expired"
	case Corrupted:
		return "corrupted"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Listener observes tier contents.
type Listener interface {
	Stored(kind Kind, key, queryText string, expiresAt time.Time)
	Removed(kind Kind, key string, reason RemovalReason)
	Cleared(kind Kind)
}

type noopListener struct{}

func (noopListener) Stored(Kind, string, string, time.Time) {}
func (noopListener) Removed(Kind, string, RemovalReason)    {}
func (noopListener) Cleared(Kind)                           {}

// Tier is the contract shared by the hot, warm and cold tiers.
type Tier interface {
	Kind() Kind
	// Get returns the entry and records a hit or miss. Expired and corrupted
	// entries are removed and reported as misses. A non-nil error means the
	// tier could not be read; the result is then a miss.
	Get(ctx context.Context, key string) (*entry.Entry, bool, error)
	// Peek returns a live entry without touching recency, counters or storage.
	Peek(ctx context.Context, key string) (*entry.Entry, bool)
	Set(ctx context.Context, e *entry.Entry) error
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	TTL() time.Duration
	Stats() Snapshot
}

// Snapshot is a point-in-time copy of a tier's counters.
type Snapshot struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Expirations   int64
	Corruptions   int64
	WriteErrors   int64
	ReadErrors    int64
	Entries       int64
	SizeBytes     int64
	CapacityBytes int64
	// BytesWritten counts encoded bytes stored since the tier was opened.
	// The hot tier does not track it.
	BytesWritten int64
}

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	corruptions atomic.Int64
	writeErrors atomic.Int64
	readErrors  atomic.Int64
}

func (c *counters) snapshot() Snapshot {
	return Snapshot{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Corruptions: c.corruptions.Load(),
		WriteErrors: c.writeErrors.Load(),
		ReadErrors:  c.readErrors.Load(),
	}
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
