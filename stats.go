package tiercache

import (
	"sync/atomic"

	"github.com/hupe1980/tiercache/internal/tier"
)

// TierStats holds the counters of a single tier.
type TierStats struct {
	Enabled bool

	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Corruptions int64
	ReadErrors  int64
	WriteErrors int64

	// Entries and SizeBytes track the live set; every other counter only grows.
	Entries       int64
	SizeBytes     int64
	CapacityBytes int64
	// BytesWritten counts bytes written to disk since the cache was opened.
	BytesWritten int64
}

// HitRate returns Hits / (Hits + Misses), or 0 before the first lookup.
func (s TierStats) HitRate() float64 { return ratio(s.Hits, s.Hits+s.Misses) }

// Utilization returns SizeBytes / CapacityBytes.
func (s TierStats) Utilization() float64 { return ratio(s.SizeBytes, s.CapacityBytes) }

// OverallStats aggregates lookups across tiers. Every Get counts exactly one
// hit or one miss.
type OverallStats struct {
	Hits    int64
	Misses  int64
	HitRate float64
	// WarmHitRate is the share of all lookups answered by the Warm tier.
	WarmHitRate          float64
	SimilarityDetections int64
	Promotions           int64
	PromotionFailures    int64
	Sets                 int64
	SetFailures          int64
	TierWrites           int64
	Evictions            int64
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Hot     TierStats
	Warm    TierStats
	Cold    TierStats
	Overall OverallStats
	// IndexedKeys is the number of keys known to the similarity index.
	IndexedKeys int
}

// Tier returns the stats of t.
func (s Stats) Tier(t Tier) TierStats {
	switch t {
	case Hot:
		return s.Hot
	case Warm:
		return s.Warm
	case Cold:
		return s.Cold
	default:
		return TierStats{}
	}
}

// counters are owned by the cache; per-tier counters live in the tiers.
type counters struct {
	hits                 atomic.Int64
	misses               atomic.Int64
	warmHits             atomic.Int64
	similarityDetections atomic.Int64
	promotions           atomic.Int64
	promotionFailures    atomic.Int64
	sets                 atomic.Int64
	setFailures          atomic.Int64
	tierWrites           atomic.Int64
}

func tierStats(s tier.Snapshot) TierStats {
	return TierStats{
		Enabled:       true,
		Hits:          s.Hits,
		Misses:        s.Misses,
		Evictions:     s.Evictions,
		Expirations:   s.Expirations,
		Corruptions:   s.Corruptions,
		ReadErrors:    s.ReadErrors,
		WriteErrors:   s.WriteErrors,
		Entries:       s.Entries,
		SizeBytes:     s.SizeBytes,
		CapacityBytes: s.CapacityBytes,
		BytesWritten:  s.BytesWritten,
	}
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}
