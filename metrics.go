package tiercache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package prom
// provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordGet is called after each Get. tier is the answering tier when hit
	// is true and is ignored otherwise.
	RecordGet(tier Tier, hit bool, duration time.Duration)

	// RecordSet is called after each Set with the tiers that could not be written.
	RecordSet(failed []Tier, duration time.Duration)

	// RecordEviction is called when an entry leaves a tier because of capacity
	// ("evicted"), TTL ("expired") or an unreadable file ("corrupted").
	RecordEviction(tier Tier, reason string)

	// RecordSimilarity is called after each FindSimilar or FindBestMatch.
	RecordSimilarity(matches int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(Tier, bool, time.Duration) {}
func (NoopMetricsCollector) RecordSet([]Tier, time.Duration)     {}
func (NoopMetricsCollector) RecordEviction(Tier, string)         {}
func (NoopMetricsCollector) RecordSimilarity(int, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount          atomic.Int64
	GetTotalNanos     atomic.Int64
	HotHits           atomic.Int64
	WarmHits          atomic.Int64
	ColdHits          atomic.Int64
	Misses            atomic.Int64
	SetCount          atomic.Int64
	SetFailures       atomic.Int64
	SetTotalNanos     atomic.Int64
	Evictions         atomic.Int64
	Expirations       atomic.Int64
	Corruptions       atomic.Int64
	SimilarityCount   atomic.Int64
	SimilarityMatches atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(tier Tier, hit bool, duration time.Duration) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if !hit {
		b.Misses.Add(1)
		return
	}
	switch tier {
	case Hot:
		b.HotHits.Add(1)
	case Warm:
		b.WarmHits.Add(1)
	case Cold:
		b.ColdHits.Add(1)
	}
}

// RecordSet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSet(failed []Tier, duration time.Duration) {
	b.SetCount.Add(1)
	b.SetTotalNanos.Add(duration.Nanoseconds())
	if len(failed) > 0 {
		b.SetFailures.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(_ Tier, reason string) {
	switch reason {
	case "expired":
		b.Expirations.Add(1)
	case "corrupted":
		b.Corruptions.Add(1)
	default:
		b.Evictions.Add(1)
	}
}

// RecordSimilarity implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSimilarity(matches int, _ time.Duration) {
	b.SimilarityCount.Add(1)
	b.SimilarityMatches.Add(int64(matches))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:          b.GetCount.Load(),
		GetAvgNanos:       avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		HotHits:           b.HotHits.Load(),
		WarmHits:          b.WarmHits.Load(),
		ColdHits:          b.ColdHits.Load(),
		Misses:            b.Misses.Load(),
		SetCount:          b.SetCount.Load(),
		SetFailures:       b.SetFailures.Load(),
		SetAvgNanos:       avg(b.SetTotalNanos.Load(), b.SetCount.Load()),
		Evictions:         b.Evictions.Load(),
		Expirations:       b.Expirations.Load(),
		Corruptions:       b.Corruptions.Load(),
		SimilarityCount:   b.SimilarityCount.Load(),
		SimilarityMatches: b.SimilarityMatches.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount          int64
	GetAvgNanos       int64
	HotHits           int64
	WarmHits          int64
	ColdHits          int64
	Misses            int64
	SetCount          int64
	SetFailures       int64
	SetAvgNanos       int64
	Evictions         int64
	Expirations       int64
	Corruptions       int64
	SimilarityCount   int64
	SimilarityMatches int64
}
