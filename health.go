package tiercache

import (
	"fmt"

	"github.com/hupe1980/tiercache/internal/diskstat"
)

// HealthStatus summarizes the state of a cache.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusCritical HealthStatus = "critical"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthThresholds drive Health. Rates are fractions in [0, 1].
type HealthThresholds struct {
	// MinSamples is the number of lookups (for hit rate) or tier writes (for
	// eviction rate) below which the rate is not judged.
	MinSamples int64

	DegradedHitRate float64
	CriticalHitRate float64

	// Eviction rate is evictions per tier write.
	DegradedEvictionRate float64
	CriticalEvictionRate float64

	// HighUtilization triggers a recommendation, not a status change.
	HighUtilization float64

	// MinFreeBytes is the free space below which a disk tier is degraded.
	MinFreeBytes uint64
}

// DefaultHealthThresholds returns the thresholds used unless WithHealthThresholds is given.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		MinSamples:           100,
		DegradedHitRate:      0.5,
		CriticalHitRate:      0.2,
		DegradedEvictionRate: 0.3,
		CriticalEvictionRate: 0.7,
		HighUtilization:      0.9,
		MinFreeBytes:         1 << 30,
	}
}

func (h HealthThresholds) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"health.degradedHitRate", h.DegradedHitRate},
		{"health.criticalHitRate", h.CriticalHitRate},
		{"health.degradedEvictionRate", h.DegradedEvictionRate},
		{"health.criticalEvictionRate", h.CriticalEvictionRate},
		{"health.highUtilization", h.HighUtilization},
	} {
		if f.v < 0 || f.v > 1 {
			return &ConfigError{Field: f.name, Reason: "must be within [0, 1]"}
		}
	}
	if h.MinSamples < 0 {
		return &ConfigError{Field: "health.minSamples", Reason: "must not be negative"}
	}
	if h.CriticalHitRate > h.DegradedHitRate {
		return &ConfigError{Field: "health.criticalHitRate", Reason: "must not exceed degradedHitRate"}
	}
	if h.CriticalEvictionRate < h.DegradedEvictionRate {
		return &ConfigError{Field: "health.criticalEvictionRate", Reason: "must not be below degradedEvictionRate"}
	}
	return nil
}

// TierHealth describes one tier in a health report.
type TierHealth struct {
	Tier        Tier
	Enabled     bool
	Directory   string
	Utilization float64
	// FreeBytes and TotalBytes describe the file system under Directory.
	FreeBytes  uint64
	TotalBytes uint64
	// DiskUsed is the used share of that file system in [0, 1].
	DiskUsed float64
	// DiskError is set when free space could not be determined.
	DiskError string
}

// Health is an advisory report derived from Stats.
type Health struct {
	Status          HealthStatus
	HitRate         float64
	EvictionRate    float64
	Issues          []string
	Recommendations []string
	Tiers           []TierHealth
	Stats           Stats
}

type healthReport struct {
	Health
}

func (r *healthReport) raise(s HealthStatus, issue, recommendation string) {
	if s.rank() > r.Status.rank() {
		r.Status = s
	}
	r.Issues = append(r.Issues, issue)
	if recommendation != "" {
		r.Recommendations = append(r.Recommendations, recommendation)
	}
}

// assessHealth judges stats against th. dirs maps enabled disk tiers to
// their directory; statfs reports free space.
func assessHealth(stats Stats, th HealthThresholds, dirs map[Tier]string, statfs func(string) (diskstat.Usage, error)) Health {
	r := &healthReport{
		Health: Health{
			Status:       StatusHealthy,
			HitRate:      stats.Overall.HitRate,
			EvictionRate: ratio(stats.Overall.Evictions, stats.Overall.TierWrites),
			Stats:        stats,
		},
	}

	lookups := stats.Overall.Hits + stats.Overall.Misses
	if lookups >= th.MinSamples && lookups > 0 {
		switch hr := stats.Overall.HitRate; {
		case hr < th.CriticalHitRate:
			r.raise(StatusCritical,
				fmt.Sprintf("hit rate %.1f%% is below %.1f%%", hr*100, th.CriticalHitRate*100),
				"check that keys are generated from normalized query text and that TTLs are not shorter than the reuse interval")
		case hr < th.DegradedHitRate:
			r.raise(StatusDegraded,
				fmt.Sprintf("hit rate %.1f%% is below %.1f%%", hr*100, th.DegradedHitRate*100),
				"consider longer TTLs or enabling similarity lookups for near-duplicate queries")
		}
	}

	if stats.Overall.TierWrites >= th.MinSamples && stats.Overall.TierWrites > 0 {
		switch er := r.EvictionRate; {
		case er > th.CriticalEvictionRate:
			r.raise(StatusCritical,
				fmt.Sprintf("eviction rate %.1f%% is above %.1f%%", er*100, th.CriticalEvictionRate*100),
				"increase tier capacities; most writes are evicting live entries")
		case er > th.DegradedEvictionRate:
			r.raise(StatusDegraded,
				fmt.Sprintf("eviction rate %.1f%% is above %.1f%%", er*100, th.DegradedEvictionRate*100),
				"increase hot maxEntries or disk maxSizeMB")
		}
	}

	if stats.Overall.PromotionFailures > 0 {
		r.raise(StatusDegraded,
			fmt.Sprintf("%d promotion(s) failed", stats.Overall.PromotionFailures),
			"")
	}

	for _, t := range Tiers {
		ts := stats.Tier(t)
		h := TierHealth{Tier: t, Enabled: ts.Enabled}
		if !ts.Enabled {
			r.Tiers = append(r.Tiers, h)
			continue
		}
		h.Utilization = ts.Utilization()
		if h.Utilization >= th.HighUtilization {
			r.Recommendations = append(r.Recommendations,
				fmt.Sprintf("%s tier is %.0f%% full; raise its capacity if evictions are frequent", t, h.Utilization*100))
		}
		if ts.Corruptions > 0 {
			r.Issues = append(r.Issues, fmt.Sprintf("%s tier removed %d corrupted entries", t, ts.Corruptions))
		}
		if ts.WriteErrors > 0 || ts.ReadErrors > 0 {
			r.raise(StatusDegraded,
				fmt.Sprintf("%s tier had %d write and %d read errors", t, ts.WriteErrors, ts.ReadErrors),
				fmt.Sprintf("check permissions and free space of the %s tier directory", t))
		}

		if dir, ok := dirs[t]; ok {
			h.Directory = dir
			u, err := statfs(dir)
			if err != nil {
				h.DiskError = err.Error()
			} else {
				h.FreeBytes, h.TotalBytes = u.FreeBytes, u.TotalBytes
				h.DiskUsed = u.UsedFraction()
				switch {
				case u.FreeBytes == 0:
					r.raise(StatusCritical,
						fmt.Sprintf("%s tier directory %s has no free space", t, dir),
						"free disk space or lower disk tier capacities")
				case u.FreeBytes < th.MinFreeBytes:
					r.raise(StatusDegraded,
						fmt.Sprintf("%s tier directory %s has only %d MiB free", t, dir, u.FreeBytes>>20),
						"free disk space or lower disk tier capacities")
				}
			}
		}
		r.Tiers = append(r.Tiers, h)
	}

	return r.Health
}
