package tiercache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tiercache/internal/diskstat"
)

func fixedDisk(free uint64) func(string) (diskstat.Usage, error) {
	return func(string) (diskstat.Usage, error) {
		return diskstat.Usage{TotalBytes: 100 << 30, FreeBytes: free}, nil
	}
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("Healthy", func(t *testing.T) {
		c := newTestCache[string](t)
		c.statfs = fixedDisk(50 << 30)

		h := c.Health()
		assert.Equal(t, StatusHealthy, h.Status)
		assert.Empty(t, h.Issues)
		require.Len(t, h.Tiers, 3)
		assert.Equal(t, c.Directory(Warm), h.Tiers[1].Directory)
		assert.Equal(t, uint64(50<<30), h.Tiers[2].FreeBytes)
		assert.InDelta(t, 0.5, h.Tiers[2].DiskUsed, 1e-9)
	})

	t.Run("LowHitRate", func(t *testing.T) {
		c := newTestCache[string](t, WithHealthThresholds(HealthThresholds{
			MinSamples:           10,
			DegradedHitRate:      0.5,
			CriticalHitRate:      0.2,
			DegradedEvictionRate: 0.5,
			CriticalEvictionRate: 0.9,
			HighUtilization:      0.9,
		}))
		c.statfs = fixedDisk(50 << 30)

		require.NoError(t, c.Set(ctx, "k", "", "v"))
		_, _, _ = c.Get(ctx, "k")
		for i := range 9 {
			_, _, _ = c.Get(ctx, fmt.Sprintf("m%d", i))
		}

		h := c.Health()
		assert.Equal(t, StatusCritical, h.Status)
		assert.InDelta(t, 0.1, h.HitRate, 1e-9)
		assert.NotEmpty(t, h.Issues)
		assert.NotEmpty(t, h.Recommendations)
	})

	t.Run("TooFewSamples", func(t *testing.T) {
		c := newTestCache[string](t)
		c.statfs = fixedDisk(50 << 30)
		_, _, _ = c.Get(ctx, "nope")

		assert.Equal(t, StatusHealthy, c.Health().Status)
	})

	t.Run("HighEvictionRate", func(t *testing.T) {
		c := newTestCache[int](t,
			WithHot(HotConfig{MaxEntries: 1}),
			WithWarm(WarmConfig{Disabled: true}),
			WithCold(ColdConfig{Disabled: true}),
			WithHealthThresholds(HealthThresholds{
				MinSamples:           10,
				DegradedEvictionRate: 0.3,
				CriticalEvictionRate: 0.95,
			}),
		)
		for i := range 20 {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), "", i))
		}

		h := c.Health()
		assert.Equal(t, StatusDegraded, h.Status)
		assert.InDelta(t, 19.0/20.0, h.EvictionRate, 1e-9)
		assert.False(t, h.Tiers[1].Enabled)
	})

	t.Run("LowDiskSpace", func(t *testing.T) {
		c := newTestCache[string](t)
		c.statfs = fixedDisk(10 << 20)
		assert.Equal(t, StatusDegraded, c.Health().Status)

		c.statfs = fixedDisk(0)
		assert.Equal(t, StatusCritical, c.Health().Status)
	})

	t.Run("DiskStatError", func(t *testing.T) {
		c := newTestCache[string](t)
		c.statfs = func(string) (diskstat.Usage, error) { return diskstat.Usage{}, errors.New("no statfs") }

		h := c.Health()
		assert.Equal(t, StatusHealthy, h.Status)
		assert.Equal(t, "no statfs", h.Tiers[1].DiskError)
	})
}

func TestDefaultHealthThresholdsAreValid(t *testing.T) {
	require.NoError(t, DefaultHealthThresholds().validate())
}
