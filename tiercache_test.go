package tiercache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tiercache/internal/entry"
	"github.com/hupe1980/tiercache/internal/fs"
)

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		root := t.TempDir()
		c, err := New[string](WithDirectory(root))
		require.NoError(t, err)

		s := c.Stats()
		assert.True(t, s.Hot.Enabled)
		assert.True(t, s.Warm.Enabled)
		assert.True(t, s.Cold.Enabled)
		assert.Equal(t, int64(DefaultHotMaxSizeBytes), s.Hot.CapacityBytes)
		assert.Equal(t, int64(DefaultWarmMaxSizeMB)<<20, s.Warm.CapacityBytes)
		assert.Equal(t, int64(DefaultColdMaxSizeMB)<<20, s.Cold.CapacityBytes)
		assert.Equal(t, filepath.Join(root, "warm"), c.Directory(Warm))
		assert.Equal(t, filepath.Join(root, "cold"), c.Directory(Cold))
		assert.Empty(t, c.Directory(Hot))
	})

	t.Run("DisabledTiers", func(t *testing.T) {
		c := newTestCache[string](t, WithWarm(WarmConfig{Disabled: true}), WithCold(ColdConfig{Disabled: true}))
		s := c.Stats()
		assert.True(t, s.Hot.Enabled)
		assert.False(t, s.Warm.Enabled)
		assert.False(t, s.Cold.Enabled)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cases := map[string][]Option{
			"hot.maxEntries":         {WithHot(HotConfig{MaxEntries: -1})},
			"hot.ttl":                {WithHot(HotConfig{TTL: -time.Second})},
			"warm.maxSizeMB":         {WithWarm(WarmConfig{MaxSizeMB: -5})},
			"cold.ttl":               {WithCold(ColdConfig{TTL: -time.Hour})},
			"cold.algorithm":         {WithCold(ColdConfig{Algorithm: "brotli"})},
			"cold.compressionLevel":  {WithCold(ColdConfig{CompressionLevel: 42})},
			"similarityThreshold":    {WithSimilarityThreshold(1.5)},
			"ioLimit":                {WithIOLimit(-1)},
			"health.degradedHitRate": {WithHealthThresholds(HealthThresholds{DegradedHitRate: 2})},
		}
		for field, opts := range cases {
			t.Run(field, func(t *testing.T) {
				_, err := New[string](append([]Option{WithDirectory(t.TempDir())}, opts...)...)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)

				var ce *ConfigError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, field, ce.Field)
			})
		}
	})

	t.Run("SameDirectory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := New[string](WithWarm(WarmConfig{Directory: dir}), WithCold(ColdConfig{Directory: dir}))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[answer](t)

	v := answer{Text: "Caches keep results close.", Score: 0.93, Tags: []string{"a", "b"}, Tokens: 12}
	require.NoError(t, c.Set(ctx, "k1", "explain caching", v))

	for _, drop := range [][]Tier{nil, {Hot}, {Hot, Warm}} {
		if drop != nil {
			require.NoError(t, c.Clear(ctx, drop...))
		}
		got, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
}

func TestTierPrecedence(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	require.NoError(t, c.Set(ctx, "k", "q", "fresh"))

	// Put a different value directly into the slower tiers.
	stale, err := c.codec.Marshal("stale")
	require.NoError(t, err)
	require.NoError(t, c.warm.Set(ctx, entry.New("k", "q", stale, c.now(), time.Hour)))
	require.NoError(t, c.cold.Set(ctx, entry.New("k", "q", stale, c.now(), time.Hour)))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hot.Hits)
	assert.Zero(t, s.Warm.Hits+s.Warm.Misses)
	assert.Zero(t, s.Cold.Hits+s.Cold.Misses)
}

func TestPromotion(t *testing.T) {
	ctx := context.Background()

	t.Run("FromWarm", func(t *testing.T) {
		c := newTestCache[string](t)
		require.NoError(t, c.Set(ctx, "k", "q", "v"))
		require.NoError(t, c.Clear(ctx, Hot))

		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), c.Stats().Warm.Hits)

		_, ok, err = c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		s := c.Stats()
		assert.Equal(t, int64(1), s.Hot.Hits)
		assert.Equal(t, int64(1), s.Warm.Hits)
		assert.Zero(t, s.Cold.Hits)
		assert.Equal(t, int64(1), s.Overall.Promotions)
	})

	t.Run("FromCold", func(t *testing.T) {
		c := newTestCache[string](t)
		require.NoError(t, c.Set(ctx, "k", "q", "v"))
		require.NoError(t, c.Clear(ctx, Hot, Warm))

		_, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), c.Stats().Cold.Hits)

		_, ok = c.warm.Peek(ctx, "k")
		assert.True(t, ok, "cold hit must be promoted into warm")

		_, ok, err = c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		s := c.Stats()
		assert.Equal(t, int64(1), s.Hot.Hits)
		assert.Equal(t, int64(1), s.Cold.Hits)
		assert.Zero(t, s.Warm.Hits)
		assert.Equal(t, int64(2), s.Overall.Promotions)
	})

	t.Run("FailureDoesNotFailGet", func(t *testing.T) {
		root := t.TempDir()
		faulty := fs.NewFaultyFS(nil)
		c := newTestCache[string](t, WithDirectory(root), withFileSystem(faulty))

		require.NoError(t, c.Set(ctx, "k", "q", "v"))
		require.NoError(t, c.Clear(ctx, Hot, Warm))
		faulty.AddRule(filepath.Join(root, "warm"), fs.Fault{FailOnOpen: true, FailAfterBytes: -1})

		v, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", v)

		s := c.Stats()
		assert.Equal(t, int64(1), s.Overall.PromotionFailures)
		assert.Equal(t, int64(1), s.Overall.Promotions, "hot promotion still succeeds")
	})
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache[string](t,
		withClock(clk.Now),
		WithHot(HotConfig{TTL: time.Minute}),
		WithWarm(WarmConfig{TTL: 2 * time.Minute}),
		WithCold(ColdConfig{TTL: 3 * time.Minute}),
	)

	require.NoError(t, c.Set(ctx, "k", "q", "v"))

	clk.Advance(30 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Hot.Hits)

	clk.Advance(time.Minute) // 90s: hot expired, warm live
	_, ok, _ = c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Warm.Hits)
	assert.Equal(t, int64(1), c.Stats().Hot.Expirations)

	clk.Advance(2 * time.Minute) // 210s: everything expired
	_, err := os.Stat(c.cold.Path("k"))
	require.NoError(t, err, "file is still on disk")

	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(c.cold.Path("k"))
	assert.True(t, os.IsNotExist(err), "expired file is removed on read")
}

func TestTTLOverride(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache[string](t,
		withClock(clk.Now),
		WithHot(HotConfig{TTL: time.Minute}),
		WithWarm(WarmConfig{TTL: time.Minute}),
		WithCold(ColdConfig{TTL: time.Minute}),
	)

	require.NoError(t, c.Set(ctx, "k", "q", "v", WithTTL(Cold, time.Hour), WithTTL(Warm, -time.Hour)))

	clk.Advance(30 * time.Minute)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Cold.Hits)

	require.NoError(t, c.Set(ctx, "k2", "q", "v", WithTTLs(2*time.Hour, 0, 0)))
	clk.Advance(90 * time.Minute)
	_, ok, _ = c.Get(ctx, "k2")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Hot.Hits)
}

func TestHotLRUEviction(t *testing.T) {
	ctx := context.Background()
	const maxEntries, extra = 5, 3

	c := newTestCache[int](t,
		WithHot(HotConfig{MaxEntries: maxEntries}),
		WithWarm(WarmConfig{Disabled: true}),
		WithCold(ColdConfig{Disabled: true}),
	)

	for i := range maxEntries + extra {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), "", i))
	}

	s := c.Stats()
	assert.Equal(t, int64(extra), s.Hot.Evictions)
	assert.Equal(t, int64(maxEntries), s.Hot.Entries)

	for i := range maxEntries + extra {
		_, ok, err := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.Equal(t, i >= extra, ok, "k%d", i)
	}
}

func TestCorruptionResilience(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	require.NoError(t, c.Set(ctx, "bad", "q", "v1"))
	require.NoError(t, c.Set(ctx, "good", "q", "v2"))
	require.NoError(t, c.Clear(ctx, Hot))

	require.NoError(t, os.WriteFile(c.warm.Path("bad"), []byte("not an entry"), 0o644))
	require.NoError(t, os.WriteFile(c.cold.Path("bad"), []byte{0x28, 0xb5, 0x2f, 0xfd, 0, 1}, 0o644))

	v, ok, err := c.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)

	for _, p := range []string{c.warm.Path("bad"), c.cold.Path("bad")} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}

	v, ok, err = c.Get(ctx, "good")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Warm.Corruptions)
	assert.Equal(t, int64(1), s.Cold.Corruptions)
}

func TestCorruptWarmFallsThroughToCold(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	require.NoError(t, c.Set(ctx, "k", "q", "v"))
	require.NoError(t, c.Clear(ctx, Hot))
	require.NoError(t, os.WriteFile(c.warm.Path("k"), []byte("garbage"), 0o644))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, int64(1), c.Stats().Cold.Hits)

	// Promotion rewrote a valid warm copy.
	e, ok := c.warm.Peek(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "q", e.QueryText)
}

func TestSetPartialFailure(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	faulty := fs.NewFaultyFS(nil)
	c := newTestCache[string](t, WithDirectory(root), withFileSystem(faulty))

	require.NoError(t, c.Set(ctx, "k", "q", "old"))
	faulty.AddRule(filepath.Join(root, "cold"), fs.Fault{FailAfterBytes: 0, Err: fs.ErrDiskFull})

	err := c.Set(ctx, "k", "q", "new")
	require.Error(t, err)

	var se *SetError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []Tier{Cold}, se.FailedTiers())
	assert.ErrorIs(t, err, fs.ErrDiskFull)

	var te TierError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Cold, te.Tier)

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", v)

	require.NoError(t, c.Clear(ctx, Hot))
	v, _, _ = c.Get(ctx, "k")
	assert.Equal(t, "new", v, "warm holds the new value")

	_, ok = c.cold.Peek(ctx, "k")
	assert.False(t, ok, "failed tier no longer holds the old value")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Overall.Sets)
	assert.Equal(t, int64(1), s.Overall.SetFailures)
	assert.Equal(t, int64(1), s.Cold.WriteErrors)
}

func TestSetEntryTooLarge(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t, WithHot(HotConfig{MaxSizeBytes: 256}))

	big := string(make([]byte, 1024))
	err := c.Set(ctx, "k", "q", big)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryTooLarge)

	var se *SetError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []Tier{Hot}, se.FailedTiers())

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big, v)
}

func TestHitRateBookkeeping(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[int](t)

	require.NoError(t, c.Set(ctx, "a", "", 1))
	require.NoError(t, c.Set(ctx, "b", "", 2))
	require.NoError(t, c.Clear(ctx, Hot))

	const hits, misses = 7, 3
	for i := range hits {
		_, ok, err := c.Get(ctx, []string{"a", "b"}[i%2])
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := range misses {
		_, ok, err := c.Get(ctx, fmt.Sprintf("missing-%d", i))
		require.NoError(t, err)
		require.False(t, ok)
	}

	s := c.Stats().Overall
	assert.Equal(t, int64(hits), s.Hits)
	assert.Equal(t, int64(misses), s.Misses)
	assert.InDelta(t, float64(hits)/float64(hits+misses), s.HitRate, 1e-9)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	a, err := New[answer](WithDirectory(root))
	require.NoError(t, err)
	v := answer{Text: "persisted", Tokens: 3}
	require.NoError(t, a.Set(ctx, "k", "persisted answer", v))
	require.NoError(t, a.Close())

	b, err := New[answer](WithDirectory(root))
	require.NoError(t, err)

	assert.Zero(t, b.Stats().Hot.Entries)
	assert.Equal(t, int64(1), b.Stats().Warm.Entries)

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v, got)

	s := b.Stats()
	assert.Zero(t, s.Hot.Hits)
	assert.Equal(t, int64(1), s.Warm.Hits)

	matches, err := b.FindSimilar(ctx, "persisted answer", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "k", matches[0].Key)
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	require.NoError(t, c.Set(ctx, "k1", "explain how caching works", "A"))
	require.NoError(t, c.Set(ctx, "k2", "explain database indexing", "B"))
	require.NoError(t, c.Set(ctx, "k3", "what is the weather today", "C"))

	t.Run("Scenario", func(t *testing.T) {
		m, ok, err := c.FindBestMatch(ctx, "How caching works", 0.7)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "A", m.Value)
		assert.GreaterOrEqual(t, m.Similarity, 0.7)
		assert.Equal(t, Hot, m.Tier)

		_, ok, err = c.FindBestMatch(ctx, "database indexing strategy", 0.7)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Monotonic", func(t *testing.T) {
		text := "explain caching and database indexing"
		var prev []string
		for _, th := range []float64{0.9, 0.6, 0.3, 0.1, 0} {
			matches, err := c.FindSimilar(ctx, text, th)
			require.NoError(t, err)
			keys := make([]string, len(matches))
			for i, m := range matches {
				keys[i] = m.Key
				assert.GreaterOrEqual(t, m.Similarity, th)
				if i > 0 {
					assert.GreaterOrEqual(t, matches[i-1].Similarity, m.Similarity)
				}
			}
			assert.Subset(t, keys, prev)
			prev = keys
		}
		assert.Len(t, prev, 3)
	})

	t.Run("Deterministic", func(t *testing.T) {
		first, err := c.FindSimilar(ctx, "explain", 0)
		require.NoError(t, err)
		for range 5 {
			again, err := c.FindSimilar(ctx, "explain", 0)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("DefaultThreshold", func(t *testing.T) {
		matches, err := c.FindSimilar(ctx, "explain how caching works", -1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	})

	t.Run("ReadsSlowerTiers", func(t *testing.T) {
		require.NoError(t, c.Clear(ctx, Hot))
		hits := c.Stats().Overall.Hits

		m, ok, err := c.FindBestMatch(ctx, "what is the weather today", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "C", m.Value)
		assert.Equal(t, Warm, m.Tier)
		assert.Equal(t, hits, c.Stats().Overall.Hits, "similarity reads are not lookups")
		assert.Zero(t, c.Stats().Hot.Entries, "similarity reads do not promote")
	})
}

func TestSimilarityCounter(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)
	require.NoError(t, c.Set(ctx, "k", "explain caching", "A"))

	_, _ = c.FindSimilar(ctx, "explain caching", 0.5)
	_, _, _ = c.FindBestMatch(ctx, "explain caching", 0.5)
	_, _ = c.FindSimilar(ctx, "unrelated words", 0.5)

	assert.Equal(t, int64(2), c.Stats().Overall.SimilarityDetections)
}

func TestSimilarityDisabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t, WithSimilarityDetection(false))
	require.NoError(t, c.Set(ctx, "k", "explain caching", "A"))

	matches, err := c.FindSimilar(ctx, "explain caching", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, c.Stats().Overall.SimilarityDetections)
}

func TestSimilarityFollowsTierContents(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t,
		WithWarm(WarmConfig{Disabled: true}),
		WithCold(ColdConfig{Disabled: true}),
		WithHot(HotConfig{MaxEntries: 1}),
	)

	require.NoError(t, c.Set(ctx, "k1", "alpha beta", "A"))
	require.NoError(t, c.Set(ctx, "k2", "gamma delta", "B"))

	_, ok, err := c.FindBestMatch(ctx, "alpha beta", 1)
	require.NoError(t, err)
	assert.False(t, ok, "evicted entries leave the index")
	assert.Equal(t, 1, c.Stats().IndexedKeys)
}

func TestLookupStore(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	key, err := c.Store(ctx, "Explain   Caching", "agent-1", "qa", "A")
	require.NoError(t, err)
	assert.Equal(t, GenerateKey("explain caching", "agent-1", "qa"), key)

	v, ok, err := c.Lookup(ctx, "explain caching", "agent-1", "qa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok, err = c.Lookup(ctx, "explain caching", "agent-2", "qa")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)
	require.NoError(t, c.Set(ctx, "k", "explain caching", "A"))

	ok, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	matches, err := c.FindSimilar(ctx, "explain caching", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	ok, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)
	require.NoError(t, c.Set(ctx, "k", "q", "v"))
	_, _, _ = c.Get(ctx, "k")

	require.NoError(t, c.Clear(ctx, Warm))
	s := c.Stats()
	assert.Equal(t, int64(1), s.Hot.Entries)
	assert.Zero(t, s.Warm.Entries)
	assert.Equal(t, int64(1), s.Cold.Entries)

	require.NoError(t, c.Clear(ctx))
	s = c.Stats()
	assert.Zero(t, s.Hot.Entries+s.Warm.Entries+s.Cold.Entries)
	assert.Equal(t, int64(1), s.Overall.Hits, "clear keeps counters")
	assert.Equal(t, int64(1), s.Hot.Hits)

	assert.ErrorIs(t, c.Clear(ctx, Tier(7)), ErrUnknownTier)

	// Clearing an empty cache is fine.
	require.NoError(t, c.Clear(ctx))
}

func TestInvalidKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)

	for _, key := range []string{"", "..", "a/b", "has space", "x.tmp-y"} {
		assert.ErrorIs(t, c.Set(ctx, key, "", "v"), ErrInvalidKey, key)
		_, _, err := c.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[string](t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", "", "v"), ErrClosed)
	assert.ErrorIs(t, c.Clear(ctx), ErrClosed)
	_, err = c.FindSimilar(ctx, "x", 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Delete(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)

	assert.NotPanics(t, func() { _ = c.Stats() })
}

func TestGetSurfacesIOErrors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	faulty := fs.NewFaultyFS(nil)
	c := newTestCache[string](t, WithDirectory(root), withFileSystem(faulty))

	require.NoError(t, c.Set(ctx, "k", "q", "v"))
	require.NoError(t, c.Clear(ctx, Hot))

	faulty.AddRule(filepath.Join(root, "warm"), fs.Fault{FailOnRead: true, FailAfterBytes: -1})
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err, "cold answers after warm fails")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Clear(ctx, Hot))
	faulty.AddRule(filepath.Join(root, "cold"), fs.Fault{FailOnRead: true, FailAfterBytes: -1})
	_, ok, err = c.Get(ctx, "k")
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)

	var te TierError
	require.ErrorAs(t, err, &te)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	m := &BasicMetricsCollector{}
	c := newTestCache[string](t, WithMetricsCollector(m), WithHot(HotConfig{MaxEntries: 1}))

	require.NoError(t, c.Set(ctx, "a", "alpha", "A"))
	require.NoError(t, c.Set(ctx, "b", "beta", "B"))
	_, _, _ = c.Get(ctx, "b")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "zzz")
	_, _ = c.FindSimilar(ctx, "alpha", 1)

	s := m.GetStats()
	assert.Equal(t, int64(3), s.GetCount)
	assert.Equal(t, int64(1), s.HotHits)
	assert.Equal(t, int64(1), s.WarmHits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(2), s.SetCount)
	assert.Positive(t, s.Evictions)
	assert.Equal(t, int64(1), s.SimilarityCount)
	assert.Equal(t, int64(1), s.SimilarityMatches)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := newTestCache[int](t, WithHot(HotConfig{MaxEntries: 16}))

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				key := fmt.Sprintf("k%d", i%10)
				if err := c.Set(ctx, key, fmt.Sprintf("query %d", i%10), w*1000+i); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := c.Get(ctx, key); err != nil {
					t.Error(err)
					return
				}
				if i%10 == 0 {
					_, _ = c.FindSimilar(ctx, "query", 0.1)
				}
			}
		}()
	}
	wg.Wait()

	// Every key resolves to a value some writer stored.
	for i := range 10 {
		v, ok, err := c.Get(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v%1000%10)
	}

	matches, err := c.FindSimilar(ctx, "query", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 10)
}

func TestSetError(t *testing.T) {
	err := &SetError{Key: "k", Failed: []TierError{
		{Tier: Warm, Err: fs.ErrDiskFull},
		{Tier: Cold, Err: errors.New("boom")},
	}}
	assert.Contains(t, err.Error(), "2 tier(s) failed")
	assert.Contains(t, err.Error(), "warm")
	assert.ErrorIs(t, err, fs.ErrDiskFull)
}

func TestParseTier(t *testing.T) {
	for _, tr := range Tiers {
		got, err := ParseTier(tr.String())
		require.NoError(t, err)
		assert.Equal(t, tr, got)
	}
	got, err := ParseTier(" COLD ")
	require.NoError(t, err)
	assert.Equal(t, Cold, got)

	_, err = ParseTier("lukewarm")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestTierText(t *testing.T) {
	text, err := Warm.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warm", string(text))

	var tr Tier
	require.NoError(t, tr.UnmarshalText([]byte("cold")))
	assert.Equal(t, Cold, tr)

	_, err = Tier(7).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownTier)
}
