package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tiercache/codec"
	"github.com/hupe1980/tiercache/internal/compress"
	"github.com/hupe1980/tiercache/internal/diskstat"
	"github.com/hupe1980/tiercache/internal/entry"
	"github.com/hupe1980/tiercache/internal/keygen"
	"github.com/hupe1980/tiercache/internal/resource"
	"github.com/hupe1980/tiercache/internal/similarity"
	"github.com/hupe1980/tiercache/internal/tier"
)

// Match is a cached value whose query text is similar to a search text.
type Match[T any] struct {
	Key        string
	QueryText  string
	Similarity float64
	// Tier is the fastest tier the value was read from.
	Tier  Tier
	Value T
}

// Cache is a three-tier cache of values of type T.
// It is safe for concurrent use.
type Cache[T any] struct {
	hot   *tier.HotTier
	warm  *tier.DiskTier
	cold  *tier.DiskTier
	tiers []tier.Tier // enabled tiers, fastest first

	index   *similarity.Index
	codec   codec.Codec
	logger  *Logger
	metrics MetricsCollector
	tracer  trace.Tracer
	io      *resource.Controller

	threshold float64
	detection bool
	health    HealthThresholds
	dirs      map[Tier]string
	statfs    func(string) (diskstat.Usage, error)
	now       func() time.Time

	keys   *keyStripes
	closed atomic.Bool
	counters
}

// New creates a cache. Warm and Cold tiers are opened (and their directories
// created) immediately; entries already on disk that have not expired become
// visible to Get and FindSimilar.
func New[T any](optFns ...Option) (*Cache[T], error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()

	c := &Cache[T]{
		index:     similarity.New(),
		codec:     o.codec,
		logger:    o.logger,
		metrics:   o.metricsCollector,
		tracer:    o.tracerProvider.Tracer(tracerName),
		threshold: o.similarityThreshold,
		detection: o.similarityDetection,
		health:    o.health,
		dirs:      make(map[Tier]string),
		keys:      newKeyStripes(),
		statfs:    diskstat.Stat,
		now:       o.clock,
		io: resource.NewController(resource.Config{
			MaxConcurrentIO:    int64(o.maxConcurrentIO),
			IOLimitBytesPerSec: o.ioLimit,
		}),
	}

	listener := &indexListener{index: c.index, metrics: c.metrics, logger: c.logger}

	hot, err := tier.NewHot(tier.HotConfig{
		MaxEntries:   o.hot.MaxEntries,
		MaxSizeBytes: o.hot.MaxSizeBytes,
		TTL:          o.hot.TTL,
		Listener:     listener,
		Clock:        o.clock,
	})
	if err != nil {
		return nil, err
	}
	c.hot = hot
	c.tiers = append(c.tiers, hot)

	if !o.warm.Disabled {
		warm, err := tier.OpenWarm(ctx, tier.DiskConfig{
			Dir:          o.warm.Directory,
			MaxSizeBytes: mb(o.warm.MaxSizeMB),
			TTL:          o.warm.TTL,
			FS:           o.fs,
			Resource:     c.io,
			Listener:     listener,
			Clock:        o.clock,
		})
		if err != nil {
			c.logger.LogRecovery(ctx, Warm, 0, 0, err)
			return nil, err
		}
		c.logRecovery(ctx, Warm, warm.Recovery())
		c.warm = warm
		c.tiers = append(c.tiers, warm)
		c.dirs[Warm] = warm.Dir()
	}

	if !o.cold.Disabled {
		comp, err := compress.New(compress.Algorithm(o.cold.Algorithm), o.cold.CompressionLevel)
		if err != nil {
			return nil, &ConfigError{Field: "cold.algorithm", Reason: err.Error()}
		}
		cold, err := tier.OpenCold(ctx, tier.DiskConfig{
			Dir:          o.cold.Directory,
			MaxSizeBytes: mb(o.cold.MaxSizeMB),
			TTL:          o.cold.TTL,
			Compressor:   comp,
			FS:           o.fs,
			Resource:     c.io,
			Listener:     listener,
			Clock:        o.clock,
		})
		if err != nil {
			c.logger.LogRecovery(ctx, Cold, 0, 0, err)
			return nil, err
		}
		c.logRecovery(ctx, Cold, cold.Recovery())
		c.cold = cold
		c.tiers = append(c.tiers, cold)
		c.dirs[Cold] = cold.Dir()
	}

	return c, nil
}

func (c *Cache[T]) logRecovery(ctx context.Context, t Tier, r tier.Recovery) {
	c.logger.LogRecovery(ctx, t, r.Loaded, r.Expired+r.Corrupted+r.TempFiles+r.Evicted, nil)
}

// GenerateKey derives the cache key for a (query, namespace, category)
// triple. Query text is case-folded and whitespace-collapsed first.
func GenerateKey(query, namespace, category string) string {
	return keygen.Generate(query, namespace, category)
}

// Get returns the value stored under key from the fastest tier holding it.
//
// Get is not read-only: a Warm hit is copied into Hot, and a Cold hit into
// Warm and Hot. A failed promotion is logged and does not fail the Get.
//
// Misses, expired entries and corrupted files are reported as (zero, false,
// nil). An error is returned only when no tier answered and at least one
// tier failed with an I/O error, or when the stored value cannot be decoded.
// An undecodable value is removed from every tier and counted as an overall
// miss; the tier that returned it still counts a hit.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := c.checkKey(key); err != nil {
		return zero, false, err
	}

	ctx, span := c.startSpan(ctx, "Get", attrKey.String(key))
	start := time.Now()

	gen := c.keys.snapshot(key)
	e, from, err := c.fetch(ctx, key)

	var value T
	if e != nil {
		if derr := c.codec.Unmarshal(e.Value, &value); derr != nil {
			err = fmt.Errorf("decode %s from %s tier: %w", key, from, derr)
			e, value = nil, zero
			if _, rerr := c.remove(ctx, key); rerr != nil {
				c.logger.WarnContext(ctx, "failed to remove undecodable entry", "key", key, "error", rerr)
			}
		}
	}

	found := e != nil
	if found {
		c.hits.Add(1)
		if from == Warm {
			c.warmHits.Add(1)
		}
		c.promote(ctx, e, from, gen)
		span.SetAttributes(attrTier.String(from.String()))
	} else {
		c.misses.Add(1)
	}
	span.SetAttributes(attrHit.Bool(found))

	c.metrics.RecordGet(from, found, time.Since(start))
	c.logger.LogGet(ctx, key, from, found, err)
	endSpan(span, err)

	return value, found, err
}

// fetch walks the tiers fastest first. Tier failures fall through to the
// next tier and are returned only if nothing was found.
func (c *Cache[T]) fetch(ctx context.Context, key string) (*entry.Entry, Tier, error) {
	var errs []error
	for _, t := range c.tiers {
		e, ok, err := t.Get(ctx, key)
		if err != nil {
			errs = append(errs, TierError{Tier: Tier(t.Kind()), Err: err})
			continue
		}
		if ok {
			if len(errs) > 0 {
				c.logger.WarnContext(ctx, "faster tier failed before hit", "key", key, "error", errors.Join(errs...))
			}
			return e, Tier(t.Kind()), nil
		}
	}
	return nil, Hot, errors.Join(errs...)
}

// promote copies e into every enabled tier faster than from. The copy never
// outlives the source entry or the target tier's TTL. Nothing is written if
// the key was written since gen was sampled: e may be older than what the
// tiers hold now.
func (c *Cache[T]) promote(ctx context.Context, e *entry.Entry, from Tier, gen uint64) {
	if from == Hot {
		return
	}
	applied := c.keys.writeIfUnchanged(e.Key, gen, func() {
		now := c.now()
		for _, t := range c.tiers {
			to := Tier(t.Kind())
			if to >= from {
				break
			}
			err := t.Set(ctx, e.WithExpiry(now, t.TTL()))
			c.logger.LogPromotion(ctx, e.Key, from, to, err)
			if err != nil {
				c.promotionFailures.Add(1)
				continue
			}
			c.promotions.Add(1)
			c.tierWrites.Add(1)
		}
	})
	if !applied {
		c.logger.DebugContext(ctx, "promotion skipped, key written concurrently", "key", e.Key, "from", from.String())
	}
}

// Set stores value under key in every enabled tier. queryText is kept for
// similarity lookups.
//
// Tiers are written independently: Hot first, then Warm and Cold
// concurrently. If any tier fails, the others still hold the new value, the
// failed tiers no longer hold the key, and Set returns a *SetError.
// Concurrent writers of the same key are serialized, so every tier ends up
// with the value of the same writer.
func (c *Cache[T]) Set(ctx context.Context, key, queryText string, value T, opts ...SetOption) (err error) {
	if err := c.checkKey(key); err != nil {
		return err
	}

	ctx, span := c.startSpan(ctx, "Set", attrKey.String(key))
	start := time.Now()
	defer func() { endSpan(span, err) }()

	data, err := c.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s with %s: %w", key, c.codec.Name(), err)
	}

	var so setOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&so)
		}
	}

	errs := make([]error, len(c.tiers))
	var failed []TierError

	c.keys.write(key, func() {
		now := c.now()

		var g errgroup.Group
		for i, t := range c.tiers {
			ttl := t.TTL()
			if d := so.ttl[t.Kind()]; d > 0 {
				ttl = d
			}
			e := entry.New(key, queryText, data, now, ttl)

			if t.Kind() == tier.Hot {
				errs[i] = t.Set(ctx, e)
				continue
			}
			g.Go(func() error {
				errs[i] = t.Set(ctx, e)
				return nil
			})
		}
		_ = g.Wait()

		for i, t := range c.tiers {
			if errs[i] == nil {
				c.tierWrites.Add(1)
				continue
			}
			// Drop any older value so tiers never disagree.
			_, _ = t.Delete(ctx, key)
			failed = append(failed, TierError{Tier: Tier(t.Kind()), Err: translateError(errs[i])})
		}
	})

	c.sets.Add(1)

	var failedTiers []Tier
	if len(failed) > 0 {
		c.setFailures.Add(1)
		se := &SetError{Key: key, Failed: failed}
		failedTiers = se.FailedTiers()
		names := make([]string, len(failedTiers))
		for i, t := range failedTiers {
			names[i] = t.String()
		}
		span.SetAttributes(attrFailedTiers.StringSlice(names))
		err = se
	}

	c.metrics.RecordSet(failedTiers, time.Since(start))
	c.logger.LogSet(ctx, key, err)

	return err
}

// Lookup is Get with the key derived by GenerateKey.
func (c *Cache[T]) Lookup(ctx context.Context, query, namespace, category string) (T, bool, error) {
	return c.Get(ctx, GenerateKey(query, namespace, category))
}

// Store is Set with the key derived by GenerateKey. query doubles as the
// similarity text. It returns the key.
func (c *Cache[T]) Store(ctx context.Context, query, namespace, category string, value T, opts ...SetOption) (string, error) {
	key := GenerateKey(query, namespace, category)
	return key, c.Set(ctx, key, query, value, opts...)
}

// Delete removes key from every tier and reports whether any tier held it.
func (c *Cache[T]) Delete(ctx context.Context, key string) (bool, error) {
	if err := c.checkKey(key); err != nil {
		return false, err
	}
	return c.remove(ctx, key)
}

func (c *Cache[T]) remove(ctx context.Context, key string) (bool, error) {
	var (
		removed bool
		errs    []error
	)
	c.keys.write(key, func() {
		for _, t := range c.tiers {
			ok, err := t.Delete(ctx, key)
			if err != nil {
				errs = append(errs, TierError{Tier: Tier(t.Kind()), Err: err})
				continue
			}
			removed = removed || ok
		}
	})
	return removed, errors.Join(errs...)
}

// Clear drops every entry of the given tiers, or of all tiers when none are
// given. Disabled tiers are skipped. Counters other than entry counts and
// sizes are kept.
func (c *Cache[T]) Clear(ctx context.Context, tiers ...Tier) (err error) {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(tiers) == 0 {
		tiers = Tiers
	}
	for _, t := range tiers {
		if !t.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknownTier, int(t))
		}
	}

	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.String()
	}
	ctx, span := c.startSpan(ctx, "Clear", attrTier.StringSlice(names))
	defer func() { endSpan(span, err) }()

	var errs []error
	c.keys.writeAll(func() {
		for _, t := range tiers {
			tr := c.byTier(t)
			if tr == nil {
				continue
			}
			if cerr := tr.Clear(ctx); cerr != nil {
				errs = append(errs, TierError{Tier: t, Err: cerr})
				continue
			}
			c.logger.InfoContext(ctx, "tier cleared", "tier", t.String())
		}
	})
	return errors.Join(errs...)
}

// FindSimilar returns every live entry whose query text scores at least
// threshold against text, best first; ties are ordered by key. A negative
// threshold selects the configured default. Values are read without
// promotion and without touching hit counters.
func (c *Cache[T]) FindSimilar(ctx context.Context, text string, threshold float64) (_ []Match[T], err error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := c.startSpan(ctx, "FindSimilar", attrThreshold.Float64(threshold))
	defer func() { endSpan(span, err) }()

	matches := c.similar(ctx, text, threshold, 0)
	span.SetAttributes(attrMatches.Int(len(matches)))
	return matches, nil
}

// FindBestMatch returns the highest scoring match of FindSimilar.
func (c *Cache[T]) FindBestMatch(ctx context.Context, text string, threshold float64) (_ Match[T], _ bool, err error) {
	if c.closed.Load() {
		return Match[T]{}, false, ErrClosed
	}

	ctx, span := c.startSpan(ctx, "FindBestMatch", attrThreshold.Float64(threshold))
	defer func() { endSpan(span, err) }()

	matches := c.similar(ctx, text, threshold, 1)
	span.SetAttributes(attrMatches.Int(len(matches)))
	if len(matches) == 0 {
		return Match[T]{}, false, nil
	}
	return matches[0], true, nil
}

// similar returns up to limit matches (all when limit is 0) and counts one
// detection when it finds any.
func (c *Cache[T]) similar(ctx context.Context, text string, threshold float64, limit int) []Match[T] {
	if !c.detection {
		return nil
	}
	if threshold < 0 {
		threshold = c.threshold
	}

	start := time.Now()

	var out []Match[T]
	for _, cand := range c.index.Search(text, threshold, c.now()) {
		m, ok := c.load(ctx, cand)
		if !ok {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	if len(out) > 0 {
		c.similarityDetections.Add(1)
	}
	c.metrics.RecordSimilarity(len(out), time.Since(start))
	return out
}

// load reads a candidate's value from the fastest tier still holding it.
func (c *Cache[T]) load(ctx context.Context, cand similarity.Candidate) (Match[T], bool) {
	for _, k := range cand.Tiers {
		tr := c.byTier(Tier(k))
		if tr == nil {
			continue
		}
		e, ok := tr.Peek(ctx, cand.Key)
		if !ok {
			continue
		}
		var v T
		if err := c.codec.Unmarshal(e.Value, &v); err != nil {
			c.logger.WarnContext(ctx, "decode similar entry failed", "key", cand.Key, "error", err)
			return Match[T]{}, false
		}
		return Match[T]{
			Key:        cand.Key,
			QueryText:  e.QueryText,
			Similarity: cand.Similarity,
			Tier:       Tier(k),
			Value:      v,
		}, true
	}
	return Match[T]{}, false
}

// Stats returns a snapshot of all counters.
func (c *Cache[T]) Stats() Stats {
	s := Stats{
		Hot:         tierStats(c.hot.Stats()),
		IndexedKeys: c.index.Len(),
	}
	if c.warm != nil {
		s.Warm = tierStats(c.warm.Stats())
	}
	if c.cold != nil {
		s.Cold = tierStats(c.cold.Stats())
	}

	hits, misses := c.hits.Load(), c.misses.Load()
	s.Overall = OverallStats{
		Hits:                 hits,
		Misses:               misses,
		HitRate:              ratio(hits, hits+misses),
		WarmHitRate:          ratio(c.warmHits.Load(), hits+misses),
		SimilarityDetections: c.similarityDetections.Load(),
		Promotions:           c.promotions.Load(),
		PromotionFailures:    c.promotionFailures.Load(),
		Sets:                 c.sets.Load(),
		SetFailures:          c.setFailures.Load(),
		TierWrites:           c.tierWrites.Load(),
		Evictions:            s.Hot.Evictions + s.Warm.Evictions + s.Cold.Evictions,
	}
	return s
}

// Health judges Stats against the configured thresholds and checks free
// space under each disk tier directory.
func (c *Cache[T]) Health() Health {
	return assessHealth(c.Stats(), c.health, c.dirs, c.statfs)
}

// Directory returns the directory of a disk tier, or "" for Hot and
// disabled tiers.
func (c *Cache[T]) Directory(t Tier) string { return c.dirs[t] }

// Close marks the cache closed. Later calls other than Stats and Health
// return ErrClosed. Data on disk is left in place.
func (c *Cache[T]) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.logger.Info("cache closed", "hits", c.hits.Load(), "misses", c.misses.Load())
	}
	return nil
}

func (c *Cache[T]) checkKey(key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !keygen.Valid(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (c *Cache[T]) byTier(t Tier) tier.Tier {
	switch t {
	case Hot:
		return c.hot
	case Warm:
		if c.warm != nil {
			return c.warm
		}
	case Cold:
		if c.cold != nil {
			return c.cold
		}
	}
	return nil
}
