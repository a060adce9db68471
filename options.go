package tiercache

import (
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/tiercache/codec"
	"github.com/hupe1980/tiercache/internal/fs"
)

type options struct {
	hot  HotConfig
	warm WarmConfig
	cold ColdConfig
	root string

	similarityThreshold float64
	similarityDetection bool

	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	tracerProvider   trace.TracerProvider

	ioLimit         int64
	maxConcurrentIO int
	health          HealthThresholds

	clock func() time.Time
	fs    fs.FileSystem
}

// Option configures a Cache.
type Option func(*options)

// WithHot configures the in-memory tier.
func WithHot(cfg HotConfig) Option {
	return func(o *options) {
		o.hot = cfg
	}
}

// WithWarm configures the uncompressed disk tier.
func WithWarm(cfg WarmConfig) Option {
	return func(o *options) {
		o.warm = cfg
	}
}

// WithCold configures the compressed disk tier.
func WithCold(cfg ColdConfig) Option {
	return func(o *options) {
		o.cold = cfg
	}
}

// WithDirectory sets the root directory for disk tiers that have no directory
// of their own: Warm uses <root>/warm and Cold uses <root>/cold.
//
// Example:
//
//	c, _ := tiercache.New[string](
//	    tiercache.WithDirectory("./cache"),
//	    tiercache.WithCold(tiercache.ColdConfig{Algorithm: "lz4"}),
//	)
func WithDirectory(root string) Option {
	return func(o *options) {
		o.root = root
	}
}

// WithSimilarityThreshold sets the threshold used by FindSimilar and
// FindBestMatch when they are called with a negative threshold.
func WithSimilarityThreshold(threshold float64) Option {
	return func(o *options) {
		o.similarityThreshold = threshold
	}
}

// WithSimilarityDetection enables or disables FindSimilar and FindBestMatch.
// Disabled, both return no matches.
func WithSimilarityDetection(enabled bool) Option {
	return func(o *options) {
		o.similarityDetection = enabled
	}
}

// WithCodec configures how values are turned into bytes.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &tiercache.BasicMetricsCollector{}
//	c, _ := tiercache.New[string](tiercache.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Hits: %d, Misses: %d\n", stats.HotHits+stats.WarmHits+stats.ColdHits, stats.Misses)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := tiercache.NewJSONLogger(slog.LevelInfo)
//	c, _ := tiercache.New[string](tiercache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithIOLimit caps disk tier throughput in bytes per second. Zero disables the cap.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMaxConcurrentIO bounds the number of disk reads and writes in flight.
func WithMaxConcurrentIO(n int) Option {
	return func(o *options) {
		o.maxConcurrentIO = n
	}
}

// WithHealthThresholds overrides the thresholds used by Health.
func WithHealthThresholds(t HealthThresholds) Option {
	return func(o *options) {
		o.health = t
	}
}

func withClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		similarityThreshold: DefaultSimilarityThreshold,
		similarityDetection: true,
		codec:               codec.Default,
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
		health:              DefaultHealthThresholds(),
		clock:               time.Now,
		fs:                  fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.root == "" {
		o.root = defaultRoot()
	}
	o.hot = o.hot.withDefaults()
	o.warm = o.warm.withDefaults(o.root)
	o.cold = o.cold.withDefaults(o.root)
	return o
}

func (o options) validate() error {
	if err := o.hot.validate(); err != nil {
		return err
	}
	if !o.warm.Disabled {
		if err := o.warm.validate(); err != nil {
			return err
		}
	}
	if !o.cold.Disabled {
		if err := o.cold.validate(); err != nil {
			return err
		}
	}
	if !o.warm.Disabled && !o.cold.Disabled && filepath.Clean(o.warm.Directory) == filepath.Clean(o.cold.Directory) {
		return &ConfigError{Field: "cold.directory", Reason: "must differ from warm.directory"}
	}
	if o.similarityThreshold < 0 || o.similarityThreshold > 1 {
		return &ConfigError{Field: "similarityThreshold", Reason: "must be within [0, 1]"}
	}
	if o.ioLimit < 0 {
		return &ConfigError{Field: "ioLimit", Reason: "must not be negative"}
	}
	if o.maxConcurrentIO < 0 {
		return &ConfigError{Field: "maxConcurrentIO", Reason: "must not be negative"}
	}
	return o.health.validate()
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl [3]time.Duration
}

// WithTTL overrides the TTL of one tier for this Set. It takes precedence
// over the tier's configured TTL. Values <= 0 are ignored.
func WithTTL(t Tier, ttl time.Duration) SetOption {
	return func(o *setOptions) {
		if t.Valid() && ttl > 0 {
			o.ttl[t] = ttl
		}
	}
}

// WithTTLs overrides the TTL of every tier for this Set. Values <= 0 keep the
// tier's configured TTL.
func WithTTLs(hot, warm, cold time.Duration) SetOption {
	return func(o *setOptions) {
		WithTTL(Hot, hot)(o)
		WithTTL(Warm, warm)(o)
		WithTTL(Cold, cold)(o)
	}
}
