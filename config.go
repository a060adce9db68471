package tiercache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/tiercache/internal/compress"
)

const (
	DefaultHotMaxEntries   = 1000
	DefaultHotMaxSizeBytes = 100 << 20
	DefaultHotTTL          = time.Hour

	DefaultWarmMaxSizeMB = 500
	DefaultWarmTTL       = 24 * time.Hour

	DefaultColdMaxSizeMB = 2048
	DefaultColdTTL       = 7 * 24 * time.Hour

	DefaultSimilarityThreshold = 0.8
)

// HotConfig configures the in-memory tier. Zero fields take defaults.
type HotConfig struct {
	MaxEntries   int
	MaxSizeBytes int64
	TTL          time.Duration
}

// WarmConfig configures the uncompressed disk tier. Zero fields take defaults.
type WarmConfig struct {
	Directory string
	MaxSizeMB int64
	TTL       time.Duration
	Disabled  bool
}

// ColdConfig configures the compressed disk tier. Zero fields take defaults.
type ColdConfig struct {
	Directory string
	MaxSizeMB int64
	TTL       time.Duration
	// CompressionLevel is 1..22 for zstd and 1..9 for lz4 HC. Zero selects
	// zstd level 3 or the fast lz4 compressor.
	CompressionLevel int
	// Algorithm is "zstd" (default) or "lz4".
	Algorithm string
	Disabled  bool
}

func (c HotConfig) withDefaults() HotConfig {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultHotMaxEntries
	}
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = DefaultHotMaxSizeBytes
	}
	if c.TTL == 0 {
		c.TTL = DefaultHotTTL
	}
	return c
}

func (c HotConfig) validate() error {
	switch {
	case c.MaxEntries < 0:
		return &ConfigError{Field: "hot.maxEntries", Reason: "must not be negative"}
	case c.MaxSizeBytes < 0:
		return &ConfigError{Field: "hot.maxSizeBytes", Reason: "must not be negative"}
	case c.TTL < 0:
		return &ConfigError{Field: "hot.ttl", Reason: "must not be negative"}
	}
	return nil
}

func (c WarmConfig) withDefaults(root string) WarmConfig {
	if c.Directory == "" {
		c.Directory = filepath.Join(root, "warm")
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = DefaultWarmMaxSizeMB
	}
	if c.TTL == 0 {
		c.TTL = DefaultWarmTTL
	}
	return c
}

func (c WarmConfig) validate() error {
	switch {
	case c.MaxSizeMB < 0:
		return &ConfigError{Field: "warm.maxSizeMB", Reason: "must not be negative"}
	case c.TTL < 0:
		return &ConfigError{Field: "warm.ttl", Reason: "must not be negative"}
	}
	return nil
}

func (c ColdConfig) withDefaults(root string) ColdConfig {
	if c.Directory == "" {
		c.Directory = filepath.Join(root, "cold")
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = DefaultColdMaxSizeMB
	}
	if c.TTL == 0 {
		c.TTL = DefaultColdTTL
	}
	if c.Algorithm == "" {
		c.Algorithm = string(compress.ZSTD)
	}
	if c.CompressionLevel == 0 && c.Algorithm == string(compress.ZSTD) {
		c.CompressionLevel = compress.DefaultLevel
	}
	return c
}

func (c ColdConfig) validate() error {
	switch {
	case c.MaxSizeMB < 0:
		return &ConfigError{Field: "cold.maxSizeMB", Reason: "must not be negative"}
	case c.TTL < 0:
		return &ConfigError{Field: "cold.ttl", Reason: "must not be negative"}
	}
	switch compress.Algorithm(c.Algorithm) {
	case "", compress.ZSTD, compress.LZ4:
	default:
		return &ConfigError{Field: "cold.algorithm", Reason: "must be zstd or lz4"}
	}
	if c.CompressionLevel < 0 {
		return &ConfigError{Field: "cold.compressionLevel", Reason: "must not be negative"}
	}
	if c.CompressionLevel > 0 && c.Algorithm != "" {
		if err := compress.ValidateLevel(compress.Algorithm(c.Algorithm), c.CompressionLevel); err != nil {
			return &ConfigError{Field: "cold.compressionLevel", Reason: err.Error()}
		}
	}
	return nil
}

// defaultRoot is used when neither WithDirectory nor a tier directory is set.
func defaultRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tiercache")
	}
	return filepath.Join(os.TempDir(), "tiercache")
}

func mb(n int64) int64 { return n << 20 }
