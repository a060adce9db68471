package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/tiercache"
	"github.com/hupe1980/tiercache/codec"
)

// envPrefix is prepended to every environment variable, e.g. TIERCACHE_COLD_ALGORITHM.
const envPrefix = "TIERCACHE"

// Config is the CLI view of the cache settings. The hot tier only lives for
// the duration of one command and is therefore not configurable.
type Config struct {
	Directory           string     `mapstructure:"directory"`
	LogLevel            string     `mapstructure:"log_level"`
	Codec               string     `mapstructure:"codec"`
	SimilarityThreshold float64    `mapstructure:"similarity_threshold"`
	MaxConcurrentIO     int        `mapstructure:"max_concurrent_io"`
	IOLimitBytesPerSec  int64      `mapstructure:"io_limit_bytes_per_sec"`
	Warm                WarmConfig `mapstructure:"warm"`
	Cold                ColdConfig `mapstructure:"cold"`
}

// WarmConfig mirrors tiercache.WarmConfig.
type WarmConfig struct {
	Directory string        `mapstructure:"directory"`
	MaxSizeMB int64         `mapstructure:"max_size_mb"`
	TTL       time.Duration `mapstructure:"ttl"`
	Disabled  bool          `mapstructure:"disabled"`
}

// ColdConfig mirrors tiercache.ColdConfig.
type ColdConfig struct {
	Directory        string        `mapstructure:"directory"`
	MaxSizeMB        int64         `mapstructure:"max_size_mb"`
	TTL              time.Duration `mapstructure:"ttl"`
	Algorithm        string        `mapstructure:"algorithm"`
	CompressionLevel int           `mapstructure:"compression_level"`
	Disabled         bool          `mapstructure:"disabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("directory", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("codec", codec.Raw{}.Name())
	v.SetDefault("similarity_threshold", tiercache.DefaultSimilarityThreshold)
	v.SetDefault("max_concurrent_io", 0)
	v.SetDefault("io_limit_bytes_per_sec", 0)

	v.SetDefault("warm.directory", "")
	v.SetDefault("warm.max_size_mb", tiercache.DefaultWarmMaxSizeMB)
	v.SetDefault("warm.ttl", tiercache.DefaultWarmTTL)
	v.SetDefault("warm.disabled", false)

	v.SetDefault("cold.directory", "")
	v.SetDefault("cold.max_size_mb", tiercache.DefaultColdMaxSizeMB)
	v.SetDefault("cold.ttl", tiercache.DefaultColdTTL)
	v.SetDefault("cold.algorithm", "zstd")
	v.SetDefault("cold.compression_level", 0)
	v.SetDefault("cold.disabled", false)
}

// newViper returns a viper instance with defaults and environment binding.
// Nested keys map to variables with underscores: cold.max_size_mb is
// TIERCACHE_COLD_MAX_SIZE_MB.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads path (YAML, TOML or JSON by extension) when given, or
// looks for tiercache.{yaml,toml,json} in the working directory.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tiercache")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// level parses LogLevel; an empty value means warn.
func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// valueCodec returns the codec that get uses to decode values for display.
func (c *Config) valueCodec() (codec.Codec, error) {
	name := c.Codec
	if name == "" {
		name = codec.Raw{}.Name()
	}
	vc, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (known: %s)", name, strings.Join(codec.Names(), ", "))
	}
	return vc, nil
}

// options translates the config into cache options. Values are handled as
// opaque bytes so that entries written with any codec can be inspected.
func (c *Config) options(logHandler slog.Handler) []tiercache.Option {
	opts := []tiercache.Option{
		tiercache.WithCodec(codec.Raw{}),
		tiercache.WithLogger(tiercache.NewLogger(logHandler)),
		tiercache.WithSimilarityThreshold(c.SimilarityThreshold),
		tiercache.WithMaxConcurrentIO(c.MaxConcurrentIO),
		tiercache.WithIOLimit(c.IOLimitBytesPerSec),
		tiercache.WithWarm(tiercache.WarmConfig{
			Directory: c.Warm.Directory,
			MaxSizeMB: c.Warm.MaxSizeMB,
			TTL:       c.Warm.TTL,
			Disabled:  c.Warm.Disabled,
		}),
		tiercache.WithCold(tiercache.ColdConfig{
			Directory:        c.Cold.Directory,
			MaxSizeMB:        c.Cold.MaxSizeMB,
			TTL:              c.Cold.TTL,
			Algorithm:        c.Cold.Algorithm,
			CompressionLevel: c.Cold.CompressionLevel,
			Disabled:         c.Cold.Disabled,
		}),
	}
	if c.Directory != "" {
		opts = append(opts, tiercache.WithDirectory(c.Directory))
	}
	return opts
}
