package tier

import (
	"context"
	"errors"
)

// OpenWarm opens an uncompressed disk tier.
func OpenWarm(ctx context.Context, cfg DiskConfig) (*DiskTier, error) {
	cfg.Kind = Warm
	cfg.Compressor = nil
	return OpenDisk(ctx, cfg)
}

// OpenCold opens a compressed disk tier.
func OpenCold(ctx context.Context, cfg DiskConfig) (*DiskTier, error) {
	if cfg.Compressor == nil {
		return nil, errors.New("cold tier: compressor is required")
	}
	cfg.Kind = Cold
	return OpenDisk(ctx, cfg)
}
