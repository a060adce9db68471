package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConcurrentIO is used when Config.MaxConcurrentIO is not positive.
const DefaultMaxConcurrentIO = 16

// Config holds resource limits.
type Config struct {
	// MaxConcurrentIO is the maximum number of disk operations in flight.
	MaxConcurrentIO int64

	// IOLimitBytesPerSec is the maximum write throughput. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages disk I/O concurrency and bandwidth.
type Controller struct {
	cfg Config

	ioSem     *semaphore.Weighted
	ioLimiter *rate.Limiter

	inFlight atomic.Int64
	bytes    atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentIO <= 0 {
		cfg.MaxConcurrentIO = DefaultMaxConcurrentIO
	}

	c := &Controller{
		cfg:   cfg,
		ioSem: semaphore.NewWeighted(cfg.MaxConcurrentIO),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireIO reserves an I/O slot and, when bytes > 0, waits for bandwidth.
// The returned release func must be called exactly once.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	if err := c.ioSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if bytes > 0 && c.ioLimiter != nil {
		// A single frame larger than the burst would never be admitted.
		n := bytes
		if b := c.ioLimiter.Burst(); n > b {
			n = b
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			c.ioSem.Release(1)
			return nil, err
		}
	}

	c.inFlight.Add(1)
	c.bytes.Add(int64(max(bytes, 0)))

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.inFlight.Add(-1)
			c.ioSem.Release(1)
		}
	}, nil
}

// TryAcquireIO reserves an I/O slot without blocking and without consuming bandwidth.
func (c *Controller) TryAcquireIO() (func(), bool) {
	if c == nil {
		return func() {}, true
	}
	if !c.ioSem.TryAcquire(1) {
		return nil, false
	}
	c.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.inFlight.Add(-1)
			c.ioSem.Release(1)
		}
	}, true
}

// InFlight returns the number of I/O operations currently holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// BytesAdmitted returns the total bytes admitted through AcquireIO.
func (c *Controller) BytesAdmitted() int64 {
	if c == nil {
		return 0
	}
	return c.bytes.Load()
}

// MaxConcurrentIO returns the configured concurrency limit.
func (c *Controller) MaxConcurrentIO() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MaxConcurrentIO
}
