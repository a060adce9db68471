// Package resource bounds the disk I/O issued by the Warm and Cold tiers.
//
// A Controller combines two limits:
//
//   - Concurrency: a weighted semaphore caps how many file reads/writes run at once
//
//   - Bandwidth: a token bucket caps bytes per second written to disk
//
//     rc := resource.NewController(resource.Config{
//     MaxConcurrentIO:    8,
//     IOLimitBytesPerSec: 64 << 20, // 64 MiB/s
//     })
//
//     release, err := rc.AcquireIO(ctx, len(frame))
//     if err != nil {
//     return err
//     }
//     defer release()
//
// All methods handle a nil Controller as "unlimited".
package resource
