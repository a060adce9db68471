// Package diskstat reports free space on the file system holding a directory.
package diskstat

import "errors"

// ErrUnsupported is returned on platforms without a statfs equivalent.
var ErrUnsupported = errors.New("diskstat: unsupported platform")

// Usage describes the file system containing a path.
type Usage struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// UsedFraction returns the used share of the file system in [0, 1].
func (u Usage) UsedFraction() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return 1 - float64(u.FreeBytes)/float64(u.TotalBytes)
}
