//go:build unix

package diskstat

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Stat returns usage for the file system containing path. FreeBytes counts
// only blocks available to unprivileged users.
func Stat(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("diskstat: statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize) //nolint:gosec // block size is never negative
	return Usage{
		TotalBytes: uint64(st.Blocks) * bsize,
		FreeBytes:  uint64(st.Bavail) * bsize,
	}, nil
}
