// Package fs provides the filesystem seam used by the disk tiers.
//
// The package defines two interfaces:
//
//   - [File]: an open file with write/sync capabilities
//   - [FileSystem]: the operations a disk tier performs (open, read, rename, remove, walk)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects I/O errors (disk full, permission denied)
//
// # Usage
//
// Disk tiers use fs.Default unless a test injects something else:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.SetLimit(0) // every write fails as if the disk were full
//
// Filesystem calls take no context.Context. Local file operations are not
// interruptible at the syscall level; callers bound them with the resource
// controller instead.
package fs
