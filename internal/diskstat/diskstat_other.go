//go:build !unix

package diskstat

// Stat is not implemented on this platform.
func Stat(string) (Usage, error) { return Usage{}, ErrUnsupported }
