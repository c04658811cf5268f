//go:build !unix && !windows

package tokenstore

// lockFile is a no-op where advisory locks are unavailable; the in-process
// mutex still serializes writers.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
