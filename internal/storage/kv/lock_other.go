//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris || windows)

package kv

// lockFile is a no-op here; FileStore still serializes writers within the process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
