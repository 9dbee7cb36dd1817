// Package fs is the disk layer of the snapshot cache and the policy
// compiler. OSFS is used in production, MemoryFS in tests, and CompressedFS
// wraps either to gzip file content.
package fs

import (
	"io"
	"os"
)

// FS is the set of filesystem operations the cache needs. Paths use the
// host separator.
type FS interface {
	// Open returns a reader over the whole file. Cache entries are read
	// start to end, then rewound once.
	Open(path string) (io.ReadSeekCloser, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error

	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	// RemoveAll deletes path and everything below it. A missing path is not
	// an error.
	RemoveAll(path string) error
	// Rename replaces newPath atomically; entries are published this way.
	Rename(oldPath, newPath string) error

	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	// CreateTempFile opens a new uniquely named file in dir. The "*" in
	// pattern is replaced by the unique part.
	CreateTempFile(dir, pattern string) (io.WriteCloser, string, error)

	IsNotExist(err error) bool
	Exists(path string) bool
	IsDir(path string) bool
}
