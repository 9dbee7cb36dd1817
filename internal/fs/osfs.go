package fs

import (
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// OSFS is the production implementation of FS backed by the local disk.
type OSFS struct{}

func NewOSFS() *OSFS {
	return &OSFS{}
}

// Open maps the file read-only. Empty files cannot be mapped and are opened
// directly.
func (r *OSFS) Open(path string) (io.ReadSeekCloser, error) {
	fi, err := stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return open(path)
	}
	ra, err := mmapOpen(path)
	if err != nil {
		return nil, err
	}
	return &mappedFile{SectionReader: io.NewSectionReader(ra, 0, int64(ra.Len())), ra: ra}, nil
}

type mappedFile struct {
	*io.SectionReader
	ra *mmap.ReaderAt
}

func (m *mappedFile) Close() error { return m.ra.Close() }

func (r *OSFS) Stat(path string) (os.FileInfo, error) {
	return stat(path)
}

func (r *OSFS) ReadFile(path string) ([]byte, error) {
	return readFile(path)
}

func (r *OSFS) ReadDir(path string) ([]os.DirEntry, error) {
	return readDir(path)
}

func (r *OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return writeFile(path, data, perm)
}

func (r *OSFS) MkdirAll(path string, perm os.FileMode) error {
	return mkdirAll(path, perm)
}

func (r *OSFS) Remove(path string) error {
	return remove(path)
}

func (r *OSFS) RemoveAll(path string) error {
	return removeAll(path)
}

func (r *OSFS) Rename(oldPath, newPath string) error {
	return rename(oldPath, newPath)
}

func (r *OSFS) CreateTempFile(dir, pattern string) (io.WriteCloser, string, error) {
	f, err := createTemp(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

func (r *OSFS) IsNotExist(err error) bool {
	return isNotExist(err)
}

func (r *OSFS) IsDir(path string) bool {
	return isDir(path)
}

func (r *OSFS) Exists(path string) bool {
	return exists(path)
}
