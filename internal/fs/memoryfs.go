package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryFS is a pure in-memory filesystem for tests or lightweight storage.
// It is safe for concurrent use.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string]memFile
	dirs  map[string]struct{}
}

type memFile struct {
	data    []byte
	modTime time.Time
}

func NewMemoryFS() *MemoryFS {
	f := &MemoryFS{
		files: make(map[string]memFile),
		dirs:  make(map[string]struct{}),
	}
	f.dirs["/"] = struct{}{}
	f.dirs["."] = struct{}{}
	return f
}

// normalize paths
func clean(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(filepath.ToSlash(p))
}

func (f *MemoryFS) ensureDirExists(p string) error {
	if _, ok := f.dirs[clean(p)]; !ok {
		return fs.ErrNotExist
	}
	return nil
}

// under reports whether p lies strictly below dir.
func under(dir, p string) bool {
	switch dir {
	case "/":
		return p != "/" && strings.HasPrefix(p, "/")
	case ".":
		return p != "." && !strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, dir+"/")
}

// FS Interface Implementation

func (f *MemoryFS) Open(p string) (io.ReadSeekCloser, error) {
	data, err := f.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &memReadSeekCloser{Reader: bytes.NewReader(data)}, nil
}

type memReadSeekCloser struct {
	*bytes.Reader
}

func (m *memReadSeekCloser) Close() error { return nil }

func (f *MemoryFS) ReadFile(p string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, ok := f.files[clean(p)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), file.data...), nil
}

func (f *MemoryFS) WriteFile(p string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(clean(p), data)
}

func (f *MemoryFS) put(p string, data []byte) error {
	dir := path.Dir(p)
	if err := f.ensureDirExists(dir); err != nil {
		return fmt.Errorf("write: dir %q does not exist: %w", dir, err)
	}
	f.files[p] = memFile{data: append([]byte(nil), data...), modTime: time.Now()}
	return nil
}

func (f *MemoryFS) MkdirAll(p string, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = clean(p)
	cur := "."
	if strings.HasPrefix(p, "/") {
		cur = "/"
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		cur = path.Join(cur, seg)
		if _, ok := f.files[cur]; ok {
			return fmt.Errorf("mkdir %q: not a directory", cur)
		}
		f.dirs[cur] = struct{}{}
	}
	return nil
}

func (f *MemoryFS) Remove(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = clean(p)
	if _, ok := f.files[p]; ok {
		delete(f.files, p)
		return nil
	}
	if _, ok := f.dirs[p]; ok {
		if f.hasChildren(p) {
			return fmt.Errorf("remove %q: directory not empty", p)
		}
		delete(f.dirs, p)
		return nil
	}
	return fs.ErrNotExist
}

// RemoveAll removes p and everything below it. A missing path is not an error.
func (f *MemoryFS) RemoveAll(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = clean(p)
	delete(f.files, p)
	for fp := range f.files {
		if under(p, fp) {
			delete(f.files, fp)
		}
	}
	for dp := range f.dirs {
		if under(p, dp) {
			delete(f.dirs, dp)
		}
	}
	if p != "/" && p != "." {
		delete(f.dirs, p)
	}
	return nil
}

func (f *MemoryFS) hasChildren(dir string) bool {
	for fp := range f.files {
		if under(dir, fp) {
			return true
		}
	}
	for dp := range f.dirs {
		if under(dir, dp) {
			return true
		}
	}
	return false
}

// Rename moves a file, replacing any existing target, or a directory with
// everything below it.
func (f *MemoryFS) Rename(oldp, newp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	oldp, newp = clean(oldp), clean(newp)
	if f.ensureDirExists(path.Dir(newp)) != nil {
		return fs.ErrNotExist
	}

	// file rename
	if file, ok := f.files[oldp]; ok {
		delete(f.files, oldp)
		f.files[newp] = file
		return nil
	}

	// dir rename
	if _, ok := f.dirs[oldp]; ok {
		for fp, file := range f.files {
			if under(oldp, fp) {
				delete(f.files, fp)
				f.files[newp+strings.TrimPrefix(fp, oldp)] = file
			}
		}
		for dp := range f.dirs {
			if under(oldp, dp) {
				delete(f.dirs, dp)
				f.dirs[newp+strings.TrimPrefix(dp, oldp)] = struct{}{}
			}
		}
		delete(f.dirs, oldp)
		f.dirs[newp] = struct{}{}
		return nil
	}

	return fs.ErrNotExist
}

func (f *MemoryFS) Stat(p string) (os.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p = clean(p)
	if file, ok := f.files[p]; ok {
		return &fakeInfo{name: path.Base(p), size: int64(len(file.data)), modTime: file.modTime}, nil
	}
	if _, ok := f.dirs[p]; ok {
		return &fakeInfo{name: path.Base(p), dir: true}, nil
	}
	return nil, fs.ErrNotExist
}

// ReadDir lists the direct children of p sorted by name.
func (f *MemoryFS) ReadDir(p string) ([]os.DirEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p = clean(p)
	if _, ok := f.dirs[p]; !ok {
		return nil, fs.ErrNotExist
	}

	var out []os.DirEntry
	seen := map[string]bool{}
	child := func(full string) (string, bool) {
		if !under(p, full) {
			return "", false
		}
		rest := strings.TrimPrefix(full, p)
		rest = strings.TrimPrefix(rest, "/")
		name, _, _ := strings.Cut(rest, "/")
		return name, name != "" && name != "." && !seen[name]
	}

	for dp := range f.dirs {
		if name, ok := child(dp); ok {
			seen[name] = true
			out = append(out, fakeDirEntry{name: name, isDir: true})
		}
	}
	for fp, file := range f.files {
		if name, ok := child(fp); ok {
			seen[name] = true
			out = append(out, fakeDirEntry{name: name, size: int64(len(file.data)), modTime: file.modTime})
		}
	}

	slices.SortFunc(out, func(a, b os.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

// CreateTempFile returns a writer whose content appears under a unique name
// in dir once it is closed. A "*" in pattern is replaced by the random part.
func (f *MemoryFS) CreateTempFile(dir, pattern string) (io.WriteCloser, string, error) {
	f.mu.RLock()
	err := f.ensureDirExists(dir)
	f.mu.RUnlock()
	if err != nil {
		return nil, "", err
	}

	id := uuid.NewString()
	name := pattern + id
	if strings.Contains(pattern, "*") {
		name = strings.Replace(pattern, "*", id, 1)
	}
	tmpName := path.Join(clean(dir), name)

	wc := &memWriteCloser{
		onClose: func(data []byte) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.put(tmpName, data)
		},
	}
	return wc, tmpName, nil
}

type memWriteCloser struct {
	buf     bytes.Buffer
	closed  bool
	onClose func([]byte) error
}

func (m *memWriteCloser) Write(p []byte) (int, error) {
	if m.closed {
		return 0, fs.ErrClosed
	}
	return m.buf.Write(p)
}

func (m *memWriteCloser) Close() error {
	if m.closed {
		return fs.ErrClosed
	}
	m.closed = true
	return m.onClose(m.buf.Bytes())
}

func (f *MemoryFS) IsNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func (f *MemoryFS) IsDir(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.dirs[clean(p)]
	return ok
}

func (f *MemoryFS) Exists(p string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p = clean(p)
	_, f1 := f.files[p]
	_, d1 := f.dirs[p]
	return f1 || d1
}

// Helpers

type fakeInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (f *fakeInfo) Name() string       { return f.name }
func (f *fakeInfo) Size() int64        { return f.size }
func (f *fakeInfo) ModTime() time.Time { return f.modTime }
func (f *fakeInfo) IsDir() bool        { return f.dir }
func (f *fakeInfo) Sys() any           { return nil }
func (f *fakeInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

type fakeDirEntry struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (d fakeDirEntry) Name() string { return d.name }
func (d fakeDirEntry) IsDir() bool  { return d.isDir }
func (d fakeDirEntry) Type() fs.FileMode {
	if d.isDir {
		return fs.ModeDir
	}
	return 0
}
func (d fakeDirEntry) Info() (os.FileInfo, error) {
	return &fakeInfo{name: d.name, size: d.size, modTime: d.modTime, dir: d.isDir}, nil
}
