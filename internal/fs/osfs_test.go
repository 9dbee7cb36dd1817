package fs_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/mmap"

	"github.com/keshon/ccview/internal/fs"
)

func TestOSFS_OpenMapsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	f, err := fs.NewOSFS().Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
}

func TestOSFS_OpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	restore := fs.GetMmapOpen()
	defer fs.SetMmapOpen(restore)
	fs.SetMmapOpen(func(string) (*mmap.ReaderAt, error) {
		t.Fatal("empty files are not mapped")
		return nil, nil
	})

	f, err := fs.NewOSFS().Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOSFS_OpenMissing(t *testing.T) {
	osfs := fs.NewOSFS()
	_, err := osfs.Open(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, osfs.IsNotExist(err))
}

func TestOSFS_OpenMmapError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	restore := fs.GetMmapOpen()
	defer fs.SetMmapOpen(restore)
	fs.SetMmapOpen(func(string) (*mmap.ReaderAt, error) { return nil, errors.New("mmap-failed") })

	_, err := fs.NewOSFS().Open(path)
	assert.EqualError(t, err, "mmap-failed")
}

func TestOSFS_CreateTempFileAndRename(t *testing.T) {
	dir := t.TempDir()
	osfs := fs.NewOSFS()

	w, name, err := osfs.CreateTempFile(dir, "entry-*.tmp")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(name))
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	final := filepath.Join(dir, "entry")
	require.NoError(t, osfs.Rename(name, final))
	data, err := osfs.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.False(t, osfs.Exists(name))
}

func TestOSFS_CreateTempFileHookError(t *testing.T) {
	restore := fs.GetCreateTemp()
	defer fs.SetCreateTemp(restore)

	fs.SetCreateTemp(func(dir, pattern string) (*os.File, error) {
		assert.Equal(t, "tmp", dir)
		assert.Equal(t, "x*", pattern)
		return nil, errors.New("tmp-failed")
	})

	_, _, err := fs.NewOSFS().CreateTempFile("tmp", "x*")
	assert.EqualError(t, err, "tmp-failed")
}

func TestOSFS_RemoveAll(t *testing.T) {
	dir := t.TempDir()
	osfs := fs.NewOSFS()
	require.NoError(t, osfs.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, osfs.WriteFile(filepath.Join(dir, "a", "b", "f"), []byte("x"), 0o644))

	require.NoError(t, osfs.RemoveAll(filepath.Join(dir, "a")))
	assert.False(t, osfs.Exists(filepath.Join(dir, "a")))
	assert.True(t, osfs.IsDir(dir))
}

func TestOSFS_Hooks(t *testing.T) {
	osfs := fs.NewOSFS()

	t.Run("stat", func(t *testing.T) {
		restore := fs.GetStat()
		defer fs.SetStat(restore)
		fs.SetStat(func(string) (os.FileInfo, error) { return nil, errors.New("stat-failed") })

		_, err := osfs.Stat("zzz")
		assert.EqualError(t, err, "stat-failed")
		assert.False(t, osfs.Exists("zzz"))
	})

	t.Run("readFile", func(t *testing.T) {
		restore := fs.GetReadFile()
		defer fs.SetReadFile(restore)
		fs.SetReadFile(func(string) ([]byte, error) { return []byte("hello"), nil })

		out, err := osfs.ReadFile("x")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(out))
	})

	t.Run("writeFile", func(t *testing.T) {
		restore := fs.GetWriteFile()
		defer fs.SetWriteFile(restore)
		called := false
		fs.SetWriteFile(func(path string, data []byte, perm os.FileMode) error {
			called = true
			assert.Equal(t, "aaa", path)
			assert.Equal(t, "bbb", string(data))
			assert.Equal(t, os.FileMode(0o644), perm)
			return nil
		})

		require.NoError(t, osfs.WriteFile("aaa", []byte("bbb"), 0o644))
		assert.True(t, called)
	})

	t.Run("rename", func(t *testing.T) {
		restore := fs.GetRename()
		defer fs.SetRename(restore)
		fs.SetRename(func(string, string) error { return errors.New("rename-failed") })

		assert.EqualError(t, osfs.Rename("a", "b"), "rename-failed")
	})

	t.Run("removeAll", func(t *testing.T) {
		restore := fs.GetRemoveAll()
		defer fs.SetRemoveAll(restore)
		var got string
		fs.SetRemoveAll(func(p string) error { got = p; return nil })

		require.NoError(t, osfs.RemoveAll("cache"))
		assert.Equal(t, "cache", got)
	})

	t.Run("isNotExist", func(t *testing.T) {
		restore := fs.GetIsNotExist()
		defer fs.SetIsNotExist(restore)
		errFake := errors.New("nope")
		fs.SetIsNotExist(func(err error) bool { return err == errFake })

		assert.True(t, osfs.IsNotExist(errFake))
	})
}
