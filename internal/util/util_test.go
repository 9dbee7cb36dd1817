package util_test

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ccview/internal/fs"
	"github.com/keshon/ccview/internal/util"
)

func TestWriteAtomic_Publishes(t *testing.T) {
	m := fs.NewMemoryFS()

	err := util.WriteAtomic(m, "/cache/k/1", func(w io.Writer) error {
		_, err := w.Write([]byte("payload"))
		return err
	})
	require.NoError(t, err)

	data, err := m.ReadFile("/cache/k/1")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := m.ReadDir("/cache/k")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}

func TestWriteAtomic_FailedWriteLeavesNothing(t *testing.T) {
	m := fs.NewMemoryFS()
	boom := errors.New("boom")

	err := util.WriteAtomic(m, "/cache/k/1", func(w io.Writer) error {
		w.Write([]byte("partial"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Exists("/cache/k/1"))

	entries, err := m.ReadDir("/cache/k")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteReadJSON(t *testing.T) {
	m := fs.NewMemoryFS()
	type meta struct {
		Root        string `json:"root"`
		Fingerprint string `json:"fingerprint"`
	}

	require.NoError(t, util.WriteJSON(m, "/g/generation.json", meta{Root: "/vobs", Fingerprint: "abc"}))

	var got meta
	require.NoError(t, util.ReadJSON(m, "/g/generation.json", &got))
	assert.Equal(t, meta{Root: "/vobs", Fingerprint: "abc"}, got)

	assert.True(t, m.IsNotExist(util.ReadJSON(m, "/g/missing.json", &got)))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, util.SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Empty(t, util.SortedKeys(map[string]bool{}))
}

func TestParallel(t *testing.T) {
	var sum atomic.Int64
	err := util.Parallel([]int{1, 2, 3, 4, 5}, 2, func(n int) error {
		sum.Add(int64(n))
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 15, sum.Load())

	boom := errors.New("boom")
	err = util.Parallel([]int{1, 2, 3}, 0, func(n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, util.Parallel(nil, 4, func(int) error { return errors.New("unused") }))
}
