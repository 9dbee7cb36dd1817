package snapshot_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ccview/internal/snapshot"
)

func encode(t *testing.T, write func(e *snapshot.Encoder)) []byte {
	t.Helper()
	var buf bytes.Buffer
	e := snapshot.NewEncoder(&buf)
	write(e)
	require.NoError(t, e.Flush())
	return buf.Bytes()
}

func sample(t *testing.T) []byte {
	return encode(t, func(e *snapshot.Encoder) {
		require.NoError(t, e.Open("", "/main/3"))
		require.NoError(t, e.File("a.txt", "/main/2", true, false))
		require.NoError(t, e.Open("dir", "/main/1"))
		require.NoError(t, e.File("c.sh", "/main/br/4", true, true))
		require.NoError(t, e.Open("empty", "/main/0"))
		require.NoError(t, e.Close())
		require.NoError(t, e.Close())
		require.NoError(t, e.File("bin", "/main/7", false, true))
		require.NoError(t, e.Close())
	})
}

func TestWalk_NestedAndEmptyDirectories(t *testing.T) {
	entries, err := snapshot.Collect(snapshot.Walk(bytes.NewReader(sample(t))))
	require.NoError(t, err)

	want := []snapshot.Entry{
		{Path: "", Kind: snapshot.DirOpen, Version: "/main/3"},
		{Path: "a.txt", Kind: snapshot.File, Version: "/main/2", Text: true},
		{Path: "dir", Kind: snapshot.DirOpen, Version: "/main/1"},
		{Path: "dir/c.sh", Kind: snapshot.File, Version: "/main/br/4", Text: true, Exec: true},
		{Path: "dir/empty", Kind: snapshot.DirOpen, Version: "/main/0"},
		{Path: "bin", Kind: snapshot.File, Version: "/main/7", Exec: true},
	}
	assert.Equal(t, want, entries)
	assert.Equal(t, "tx", entries[3].Flags())
	assert.Equal(t, "", entries[0].Flags())
}

func TestDecode_NodesRoundTrip(t *testing.T) {
	var kinds []snapshot.Kind
	for n, err := range snapshot.Decode(bytes.NewReader(sample(t))) {
		require.NoError(t, err)
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []snapshot.Kind{
		snapshot.DirOpen, snapshot.File, snapshot.DirOpen, snapshot.File,
		snapshot.DirOpen, snapshot.DirClose, snapshot.DirClose, snapshot.File, snapshot.DirClose,
	}, kinds)
}

func TestDecode_VersionWithoutFlags(t *testing.T) {
	data := encode(t, func(e *snapshot.Encoder) {
		require.NoError(t, e.File("f", "/main/1", false, false))
	})
	for n, err := range snapshot.Decode(bytes.NewReader(data)) {
		require.NoError(t, err)
		assert.Equal(t, "/main/1", n.Version)
		assert.False(t, n.Text)
		assert.False(t, n.Exec)
	}
}

func TestDecode_FlagsOnEmptyVersion(t *testing.T) {
	data := encode(t, func(e *snapshot.Encoder) {
		require.NoError(t, e.Open("", "/main/1"))
		require.NoError(t, e.File("f", "", true, false))
		require.NoError(t, e.File("g", "", false, false))
		require.NoError(t, e.Close())
	})
	entries, err := snapshot.Collect(snapshot.Walk(bytes.NewReader(data)))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, snapshot.Entry{Path: "f", Kind: snapshot.File, Text: true}, entries[1])
	assert.Equal(t, snapshot.Entry{Path: "g", Kind: snapshot.File}, entries[2])
}

func TestEncoder_RejectsSeparatorInFileVersion(t *testing.T) {
	var buf bytes.Buffer
	e := snapshot.NewEncoder(&buf)
	assert.ErrorIs(t, e.File("f", "/main/x|y", false, false), snapshot.ErrFlagSeparator)
	assert.ErrorIs(t, e.Flush(), snapshot.ErrFlagSeparator)

	e = snapshot.NewEncoder(&buf)
	require.NoError(t, e.Open("d|1", "/main/x|y"), "directory versions carry no flags")
}

func TestWireFormat(t *testing.T) {
	data := encode(t, func(e *snapshot.Encoder) {
		require.NoError(t, e.File("ab", "v", false, true))
	})

	want := []byte{byte(snapshot.File), 0, 0, 0, 2, 'a', 'b', 0, 0, 0, 3, 'v', '|', 'x'}
	assert.Equal(t, want, data)
}

func TestEncoder_Unbalanced(t *testing.T) {
	var buf bytes.Buffer
	e := snapshot.NewEncoder(&buf)
	require.NoError(t, e.Open("", "/main/1"))
	assert.ErrorIs(t, e.Flush(), snapshot.ErrUnbalanced)

	e = snapshot.NewEncoder(&buf)
	assert.ErrorIs(t, e.Close(), snapshot.ErrUnbalanced)
	assert.ErrorIs(t, e.File("x", "/main/1", false, false), snapshot.ErrUnbalanced, "first error sticks")
}

func TestDecode_Corrupt(t *testing.T) {
	valid := sample(t)
	long := make([]byte, 5)
	long[0] = byte(snapshot.File)
	binary.BigEndian.PutUint32(long[1:], 2<<20)

	cases := map[string][]byte{
		"unknown kind":    {7},
		"truncated":       valid[:len(valid)-3],
		"missing close":   valid[:len(valid)-1],
		"close first":     {byte(snapshot.DirClose)},
		"oversized field": long,
		"short length":    {byte(snapshot.DirOpen), 0, 0},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := snapshot.Collect(snapshot.Walk(bytes.NewReader(data)))
			assert.ErrorIs(t, err, snapshot.ErrCorrupt)
		})
	}
}

func TestWalk_EarlyStop(t *testing.T) {
	count := 0
	for _, err := range snapshot.Walk(bytes.NewReader(sample(t))) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestPairs(t *testing.T) {
	entries, err := snapshot.Collect(snapshot.Walk(bytes.NewReader(sample(t))))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"":          "/main/3",
		"a.txt":     "/main/2",
		"dir":       "/main/1",
		"dir/c.sh":  "/main/br/4",
		"dir/empty": "/main/0",
		"bin":       "/main/7",
	}, snapshot.Pairs(entries))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "file", snapshot.File.String())
	assert.Equal(t, "dir", snapshot.DirOpen.String())
	assert.Equal(t, "Kind(9)", snapshot.Kind(9).String())
}

func TestFlatten_NodeStream(t *testing.T) {
	nodes := func(yield func(snapshot.Node, error) bool) {
		for _, n := range []snapshot.Node{
			{Kind: snapshot.DirOpen, Version: "/main/1"},
			{Kind: snapshot.DirOpen, Name: "d", Version: "/main/2"},
			{Kind: snapshot.File, Name: "f", Version: "/main/3", Exec: true},
			{Kind: snapshot.DirClose},
			{Kind: snapshot.DirClose},
		} {
			if !yield(n, nil) {
				return
			}
		}
	}

	entries, err := snapshot.Collect(snapshot.Flatten(nodes))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"": "/main/1", "d": "/main/2", "d/f": "/main/3"}, snapshot.Pairs(entries))
	assert.Equal(t, "x", entries[2].Flags())
}

func TestFlatten_UnbalancedClose(t *testing.T) {
	nodes := func(yield func(snapshot.Node, error) bool) {
		yield(snapshot.Node{Kind: snapshot.DirClose}, nil)
	}
	_, err := snapshot.Collect(snapshot.Flatten(nodes))
	assert.ErrorIs(t, err, snapshot.ErrUnbalanced)
}
