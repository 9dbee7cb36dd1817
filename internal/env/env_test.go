package env_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ccview/internal/env"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in     string
		branch string
		seq    int
		ok     bool
	}{
		{"/main/3", "/main", 3, true},
		{`\main\br\0`, "/main/br", 0, true},
		{"/main/LATEST", "", 0, false},
		{"/main/br", "", 0, false},
		{"7", "", 0, false},
	}
	for _, c := range cases {
		branch, seq, ok := env.ParseVersion(c.in)
		assert.Equalf(t, c.ok, ok, "ParseVersion(%q)", c.in)
		if c.ok {
			assert.Equal(t, c.branch, branch)
			assert.Equal(t, c.seq, seq)
		}
	}
}

func TestHistoryEvent_Classification(t *testing.T) {
	dir := env.HistoryEvent{Operation: env.OpCheckin, Event: env.EventCreateDirVersion, ObjectVersion: "/main/4"}
	assert.True(t, dir.IsDirectoryCheckin())
	assert.False(t, dir.IsFileCheckin())
	assert.Equal(t, 4, dir.Seq())
	assert.Equal(t, "/main", dir.Branch())

	file := env.HistoryEvent{Operation: env.OpCheckin, Event: env.EventCreateVersion}
	assert.True(t, file.IsFileCheckin())
	assert.Equal(t, -1, file.Seq())

	assert.True(t, env.HistoryEvent{Operation: env.OpMkBranch, Event: env.EventCreateBranch}.IsBranchCreation())

	rm := env.HistoryEvent{Operation: env.OpRmVer, Event: env.EventDestroyVersion, ObjectVersion: "/main", Comment: `Destroyed version "/main/2".`}
	assert.True(t, rm.IsVersionRemoval())
	assert.Equal(t, "/main/2", rm.RemovedVersion())

	rm.Comment = "no quotes"
	assert.Equal(t, "/main", rm.RemovedVersion())
}

func TestParseHistoryLine(t *testing.T) {
	line := strings.Join([]string{"alice", "20200710.120000", "/vobs/a.txt", "version", "/main/3", "checkin", "create version", "fix", "act-1"}, env.FieldDelimiter) + env.RecordEnd

	e, err := env.ParseHistoryLine(line)
	require.NoError(t, err)
	assert.Equal(t, "alice", e.User)
	assert.Equal(t, time.Date(2020, 7, 10, 12, 0, 0, 0, time.Local), e.Date)
	assert.Equal(t, "/vobs/a.txt", e.ObjectPath)
	assert.Equal(t, "/main/3", e.ObjectVersion)
	assert.Equal(t, "act-1", e.Activity)
	assert.True(t, e.IsFileCheckin())

	_, err = env.ParseHistoryLine("a#--#b")
	assert.Error(t, err)
	_, err = env.ParseHistoryLine(strings.Repeat("x"+env.FieldDelimiter, 8))
	assert.Error(t, err, "bad date")
}

func TestParseHistoryLine_RemovalTakesQuotedVersion(t *testing.T) {
	line := strings.Join([]string{"bob", "20200711.080000", "/vobs/a.txt", "branch", "/main", "rmver", "destroy version on branch", `Destroyed version "/main/2".`}, env.FieldDelimiter)

	e, err := env.ParseHistoryLine(line)
	require.NoError(t, err)
	assert.Equal(t, "version", e.ObjectKind)
	assert.Equal(t, "/main/2", e.ObjectVersion)
	assert.Empty(t, e.Activity)
}

func TestReadHistory_MultiLineRecords(t *testing.T) {
	rec := func(comment string) string {
		return strings.Join([]string{"u", "20200101.000000", "/v/x", "version", "/main/1", "checkin", "create version", comment}, env.FieldDelimiter) + env.RecordEnd
	}
	log := rec("one") + "\n" + rec("two\nlines") + "\n" + "garbage" + env.RecordEnd + "\n"

	events, err := env.ReadHistory(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Comment)
	assert.Equal(t, "two\nlines", events[1].Comment)
}

func TestLocker_SerializesPerRoot(t *testing.T) {
	var l env.Locker
	var wg sync.WaitGroup
	var mu sync.Mutex
	inside := map[string]int{}
	maxInside := 0

	for i := 0; i < 8; i++ {
		root := "/a"
		if i%2 == 0 {
			root = "/b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(root)
			defer unlock()

			mu.Lock()
			inside[root]++
			maxInside = max(maxInside, inside[root])
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside[root]--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestElementKindString(t *testing.T) {
	assert.Equal(t, "file", env.KindFile.String())
	assert.Equal(t, "directory", env.KindDir.String())
}
