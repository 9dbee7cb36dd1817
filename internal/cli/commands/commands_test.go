package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ccview/internal/cli"
	"github.com/keshon/ccview/internal/config"
)

const storeYAML = `root: /view/vobs/proj
elements:
  - path: /view/vobs/proj
    kind: dir
    versions:
      - id: /main/0
        date: 2021-03-01T00:00:00Z
      - id: /main/1
        date: 2021-03-01T01:00:00Z
        children:
          - {name: a.txt, kind: file}
          - {name: dir, kind: dir}
  - path: /view/vobs/proj/a.txt
    versions:
      - id: /main/0
        date: 2021-03-01T00:30:00Z
      - id: /main/1
        date: 2021-03-01T00:40:00Z
        text: true
  - path: /view/vobs/proj/dir
    kind: dir
    versions:
      - id: /main/0
        date: 2021-03-01T00:30:00Z
      - id: /main/1
        date: 2021-03-01T00:50:00Z
        children:
          - {name: b.txt, kind: file}
  - path: /view/vobs/proj/dir/b.txt
    versions:
      - id: /main/0
        date: 2021-03-01T00:45:00Z
        exec: true
`

type env struct {
	dir     string
	fixture string
	policy  string
	cache   string
}

func setup(t *testing.T, policyText string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:     dir,
		fixture: filepath.Join(dir, "store.yaml"),
		policy:  filepath.Join(dir, "view.cs"),
		cache:   filepath.Join(dir, "cache"),
	}
	require.NoError(t, os.WriteFile(e.fixture, []byte(storeYAML), 0o644))
	require.NoError(t, os.WriteFile(e.policy, []byte(policyText), 0o644))
	return e
}

func run(t *testing.T, e env, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(config.New(), &out, &errOut)
	base := []string{
		"--fixture", e.fixture,
		"--policy", e.policy,
		"--cache-dir", e.cache,
		"--log-level", "error",
	}
	root.SetArgs(append(args, base...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")

	out, err := run(t, e, "resolve", "/view/vobs/proj/a.txt", "--at", "2021-03-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "/main/1\n", out)

	out, err = run(t, e, "resolve", "/view/vobs/proj/a.txt", "--at", "2021-03-01T00:35:00Z")
	require.NoError(t, err)
	assert.Equal(t, "/main/0\n", out)

	out, err = run(t, e, "resolve", "/view/vobs/proj/dir", "--dir", "--at", "2021-03-01T00:20:00Z")
	require.NoError(t, err)
	assert.Equal(t, "no version\n", out)
}

func TestResolveCommand_Tree(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")

	out, err := run(t, e, "resolve", "/view/vobs/proj/a.txt", "--tree", "--at", "2021-03-01T00:35:00Z")
	require.NoError(t, err)
	assert.Equal(t, "main\n  0\n/main/0\n", out)
}

func TestResolveCommand_BadTime(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")
	_, err := run(t, e, "resolve", "/view/vobs/proj/a.txt", "--at", "yesterday")
	assert.ErrorContains(t, err, "parse time")
}

func TestSnapshotCommand(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")

	out, err := run(t, e, "snapshot", "/view/vobs/proj", "--at", "2021-03-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, []string{
		". dir /main/1",
		"a.txt file /main/1 t",
		"dir dir /main/1",
		"dir/b.txt file /main/0 x",
	}, strings.Split(strings.TrimSpace(out), "\n"))

	again, err := run(t, e, "snapshot", "/view/vobs/proj", "--at", "2021-03-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, out, again)

	list, err := run(t, e, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, list, "/view/vobs/proj@")
}

func TestSnapshotCommand_JSON(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")

	out, err := run(t, e, "snapshot", "/view/vobs/proj", "--json", "--at", "2021-03-02T00:00:00Z")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"path":"a.txt","kind":"file","version":"/main/1","text":true}`, lines[1])
}

func TestCacheCleanCommand(t *testing.T) {
	e := setup(t, "element * /main/LATEST\n")
	for _, at := range []string{"2021-03-01T00:55:00Z", "2021-03-02T00:00:00Z"} {
		_, err := run(t, e, "snapshot", "/view/vobs/proj", "--at", at)
		require.NoError(t, err)
	}

	out, err := run(t, e, "cache", "clean")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 entries\n", out)

	out, err = run(t, e, "cache", "clean", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "removed generation /view/vobs/proj@")
	assert.Contains(t, out, "removed 1 entries\n")

	out, err = run(t, e, "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, "(cache is empty)\n", out)
}

func TestPolicyCheckCommand(t *testing.T) {
	e := setup(t, "element * CHECKEDOUT\nelement -file *.c /main/2\nelement * /main/LATEST\nload /vobs/proj\n")

	out, err := run(t, e, "policy", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "/main/LATEST")
	assert.Contains(t, out, "load /view/vobs/proj")
	assert.Contains(t, out, "fingerprint ")
}

func TestCommands_RequireFixture(t *testing.T) {
	var out, errOut bytes.Buffer
	root := cli.NewRootCommand(config.New(), &out, &errOut)
	root.SetArgs([]string{"resolve", "/a", "--cache-dir", t.TempDir(), "--fixture", ""})
	err := root.Execute()
	assert.ErrorIs(t, err, cli.ErrNoFixture)
}

func TestRegisteredCommands(t *testing.T) {
	var names []string
	for _, c := range cli.AllCommands() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"cache", "policy", "resolve", "snapshot"}, names)

	_, ok := cli.GetCommand("ls")
	assert.True(t, ok)
}
