package resolve_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ccview/internal/policy"
	"github.com/keshon/ccview/internal/resolve"
	"github.com/keshon/ccview/internal/vtree"
)

// branchTree builds main/0..5 with my_branch/0..2 forked at main/3.
func branchTree(t *testing.T) *vtree.Tree {
	t.Helper()
	var lines []string
	for i := 0; i <= 3; i++ {
		lines = append(lines, fmt.Sprintf("/main/%d", i))
	}
	for i := 0; i <= 2; i++ {
		lines = append(lines, fmt.Sprintf("/main/my_branch/%d", i))
	}
	lines = append(lines, "/main/4", "/main/5 (REL_1)")
	tree, err := vtree.Build(lines)
	require.NoError(t, err)
	return tree
}

func compile(t *testing.T, text string, opts ...policy.Option) *policy.Policy {
	t.Helper()
	p, err := policy.CompileString(text, opts...)
	require.NoError(t, err)
	return p
}

func quiet() resolve.Option {
	return resolve.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func resolved(t *testing.T, tree *vtree.Tree, p *policy.Policy, path string, isFile bool, opts ...resolve.Option) string {
	t.Helper()
	v, ok := resolve.Resolve(tree, p, path, isFile, append(opts, quiet())...)
	if !ok {
		return ""
	}
	return tree.WholeName(v)
}

func TestResolve_FirstMatchingRuleWins(t *testing.T) {
	tree := branchTree(t)
	p := compile(t, "element * CHECKEDOUT\nelement * .../my_branch/LATEST\nelement * /main/LATEST\n")

	assert.Equal(t, "/main/my_branch/2", resolved(t, tree, p, "/vobs/a.txt", true))
}

func TestResolve_MainLatest(t *testing.T) {
	tree := branchTree(t)
	p := compile(t, "element * /main/LATEST\n")
	assert.Equal(t, "/main/5", resolved(t, tree, p, "/vobs/a.txt", true))
}

func TestResolve_WildcardBranchLatestTakesFirstLeaf(t *testing.T) {
	tree := branchTree(t)
	p := compile(t, "element * .../LATEST\n")
	assert.Equal(t, "/main/my_branch/2", resolved(t, tree, p, "/vobs/a.txt", true))
}

func TestResolve_IntegerSelector(t *testing.T) {
	tree := branchTree(t)

	cases := []struct {
		policy string
		want   string
	}{
		{"element * /main/2", "/main/2"},
		{"element * /main/my_branch/1", "/main/my_branch/1"},
		{"element * /main/my_branch/0", "/main/3"}, // fork point
		{"element * /main/9", ""},
		{"element * /other/1", ""},
	}
	for _, c := range cases {
		t.Run(c.policy, func(t *testing.T) {
			assert.Equal(t, c.want, resolved(t, tree, compile(t, c.policy), "/vobs/a.txt", true))
		})
	}
}

func TestResolve_LatestOfEmptyBranchIsForkPoint(t *testing.T) {
	tree, err := vtree.Build([]string{"/main/0", "/main/1", "/main/dev/0"})
	require.NoError(t, err)

	p := compile(t, "element * /main/dev/LATEST")
	assert.Equal(t, "/main/1", resolved(t, tree, p, "/a", true))
}

func TestResolve_Label(t *testing.T) {
	tree := branchTree(t)

	assert.Equal(t, "/main/5", resolved(t, tree, compile(t, "element * /main/REL_1"), "/a", true))
	assert.Equal(t, "/main/5", resolved(t, tree, compile(t, "element * REL_1"), "/a", true))
	assert.Equal(t, "", resolved(t, tree, compile(t, "element * /main/my_branch/REL_1"), "/a", true))
	assert.Equal(t, "", resolved(t, tree, compile(t, "element * REL_9"), "/a", true))
}

func TestResolve_CheckedOutNeverMatches(t *testing.T) {
	tree := branchTree(t)
	assert.Equal(t, "", resolved(t, tree, compile(t, "element * CHECKEDOUT"), "/a", true))
}

func TestResolve_ScopeFiltersRules(t *testing.T) {
	tree := branchTree(t)
	p := compile(t, `element -directory * /main/1
element -file /vobs/src/*.c /main/2
element * /main/LATEST
`)

	assert.Equal(t, "/main/1", resolved(t, tree, p, "/vobs/src", false))
	assert.Equal(t, "/main/2", resolved(t, tree, p, "/vobs/src/x.c", true))
	assert.Equal(t, "/main/5", resolved(t, tree, p, "/vobs/src/x.h", true))
	assert.Equal(t, "/main/5", resolved(t, tree, p, "/vobs/src/deep/x.c", true))
}

func TestResolve_BaselineFallback(t *testing.T) {
	tree, err := vtree.Build([]string{
		"/main/0 (BL_OLD)", "/main/1",
		"/main/int/0", "/main/int/1 (BL_2)",
	})
	require.NoError(t, err)
	p := compile(t, "element * /other/LATEST")

	assert.Equal(t, "/main/int/1", resolved(t, tree, p, "/a", true, resolve.WithBaselines("BL_1", "BL_2")))
	assert.Equal(t, "", resolved(t, tree, p, "/a", true, resolve.WithBaselines("BL_OLD")))
	assert.Equal(t, "", resolved(t, tree, p, "/a", true))
}

func TestResolve_OutsideLoadRules(t *testing.T) {
	tree := branchTree(t)
	p := compile(t, "element * /main/LATEST\nload /vobs/proj\n", policy.WithViewRoot("/view"))

	assert.Equal(t, "/main/5", resolved(t, tree, p, "/view/vobs/proj/a.c", true))
	assert.Equal(t, "/main/5", resolved(t, tree, p, "/view/vobs", false))
	assert.Equal(t, "", resolved(t, tree, p, "/view/vobs/other/a.c", true))
}

func TestResolve_MissIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, ok := resolve.Resolve(branchTree(t), compile(t, "element * /x/LATEST"), "/vobs/a.txt", true, resolve.WithLogger(logger))
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "/vobs/a.txt")
}

func TestResolve_Idempotent(t *testing.T) {
	tree := branchTree(t)
	before := tree.String()
	r := resolve.New(compile(t, "element * .../my_branch/LATEST\nelement * /main/LATEST"), quiet())

	first, ok := r.Resolve(tree, "/a", true)
	require.True(t, ok)
	second, ok := r.Resolve(tree, "/a", true)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, before, tree.String())
}
