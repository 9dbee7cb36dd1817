package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keshon/ccview/internal/pattern"
)

func TestCompile_ScopePatterns(t *testing.T) {
	cases := []struct {
		pat  string
		path string
		want bool
	}{
		// unrooted patterns match anywhere
		{"*", "/vobs/proj/a.txt", true},
		{"*", "a.txt", true},
		{"*.c", "/vobs/proj/src/main.c", true},
		{"*.c", "/vobs/proj/src/main.h", false},
		{"src/*.c", "/vobs/proj/src/main.c", true},
		{"src/*.c", "/vobs/proj/src/sub/main.c", false},

		// single character
		{"file?.txt", "/v/file1.txt", true},
		{"file?.txt", "/v/file12.txt", false},

		// dots are literal
		{"a.txt", "/v/a.txt", true},
		{"a.txt", "/v/abtxt", false},

		// rooted patterns
		{"/vobs/proj/a.txt", "/vobs/proj/a.txt", true},
		{"/vobs/proj/a.txt", "/other/vobs/proj/a.txt", false},

		// trailing recursive descent
		{"/vobs/proj/...", "/vobs/proj", true},
		{"/vobs/proj/...", "/vobs/proj/a/b/c.txt", true},
		{"/vobs/proj/...", "/vobs/projx/a", false},

		// recursive descent in the middle
		{"/vobs/.../src/*", "/vobs/src/a.c", true},
		{"/vobs/.../src/*", "/vobs/proj/lib/src/a.c", true},
		{"/vobs/.../src/*", "/vobs/proj/lib/a.c", false},

		// leading recursive ascent
		{".../lib/...", "/vobs/proj/lib/x.c", true},
		{".../lib/...", "lib", true},
		{".../lib/...", "/vobs/proj/libs/x.c", false},

		// backslashes are separators
		{`\vobs\proj\...`, "/vobs/proj/a", true},
		{"/vobs/proj/...", `\vobs\proj\a`, true},

		// bracket classes
		{"/v/[ab].txt", "/v/a.txt", true},
		{"/v/[ab].txt", "/v/c.txt", false},
	}

	for _, c := range cases {
		got := pattern.Compile(c.pat, false).Match(c.path)
		assert.Equalf(t, c.want, got, "Compile(%q).Match(%q)", c.pat, c.path)
	}
}

func TestCompile_VersionPatterns(t *testing.T) {
	cases := []struct {
		pat  string
		path string
		want bool
	}{
		{"*/LATEST", "main/7", true},
		{"*/LATEST", "main/8", true},
		{"*/LATEST", "/main/8", true},
		{"*/latest", "/main/8", true},
		{"/main/LATEST", "/main/5", true},
		{"/main/LATEST", "/main/my_branch/2", false},
		{".../my_branch/LATEST", "/main/my_branch/2", true},
		{".../my_branch/LATEST", "/main/rel/my_branch/0", true},
		{".../my_branch/LATEST", "/main/5", false},
		{"/main/.../LATEST", "/main/a/b/4", true},

		// branch parts of integer selectors
		{"/main", "/main", true},
		{"/main", "/main/br", false},
		{".../br", "/main/br", true},
		{".../br", "/main/xbr", false},
	}

	for _, c := range cases {
		got := pattern.Compile(c.pat, true).Match(c.path)
		assert.Equalf(t, c.want, got, "Compile(%q, version).Match(%q)", c.pat, c.path)
	}
}

func TestCompile_LatestOnlyRewrittenForVersions(t *testing.T) {
	scope := pattern.Compile("/v/LATEST", false)
	assert.True(t, scope.Match("/v/LATEST"))
	assert.False(t, scope.Match("/v/other"))

	version := pattern.Compile("/main/LATEST", true)
	assert.True(t, version.Match("/main/12"))
}

func TestCompile_FailsClosed(t *testing.T) {
	m := pattern.Compile("/v/[z-a]", false)
	assert.False(t, m.Valid())
	assert.False(t, m.Match("/v/z"))
	assert.False(t, m.Match(""))

	var zero pattern.Matcher
	assert.False(t, zero.Match("anything"))
}

func TestMatchAll(t *testing.T) {
	m := pattern.MatchAll()
	assert.True(t, m.Match(""))
	assert.True(t, m.Match("/main/br/3"))
}

func TestHasLatestSuffix(t *testing.T) {
	assert.True(t, pattern.HasLatestSuffix("/main/LATEST"))
	assert.True(t, pattern.HasLatestSuffix("x/Latest"))
	assert.False(t, pattern.HasLatestSuffix("LATEST"))
	assert.False(t, pattern.HasLatestSuffix("/main/3"))
}
