package pattern

import (
	"regexp"
	"strings"
)

const (
	anyPrefix   = `(.*/)?`
	anySegments = `(/[^/]+)*`
	anyDirs     = `([^/]+/)*`
	anyName     = `[^/]*`
	lastSegment = `/[^/]+`
	latestToken = "/LATEST"
)

// Matcher is a compiled scope or version pattern. The zero value never matches.
type Matcher struct {
	expr string
	re   *regexp.Regexp
}

// Compile translates a config-spec pattern into a Matcher.
//
// Scope patterns are matched against element paths, version patterns against
// version paths such as /main/br/3. A pattern that does not translate into a
// valid expression yields a Matcher that never matches.
func Compile(pattern string, isVersionPattern bool) Matcher {
	expr := translate(pattern, isVersionPattern)
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return Matcher{expr: expr}
	}
	return Matcher{expr: expr, re: re}
}

// MatchAll returns a Matcher accepting every input.
func MatchAll() Matcher {
	return Matcher{expr: ".*", re: regexp.MustCompile(`^(?:.*)$`)}
}

// Match reports whether s matches the whole pattern.
func (m Matcher) Match(s string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(Normalize(s))
}

// Valid reports whether the pattern compiled.
func (m Matcher) Valid() bool { return m.re != nil }

// String returns the generated expression.
func (m Matcher) String() string { return m.expr }

// Normalize converts backslash separators to forward slashes.
func Normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// HasLatestSuffix reports whether a version pattern ends with /LATEST in any case.
func HasLatestSuffix(p string) bool {
	return len(p) >= len(latestToken) && strings.EqualFold(p[len(p)-len(latestToken):], latestToken)
}

func translate(pattern string, isVersionPattern bool) string {
	p := Normalize(pattern)

	latest := false
	if isVersionPattern && HasLatestSuffix(p) {
		p = p[:len(p)-len(latestToken)]
		latest = true
	}

	var b strings.Builder
	i := 0
	switch {
	case strings.HasPrefix(p, ".../"):
		b.WriteString(anyPrefix)
		i = 4
	case strings.HasPrefix(p, "..."), strings.HasPrefix(p, "/"):
	default:
		b.WriteString(anyPrefix)
	}

	for i < len(p) {
		rest := p[i:]
		switch {
		case strings.HasPrefix(rest, "/...") && (len(rest) == 4 || rest[4] == '/'):
			b.WriteString(anySegments)
			i += 4
		case strings.HasPrefix(rest, ".../"):
			b.WriteString(anyDirs)
			i += 4
		case strings.HasPrefix(rest, "..."):
			b.WriteString(".*")
			i += 3
		case rest[0] == '*':
			b.WriteString(anyName)
			i++
		case rest[0] == '?':
			b.WriteString(".")
			i++
		case rest[0] == '[':
			end := strings.IndexByte(rest[1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				i++
				continue
			}
			b.WriteString(rest[:end+2])
			i += end + 2
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			i++
		}
	}

	if latest {
		b.WriteString(lastSegment)
	}
	return b.String()
}
