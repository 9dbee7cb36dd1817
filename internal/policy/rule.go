package policy

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/keshon/ccview/internal/pattern"
)

// Version selector tokens with a fixed meaning.
const (
	TokenLatest     = "LATEST"
	TokenCheckedOut = "CHECKEDOUT"
)

// ScopeKind restricts a rule to files, directories or both.
type ScopeKind int

const (
	ScopeAny ScopeKind = iota
	ScopeFile
	ScopeDirectory
)

var scopeNames = map[ScopeKind]string{
	ScopeAny:       "any",
	ScopeFile:      "file",
	ScopeDirectory: "directory",
}

func (k ScopeKind) String() string {
	if s, ok := scopeNames[k]; ok {
		return s
	}
	return "ScopeKind(" + strconv.Itoa(int(k)) + ")"
}

// Allows reports whether an element of the given kind is in scope.
func (k ScopeKind) Allows(isFile bool) bool {
	switch k {
	case ScopeFile:
		return isFile
	case ScopeDirectory:
		return !isFile
	default:
		return true
	}
}

// Rule is one compiled element rule.
type Rule struct {
	Scope    ScopeKind
	EltType  string // set for -eltype rules, informational
	Pattern  string // scope pattern after bracket normalization
	Selector string // version selector with separators normalized

	ScopePattern  pattern.Matcher
	BranchPattern pattern.Matcher
	LatestPattern pattern.Matcher
	Token         string

	MkBranch string
}

func newRule(scope ScopeKind, eltType, scopePattern, selector string) Rule {
	sel := pattern.Normalize(selector)
	r := Rule{
		Scope:        scope,
		EltType:      eltType,
		Pattern:      scopePattern,
		Selector:     sel,
		ScopePattern: pattern.Compile(scopePattern, false),
	}

	if i := strings.LastIndexByte(sel, '/'); i >= 0 {
		r.BranchPattern = pattern.Compile(sel[:i], true)
		r.Token = sel[i+1:]
		r.LatestPattern = pattern.Compile(sel, true)
	} else {
		r.BranchPattern = pattern.MatchAll()
		r.Token = sel
		r.LatestPattern = pattern.MatchAll()
	}
	return r
}

// MatchesPath reports whether the rule applies to the element.
func (r Rule) MatchesPath(elementPath string, isFile bool) bool {
	return r.Scope.Allows(isFile) && r.ScopePattern.Match(elementPath)
}

// IsLatest reports whether the rule selects the newest version of a branch.
func (r Rule) IsLatest() bool { return strings.EqualFold(r.Token, TokenLatest) }

// IsCheckedOut reports whether the rule selects checked-out versions.
func (r Rule) IsCheckedOut() bool { return strings.EqualFold(r.Token, TokenCheckedOut) }

// Seq returns the integer version the rule selects, if any.
func (r Rule) Seq() (int, bool) {
	n, err := strconv.Atoi(r.Token)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Label returns the label name the rule selects, if the token is neither
// LATEST, CHECKEDOUT nor an integer.
func (r Rule) Label() (string, bool) {
	if r.IsLatest() || r.IsCheckedOut() {
		return "", false
	}
	if _, ok := r.Seq(); ok {
		return "", false
	}
	return r.Token, r.Token != ""
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString("element")
	switch r.Scope {
	case ScopeFile:
		b.WriteString(" -file")
	case ScopeDirectory:
		b.WriteString(" -directory")
	}
	if r.EltType != "" {
		b.WriteString(" -eltype " + r.EltType)
	}
	fmt.Fprintf(&b, " %s %s", r.Pattern, r.Selector)
	if r.MkBranch != "" {
		b.WriteString(" -mkbranch " + r.MkBranch)
	}
	return b.String()
}

// LoadRule bounds the set of elements loaded into the view.
type LoadRule struct {
	Path string
}

func newLoadRule(viewRoot, p string) LoadRule {
	p = path.Join("/", pattern.Normalize(viewRoot), pattern.Normalize(p))
	return LoadRule{Path: p}
}

// Covers reports whether the element equals, contains or lies under the load path.
func (l LoadRule) Covers(elementPath string) bool {
	e := path.Clean(pattern.Normalize(elementPath))
	return isAncestor(l.Path, e) || isAncestor(e, l.Path)
}

func (l LoadRule) String() string { return "load " + l.Path }

// isAncestor reports whether dir equals p or is one of its parent directories.
func isAncestor(dir, p string) bool {
	if dir == p {
		return true
	}
	if dir == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, dir+"/")
}
