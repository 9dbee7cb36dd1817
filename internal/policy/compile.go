package policy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	kwLoad     = "load"
	kwElement  = "element"
	kwInclude  = "include"
	kwTime     = "time"
	kwMkBranch = "mkbranch"
	kwEnd      = "end"

	optFile      = "-file"
	optDirectory = "-directory"
	optEltType   = "-eltype"
	optMkBranch  = "-mkbranch"
)

type compiler struct {
	opts   options
	policy *Policy
}

// Compile reads a selection policy and compiles its load and element rules
// in source order. Unknown directives are ignored and incomplete clauses are
// dropped; only an unreadable input or include file is an error.
func Compile(r io.Reader, opts ...Option) (*Policy, error) {
	c := newCompiler(opts)
	if err := c.read(r, "", 0); err != nil {
		return nil, err
	}
	return c.policy, nil
}

// CompileString compiles policy text.
func CompileString(text string, opts ...Option) (*Policy, error) {
	return Compile(strings.NewReader(text), opts...)
}

// CompileFile compiles the policy stored at path. Relative include paths are
// resolved against the directory of the including file.
func CompileFile(path string, opts ...Option) (*Policy, error) {
	c := newCompiler(opts)
	data, err := c.opts.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrParse, path, err)
	}
	if err := c.read(bytes.NewReader(data), filepath.Dir(path), 0); err != nil {
		return nil, err
	}
	return c.policy, nil
}

func newCompiler(opts []Option) *compiler {
	o := buildOptions(opts)
	return &compiler{opts: o, policy: &Policy{ViewRoot: o.viewRoot}}
}

func (c *compiler) read(r io.Reader, baseDir string, depth int) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		for _, clause := range strings.Split(sc.Text(), ";") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			if err := c.clause(clause, false, baseDir, depth); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

func (c *compiler) clause(line string, blockEnd bool, baseDir string, depth int) error {
	first := firstWord(line)
	word := trimQuotes(strings.TrimSpace(first))
	rest := strings.TrimSpace(line[len(first):])

	switch {
	case word == "":
		return nil
	case strings.EqualFold(word, kwEnd):
		return c.clause(rest, true, baseDir, depth)
	case strings.EqualFold(word, kwTime), strings.EqualFold(word, kwMkBranch):
		// block markers carry no selection effect
		return nil
	case blockEnd:
		return nil
	case strings.EqualFold(word, kwLoad):
		c.load(rest)
	case strings.EqualFold(word, kwInclude):
		return c.include(trimQuotes(rest), baseDir, depth)
	case strings.EqualFold(word, kwElement):
		c.element(rest)
	}
	return nil
}

func (c *compiler) load(rest string) {
	if rest == "" {
		c.opts.logger.Debug("dropping load rule without path")
		return
	}
	for rest != "" {
		w := firstWord(rest)
		if p := trimQuotes(strings.TrimSpace(w)); p != "" {
			c.policy.LoadRules = append(c.policy.LoadRules, newLoadRule(c.opts.viewRoot, p))
		}
		rest = strings.TrimSpace(rest[len(w):])
	}
}

func (c *compiler) include(path, baseDir string, depth int) error {
	if path == "" {
		c.opts.logger.Debug("dropping include without file")
		return nil
	}
	if depth >= maxIncludeDepth {
		return fmt.Errorf("%w: include %q: nesting deeper than %d", ErrParse, path, maxIncludeDepth)
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	data, err := c.opts.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: include %q: %v", ErrParse, path, err)
	}
	return c.read(bytes.NewReader(data), filepath.Dir(path), depth+1)
}

func (c *compiler) element(rest string) {
	scope := ScopeAny
	var eltType, scopePattern string

	w, rest := nextWord(rest)
	switch w {
	case optFile:
		scope = ScopeFile
		scopePattern, rest = nextWord(rest)
	case optDirectory:
		scope = ScopeDirectory
		scopePattern, rest = nextWord(rest)
	case optEltType:
		eltType, rest = nextWord(rest)
		scopePattern, rest = nextWord(rest)
	default:
		scopePattern = w
	}

	selector, rest := nextWord(rest)
	if scopePattern == "" || selector == "" {
		c.opts.logger.Debug("dropping incomplete element rule", "scope", scopePattern, "selector", selector)
		return
	}

	r := newRule(scope, eltType, normalizeScope(scopePattern), selector)
	for rest != "" {
		var opt string
		opt, rest = nextWord(rest)
		if opt != optMkBranch {
			continue
		}
		var name string
		name, rest = nextWord(rest)
		if name == "" || strings.HasPrefix(name, "-") {
			c.opts.logger.Debug("ignoring -mkbranch without branch name", "rule", r.String())
			continue
		}
		r.MkBranch = name
	}
	c.policy.Rules = append(c.policy.Rules, r)
}

// normalizeScope removes a [name=...] substitution prefix from a scope pattern.
func normalizeScope(p string) string {
	if !strings.HasPrefix(p, "[") {
		return p
	}
	eq, end := strings.IndexByte(p, '='), strings.IndexByte(p, ']')
	if eq < 0 || end < 0 || eq > end {
		return p
	}
	out := p[eq+1:end] + p[end+1:]
	if strings.HasPrefix(out, "/") || strings.HasPrefix(out, `\`) {
		out = out[1:]
	}
	return out
}

func nextWord(s string) (string, string) {
	w := firstWord(s)
	return trimQuotes(strings.TrimSpace(w)), strings.TrimSpace(s[len(w):])
}

// firstWord returns the leading word of s; a word that starts with a quote
// runs to the matching quote.
func firstWord(s string) string {
	if s == "" {
		return ""
	}
	if q := s[0]; q == '"' || q == '\'' {
		end := strings.IndexByte(s[1:], q)
		if end < 0 {
			return s
		}
		return s[:end+2]
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

func trimQuotes(s string) string {
	if len(s) > 1 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
