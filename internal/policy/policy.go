package policy

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/keshon/ccview/internal/fs"
)

// ErrParse marks a policy that could not be read.
var ErrParse = errors.New("policy parse error")

const maxIncludeDepth = 16

// Policy is a compiled selection policy.
type Policy struct {
	ViewRoot  string
	LoadRules []LoadRule
	Rules     []Rule
}

// UnderLoadRules reports whether the element is loaded by the view. A policy
// without load rules loads everything.
func (p *Policy) UnderLoadRules(elementPath string) bool {
	if len(p.LoadRules) == 0 {
		return true
	}
	for _, l := range p.LoadRules {
		if l.Covers(elementPath) {
			return true
		}
	}
	return false
}

// String renders the compiled policy one rule per line.
func (p *Policy) String() string {
	var b strings.Builder
	for _, r := range p.Rules {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	for _, l := range p.LoadRules {
		b.WriteString(l.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Fingerprint identifies the compiled rule set. Policies that compile to the
// same rules share a fingerprint.
func (p *Policy) Fingerprint() string {
	return strconv.FormatUint(xxh3.HashString(p.String()), 16)
}

// Option configures compilation.
type Option func(*options)

type options struct {
	viewRoot string
	fs       fs.FS
	logger   *slog.Logger
}

// WithViewRoot anchors load rules at root.
func WithViewRoot(root string) Option {
	return func(o *options) { o.viewRoot = root }
}

// WithIncludeFS sets the filesystem include files are read from.
func WithIncludeFS(fsys fs.FS) Option {
	return func(o *options) { o.fs = fsys }
}

// WithLogger sets the logger for dropped clauses.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{viewRoot: "/"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = fs.NewOSFS()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
