// Package view resolves a policy against the environment's version
// history: single elements, whole trees at a point in time, and the changes
// between two points in time.
package view

import (
	"context"
	"iter"
	"log/slog"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/keshon/ccview/internal/env"
	"github.com/keshon/ccview/internal/logging"
	"github.com/keshon/ccview/internal/policy"
	"github.com/keshon/ccview/internal/resolve"
	"github.com/keshon/ccview/internal/snapshot"
)

var tracer = otel.Tracer("ccview.view")

// Option configures a View.
type Option func(*View)

// WithRoot sets the view root. History events outside it are ignored.
func WithRoot(root string) Option {
	return func(v *View) { v.root = cleanPath(root) }
}

// WithStream bounds the view by a stream's baselines: versions after a
// baseline are hidden, and the baselines are tried when no rule matches.
func WithStream(name string, baselines ...string) Option {
	return func(v *View) {
		v.stream = name
		v.baselines = append(v.baselines, baselines...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *View) { v.logger = l }
}

// View is a policy applied to an environment. It is safe for concurrent use.
type View struct {
	env       env.Env
	policy    *policy.Policy
	resolver  *resolve.Resolver
	root      string
	stream    string
	baselines []string
	logger    *slog.Logger
}

// New returns a view of e under p.
func New(e env.Env, p *policy.Policy, opts ...Option) *View {
	v := &View{env: e, policy: p, root: "/"}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logging.Or(v.logger)

	ropts := []resolve.Option{resolve.WithLogger(v.logger)}
	if len(v.baselines) > 0 {
		ropts = append(ropts, resolve.WithBaselines(v.baselines...))
	}
	v.resolver = resolve.New(p, ropts...)
	return v
}

// Policy returns the policy the view resolves with.
func (v *View) Policy() *policy.Policy { return v.policy }

// Stream returns the stream name and its baselines.
func (v *View) Stream() (string, []string) { return v.stream, v.baselines }

// At returns the view frozen at t. The history after t is read again by
// every operation on the returned Moment, so versions checked in since an
// earlier call are still hidden.
func (v *View) At(t time.Time) *Moment {
	return &Moment{view: v, at: t}
}

// Resolve returns the version of elementPath visible at t.
func (v *View) Resolve(ctx context.Context, elementPath string, isFile bool, at time.Time) (string, bool, error) {
	return v.At(at).Resolve(ctx, elementPath, isFile)
}

// Walk streams the tree under rootPath as visible at t.
func (v *View) Walk(ctx context.Context, rootPath string, at time.Time) iter.Seq2[snapshot.Node, error] {
	return v.At(at).Walk(ctx, rootPath)
}

// Attributes returns the file flags of one version.
func (v *View) Attributes(ctx context.Context, elementPath, version string) (env.Attr, error) {
	return v.env.ReadFileAttributes(ctx, elementPath, version)
}

// lock takes the environment's lock for root when it offers one. root must
// already be clean.
func (v *View) lock(root string) func() {
	if l, ok := v.env.(env.RootLocker); ok {
		return l.Lock(root)
	}
	return func() {}
}

func (v *View) inside(p string) bool {
	_, ok := relPath(v.root, p)
	return ok
}

func cleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, `\`, "/"))
	return p
}

// relPath returns p relative to root, or false when p is outside root.
func relPath(root, p string) (string, bool) {
	root, p = cleanPath(root), cleanPath(p)
	switch {
	case p == root:
		return "", true
	case root == "/":
		return p[1:], true
	case strings.HasPrefix(p, root+"/"):
		return p[len(root)+1:], true
	}
	return "", false
}
