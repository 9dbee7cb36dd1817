package resolve

import (
	"log/slog"

	"github.com/keshon/ccview/internal/policy"
	"github.com/keshon/ccview/internal/vtree"
)

// Option configures a resolution.
type Option func(*options)

type options struct {
	baselines []string
	logger    *slog.Logger
}

// WithBaselines sets the baseline names tried when no rule selects a version.
func WithBaselines(names ...string) Option {
	return func(o *options) { o.baselines = append(o.baselines, names...) }
}

// WithLogger sets the logger used to report misses.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Resolver selects versions under one policy. It holds no state between calls.
type Resolver struct {
	policy *policy.Policy
	opts   []Option
}

// New returns a Resolver for p.
func New(p *policy.Policy, opts ...Option) *Resolver {
	return &Resolver{policy: p, opts: opts}
}

// Resolve selects the version of the element described by tree.
func (r *Resolver) Resolve(tree *vtree.Tree, elementPath string, isFile bool, opts ...Option) (vtree.VersionID, bool) {
	all := append(append([]Option(nil), r.opts...), opts...)
	return Resolve(tree, r.policy, elementPath, isFile, all...)
}

// Resolve returns the version of an element selected by the policy: the
// first rule, in source order, for which some leaf of the tree yields a
// version. When no rule matches, leaves labelled with one of the baselines are
// used. A miss is reported with ok false and is not an error.
func Resolve(tree *vtree.Tree, p *policy.Policy, elementPath string, isFile bool, opts ...Option) (vtree.VersionID, bool) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	v := resolve(tree, p, elementPath, isFile, o.baselines)
	if v == vtree.NoVersion {
		o.logger.Info("element ignored, version not found", "element", elementPath)
		return vtree.NoVersion, false
	}
	return v, true
}

func resolve(tree *vtree.Tree, p *policy.Policy, elementPath string, isFile bool, baselines []string) vtree.VersionID {
	if !p.UnderLoadRules(elementPath) {
		return vtree.NoVersion
	}

	leaves := tree.Leaves()
	for _, rule := range p.Rules {
		if !rule.MatchesPath(elementPath, isFile) {
			continue
		}
		for _, leaf := range leaves {
			if v := match(tree, rule, leaf); v != vtree.NoVersion {
				return v
			}
		}
	}

	for _, leaf := range leaves {
		for _, b := range baselines {
			if tree.HasComment(leaf, b) {
				return leaf
			}
		}
	}
	return vtree.NoVersion
}

// match tests one rule against one leaf.
func match(tree *vtree.Tree, rule policy.Rule, leaf vtree.VersionID) vtree.VersionID {
	switch {
	case rule.IsCheckedOut():
		return vtree.NoVersion
	case rule.IsLatest():
		if !rule.LatestPattern.Match(tree.WholeName(leaf)) {
			return vtree.NoVersion
		}
		return tree.ForkPoint(leaf)
	}

	b := tree.Branch(leaf)
	if !rule.BranchPattern.Match(tree.BranchPath(b)) {
		return vtree.NoVersion
	}
	if seq, ok := rule.Seq(); ok {
		return tree.ForkPoint(tree.FindSeq(b, seq))
	}
	if label, ok := rule.Label(); ok {
		return tree.FindInBranch(b, label)
	}
	return vtree.NoVersion
}
