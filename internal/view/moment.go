package view

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/ccview/internal/env"
	"github.com/keshon/ccview/internal/snapshot"
	"github.com/keshon/ccview/internal/vtree"
)

// Moment is a view frozen at one point in time. Versions created after that
// time are pruned from every version tree before resolution.
type Moment struct {
	view *View
	at   time.Time

	// ignored maps an element path to the versions created after at, oldest
	// first. It is nil until loaded for one operation.
	ignored map[string][]string
}

// Time returns the moment's point in time.
func (m *Moment) Time() time.Time { return m.at }

// loaded returns m with the history after the moment read from the
// environment. A Moment that already carries it is returned as is.
func (m *Moment) loaded(ctx context.Context) (*Moment, error) {
	if m.ignored != nil {
		return m, nil
	}
	events, err := m.view.env.HistorySince(ctx, m.at, nil)
	if err != nil {
		return nil, fmt.Errorf("history since %s: %w", m.at.Format(time.RFC3339), err)
	}
	ignored := make(map[string][]string)
	for _, e := range events {
		if !m.view.inside(e.ObjectPath) || !creates(e) {
			continue
		}
		p := cleanPath(e.ObjectPath)
		ignored[p] = append(ignored[p], versionOf(e))
	}
	return &Moment{view: m.view, at: m.at, ignored: ignored}, nil
}

// creates reports whether an event adds a version to an element's tree.
func creates(e env.HistoryEvent) bool {
	return e.IsFileCheckin() || e.IsDirectoryCheckin() || e.IsBranchCreation() || e.Operation == env.OpMkElem
}

// versionOf returns the version an event created. Branch creation may name
// the branch alone, whose first version is 0.
func versionOf(e env.HistoryEvent) string {
	v := strings.ReplaceAll(e.ObjectVersion, `\`, "/")
	if e.IsBranchCreation() {
		if _, _, ok := env.ParseVersion(v); !ok {
			v = strings.TrimSuffix(v, "/") + "/0"
		}
	}
	return v
}

// Resolve returns the whole version name of elementPath selected by the
// policy at the moment. A miss is reported with ok false.
func (m *Moment) Resolve(ctx context.Context, elementPath string, isFile bool) (string, bool, error) {
	m, err := m.loaded(ctx)
	if err != nil {
		return "", false, err
	}
	elementPath = cleanPath(elementPath)
	tree, err := m.Tree(ctx, elementPath)
	if err != nil {
		return "", false, err
	}
	v, ok := m.view.resolver.Resolve(tree, elementPath, isFile)
	if !ok {
		return "", false, nil
	}
	return tree.WholeName(v), true, nil
}

// Tree returns the version tree of elementPath as the moment sees it, with
// later changes pruned and stream baselines applied.
func (m *Moment) Tree(ctx context.Context, elementPath string) (*vtree.Tree, error) {
	m, err := m.loaded(ctx)
	if err != nil {
		return nil, err
	}
	elementPath = cleanPath(elementPath)

	lines, err := m.view.env.RawVersionDump(ctx, elementPath)
	if err != nil {
		return nil, fmt.Errorf("version tree of %s: %w", elementPath, err)
	}
	tree, err := vtree.Build(lines)
	if err != nil {
		return nil, fmt.Errorf("version tree of %s: %w", elementPath, err)
	}

	ignored := m.ignored[elementPath]
	for i := len(ignored) - 1; i >= 0; i-- {
		m.view.logger.Debug("pruning later version", "element", elementPath, "version", ignored[i])
		tree.PruneBranch(ignored[i])
	}
	if m.view.stream != "" {
		for _, bl := range m.view.baselines {
			if v := tree.FindVersionWithComment(bl); v != vtree.NoVersion {
				tree.PruneAfter(v, false)
			}
		}
	}
	return tree, nil
}

// Walk streams the resolved tree under rootPath depth first: each directory
// is opened, its visible children follow, then it is closed. The root is
// yielded with an empty name. Elements the policy does not select are
// skipped; collaborator errors end the stream. The root's lock is held for
// collaborator calls only, never while the consumer runs.
func (m *Moment) Walk(ctx context.Context, rootPath string) iter.Seq2[snapshot.Node, error] {
	return func(yield func(snapshot.Node, error) bool) {
		ctx, span := tracer.Start(ctx, "view.Walk",
			trace.WithAttributes(
				attribute.String("view.root", rootPath),
				attribute.String("view.at", m.at.Format(time.RFC3339)),
			),
		)
		defer span.End()

		root := cleanPath(rootPath)
		unlock := m.view.lock(root)
		defer func() { unlock() }()

		emit := func(n snapshot.Node, err error) bool {
			unlock()
			ok := yield(n, err)
			unlock = m.view.lock(root)
			return ok
		}
		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			emit(snapshot.Node{}, err)
		}

		cur, err := m.loaded(ctx)
		if err != nil {
			fail(err)
			return
		}
		version, ok, err := cur.Resolve(ctx, root, false)
		if err != nil {
			fail(err)
			return
		}
		if !ok {
			return
		}
		if err := cur.walkDir(ctx, root, "", version, emit); err != nil && !errors.Is(err, errStopped) {
			fail(err)
		}
	}
}

var errStopped = errors.New("consumer stopped")

func (m *Moment) walkDir(ctx context.Context, dirPath, name, version string, yield func(snapshot.Node, error) bool) error {
	if !yield(snapshot.Node{Kind: snapshot.DirOpen, Name: name, Version: version}, nil) {
		return errStopped
	}
	children, err := m.view.env.ListChildren(ctx, dirPath, version)
	if err != nil {
		return fmt.Errorf("list %s@@%s: %w", dirPath, version, err)
	}
	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := path.Join(dirPath, c.Name)
		isFile := c.Kind == env.KindFile

		v, ok, err := m.Resolve(ctx, p, isFile)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !isFile {
			if err := m.walkDir(ctx, p, c.Name, v, yield); err != nil {
				return err
			}
			continue
		}
		attr, err := m.view.env.ReadFileAttributes(ctx, p, v)
		if err != nil {
			return fmt.Errorf("attributes of %s@@%s: %w", p, v, err)
		}
		if !yield(snapshot.Node{Kind: snapshot.File, Name: c.Name, Version: v, Text: attr.Text, Exec: attr.Exec}, nil) {
			return errStopped
		}
	}
	if !yield(snapshot.Node{Kind: snapshot.DirClose}, nil) {
		return errStopped
	}
	return nil
}
