package view

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/ccview/internal/changes"
	"github.com/keshon/ccview/internal/env"
)

// Changes classifies the history of rootPath in (from, to] into change
// records relative to rootPath. Each record's Seq is the ordinal of the
// event that produced it. Versions are those visible at to.
func (v *View) Changes(ctx context.Context, rootPath string, from, to time.Time) ([]changes.Record, error) {
	ctx, span := tracer.Start(ctx, "view.Changes",
		trace.WithAttributes(
			attribute.String("view.root", rootPath),
			attribute.String("view.from", from.Format(time.RFC3339)),
			attribute.String("view.to", to.Format(time.RFC3339)),
		),
	)
	defer span.End()

	rootPath = cleanPath(rootPath)
	unlock := v.lock(rootPath)
	defer unlock()

	out, err := v.changes(ctx, rootPath, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("view.records", len(out)))
	return out, nil
}

func (v *View) changes(ctx context.Context, rootPath string, from, to time.Time) ([]changes.Record, error) {
	events, err := v.env.HistorySince(ctx, from, &to)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", rootPath, err)
	}
	m, err := v.At(to).loaded(ctx)
	if err != nil {
		return nil, err
	}

	var out []changes.Record
	for i, e := range events {
		rel, ok := relPath(rootPath, e.ObjectPath)
		if !ok || !v.inside(e.ObjectPath) {
			continue
		}
		seq := i + 1

		switch {
		case e.IsDirectoryCheckin():
			recs, err := m.changedDir(ctx, e, rel, seq)
			if err != nil {
				return nil, err
			}
			out = append(out, recs...)

		case e.IsFileCheckin():
			cur, ok, err := m.contains(ctx, e, true)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			linked, err := m.linked(ctx, e.ObjectPath)
			if err != nil {
				return nil, err
			}
			if !linked {
				continue
			}
			out = append(out, changes.NewRecord(rel, cur, changes.ChangedFile, seq))

		case e.IsVersionRemoval():
			out = append(out, changes.NewRecord(rel, e.RemovedVersion(), changes.DeletedVersion, seq))
		}
	}
	return out, nil
}

// contains reports whether the version created by e is part of the view at
// the moment: the selected version is on the event's branch and not older
// than the event. The selected version is returned.
func (m *Moment) contains(ctx context.Context, e env.HistoryEvent, isFile bool) (string, bool, error) {
	cur, ok, err := m.Resolve(ctx, e.ObjectPath, isFile)
	if errors.Is(err, env.ErrNotFound) {
		return "", false, nil
	}
	if err != nil || !ok {
		return "", false, err
	}
	branch, seq, ok := env.ParseVersion(cur)
	if !ok || branch != e.Branch() || seq < e.Seq() {
		return "", false, nil
	}
	return cur, true, nil
}

// linked reports whether the element is listed in its parent directory as
// visible at the moment.
func (m *Moment) linked(ctx context.Context, elementPath string) (bool, error) {
	parent := path.Dir(cleanPath(elementPath))
	pv, ok, err := m.Resolve(ctx, parent, false)
	if errors.Is(err, env.ErrNotFound) {
		return false, nil
	}
	if err != nil || !ok {
		return false, err
	}
	children, err := m.view.env.ListChildren(ctx, parent, pv)
	if err != nil {
		return false, fmt.Errorf("list %s@@%s: %w", parent, pv, err)
	}
	return hasChild(children, path.Base(elementPath)), nil
}

// changedDir turns a directory checkin into a ChangedDir record carrying the
// elements it gained, plus deletion records for the elements it lost.
// Only versions after the first are compared with their predecessor.
func (m *Moment) changedDir(ctx context.Context, e env.HistoryEvent, rel string, seq int) ([]changes.Record, error) {
	cur, ok, err := m.contains(ctx, e, false)
	if err != nil || !ok {
		return nil, err
	}
	dir := changes.NewRecord(rel, cur, changes.ChangedDir, seq)
	if e.Seq() <= 0 {
		return []changes.Record{dir}, nil
	}

	prev := e.PreviousVersion
	if prev == "" {
		prev = fmt.Sprintf("%s/%d", e.Branch(), e.Seq()-1)
	}
	before, err := m.view.env.ListChildren(ctx, e.ObjectPath, prev)
	if err != nil {
		return nil, fmt.Errorf("list %s@@%s: %w", e.ObjectPath, prev, err)
	}
	after, err := m.view.env.ListChildren(ctx, e.ObjectPath, e.ObjectVersion)
	if err != nil {
		return nil, fmt.Errorf("list %s@@%s: %w", e.ObjectPath, e.ObjectVersion, err)
	}

	var deleted []changes.Record
	for _, c := range before {
		if hasChild(after, c.Name) {
			continue
		}
		t := changes.DeletedFile
		if c.Kind == env.KindDir {
			t = changes.DeletedDir
		}
		deleted = append(deleted, changes.NewRecord(path.Join(rel, c.Name), "", t, seq))
	}
	for _, c := range after {
		if hasChild(before, c.Name) {
			continue
		}
		added, ok, err := m.added(ctx, path.Join(e.ObjectPath, c.Name), path.Join(rel, c.Name), c.Kind, seq)
		if err != nil {
			return nil, err
		}
		if ok {
			dir.Added = append(dir.Added, added)
		}
	}
	return append([]changes.Record{dir}, deleted...), nil
}

// added describes a newly linked element as visible at the moment; an added
// directory carries its whole visible subtree.
func (m *Moment) added(ctx context.Context, elementPath, rel string, kind env.ElementKind, seq int) (changes.Record, bool, error) {
	isFile := kind == env.KindFile
	v, ok, err := m.Resolve(ctx, elementPath, isFile)
	if err != nil || !ok {
		return changes.Record{}, false, err
	}

	if isFile {
		attr, err := m.view.env.ReadFileAttributes(ctx, elementPath, v)
		if err != nil {
			return changes.Record{}, false, fmt.Errorf("attributes of %s@@%s: %w", elementPath, v, err)
		}
		rec := changes.NewRecord(rel, v, changes.AddedFile, seq)
		rec.Text, rec.Exec, rec.Known = attr.Text, attr.Exec, true
		return rec, true, nil
	}

	rec := changes.NewRecord(rel, v, changes.AddedDir, seq)
	children, err := m.view.env.ListChildren(ctx, elementPath, v)
	if err != nil {
		return changes.Record{}, false, fmt.Errorf("list %s@@%s: %w", elementPath, v, err)
	}
	for _, c := range children {
		child, ok, err := m.added(ctx, path.Join(elementPath, c.Name), path.Join(rel, c.Name), c.Kind, seq)
		if err != nil {
			return changes.Record{}, false, err
		}
		if ok {
			rec.Added = append(rec.Added, child)
		}
	}
	return rec, true, nil
}

func hasChild(children []env.Child, name string) bool {
	return slices.ContainsFunc(children, func(c env.Child) bool { return c.Name == name })
}
