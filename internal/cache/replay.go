package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"time"

	"github.com/keshon/ccview/internal/changes"
	"github.com/keshon/ccview/internal/snapshot"
)

var errKindMismatch = errors.New("change does not match element kind")

// replayer rewrites a base snapshot stream into the snapshot at a later
// time by applying merged changes node by node.
type replayer struct {
	ctx  context.Context
	src  Source
	root string
	at   time.Time
	set  *changes.Set
	enc  *snapshot.Encoder

	dirs    []string        // relative paths of the open directories
	ignore  int             // depth inside a dropped directory
	spliced map[string]bool // paths written from added lists
}

func (rp *replayer) run(nodes iter.Seq2[snapshot.Node, error]) error {
	rp.spliced = make(map[string]bool)
	for n, err := range nodes {
		if err != nil {
			return err
		}
		if err := rp.ctx.Err(); err != nil {
			return err
		}
		if err := rp.node(n); err != nil {
			return err
		}
	}
	return nil
}

func (rp *replayer) node(n snapshot.Node) error {
	if rp.ignore > 0 {
		switch n.Kind {
		case snapshot.DirOpen:
			rp.ignore++
		case snapshot.DirClose:
			rp.ignore--
		}
		return nil
	}
	if n.Kind == snapshot.DirClose {
		if len(rp.dirs) == 0 {
			return fmt.Errorf("%w: close without open", snapshot.ErrCorrupt)
		}
		rp.dirs = rp.dirs[:len(rp.dirs)-1]
		return rp.enc.Close()
	}

	rel := n.Name
	if len(rp.dirs) > 0 {
		rel = join(rp.dirs[len(rp.dirs)-1], n.Name)
	}
	if rp.spliced[rel] {
		return rp.drop(n)
	}

	rec, ok := rp.set.Get(rel)
	if !ok {
		return rp.keep(n, rel)
	}
	switch rec.Type {
	case changes.DeletedFile, changes.DeletedDir:
		return rp.drop(n)

	case changes.DeletedVersion:
		v, found, err := rp.src.Resolve(rp.ctx, rp.element(rel), n.Kind == snapshot.File, rp.at)
		if err != nil {
			return fmt.Errorf("re-resolve %s: %w", rel, err)
		}
		if !found {
			return rp.drop(n)
		}
		if n.Kind == snapshot.File && v != n.Version {
			return rp.file(n.Name, rel, v, nil)
		}
		n.Version = v
		return rp.keep(n, rel)

	case changes.ChangedFile, changes.AddedFile:
		if n.Kind != snapshot.File {
			return fmt.Errorf("%w: %s on directory %s", errKindMismatch, rec.Type, rel)
		}
		if rec.Known {
			n.Version, n.Text, n.Exec = rec.Version, rec.Text, rec.Exec
			return rp.enc.Write(n)
		}
		if rec.Version == n.Version {
			return rp.enc.Write(n)
		}
		return rp.file(n.Name, rel, rec.Version, nil)

	case changes.ChangedDir, changes.AddedDir:
		if n.Kind != snapshot.DirOpen {
			return fmt.Errorf("%w: %s on file %s", errKindMismatch, rec.Type, rel)
		}
		n.Version = rec.Version
		if err := rp.keep(n, rel); err != nil {
			return err
		}
		return rp.splice(rec.Added)
	}
	return rp.keep(n, rel)
}

// keep writes n and tracks it when it opens a directory.
func (rp *replayer) keep(n snapshot.Node, rel string) error {
	if n.Kind == snapshot.DirOpen {
		rp.dirs = append(rp.dirs, rel)
	}
	return rp.enc.Write(n)
}

// drop skips n, and everything below it when it opens a directory.
func (rp *replayer) drop(n snapshot.Node) error {
	if n.Kind == snapshot.DirOpen {
		rp.ignore = 1
	}
	return nil
}

// splice writes added elements right after their parent's open node.
func (rp *replayer) splice(added []changes.Record) error {
	for _, a := range added {
		name := path.Base(a.Path)
		rp.spliced[a.Path] = true
		switch a.Type {
		case changes.AddedDir:
			if err := rp.enc.Open(name, a.Version); err != nil {
				return err
			}
			if err := rp.splice(a.Added); err != nil {
				return err
			}
			if err := rp.enc.Close(); err != nil {
				return err
			}
		default:
			if err := rp.file(name, a.Path, a.Version, &a); err != nil {
				return err
			}
		}
	}
	return nil
}

// file writes a file node, fetching its flags unless rec already knows them.
func (rp *replayer) file(name, rel, version string, rec *changes.Record) error {
	if rec != nil && rec.Known {
		return rp.enc.File(name, version, rec.Text, rec.Exec)
	}
	attr, err := rp.src.Attributes(rp.ctx, rp.element(rel), version)
	if err != nil {
		return fmt.Errorf("attributes of %s@%s: %w", rel, version, err)
	}
	return rp.enc.File(name, version, attr.Text, attr.Exec)
}

func (rp *replayer) element(rel string) string {
	return join(rp.root, rel)
}

func join(dir, name string) string {
	switch {
	case dir == "":
		return name
	case name == "":
		return dir
	}
	return path.Join(dir, name)
}
