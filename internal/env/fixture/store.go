// Package fixture provides an in-memory version store described in YAML or
// built in code. It implements env.Env for tests and for the CLI.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keshon/ccview/internal/env"
	"github.com/keshon/ccview/internal/util"
)

const topBranch = "/main"

// Store is a concurrency-safe in-memory version store.
type Store struct {
	env.Locker

	mu       sync.RWMutex
	root     string
	elements map[string]*element
	removed  []removal
	extra    []recorded
	created  int
}

type recorded struct {
	env.HistoryEvent
	created int
}

type element struct {
	path     string
	kind     env.ElementKind
	branches map[string]*branch
	order    []string // branch paths in creation order
}

type branch struct {
	path     string
	parent   string // version the branch forked from, "" for the top branch
	versions []*version
}

type version struct {
	id       string
	seq      int
	date     time.Time
	user     string
	comment  string
	labels   []string
	attr     env.Attr
	content  []byte
	children []env.Child
	removed  bool
	created  int
}

type removal struct {
	path    string
	version string
	user    string
	date    time.Time
	created int
}

// New returns an empty store whose root directory is root.
func New(root string) *Store {
	return &Store{root: path.Clean(root), elements: make(map[string]*element)}
}

// Root returns the root directory element path.
func (s *Store) Root() string { return s.root }

func (s *Store) lookup(elementPath, versionID string) (*element, *version, error) {
	el, ok := s.elements[path.Clean(elementPath)]
	if !ok {
		return nil, nil, fmt.Errorf("%w: element %q", env.ErrNotFound, elementPath)
	}
	v := el.find(versionID)
	if v == nil || v.removed {
		return nil, nil, fmt.Errorf("%w: %s@@%s", env.ErrNotFound, elementPath, versionID)
	}
	return el, v, nil
}

func (el *element) find(id string) *version {
	id = strings.ReplaceAll(id, `\`, "/")
	branchPath, seq, ok := env.ParseVersion(id)
	if !ok {
		return nil
	}
	b, ok := el.branches[branchPath]
	if !ok {
		return nil
	}
	for _, v := range b.versions {
		if v.seq == seq {
			return v
		}
	}
	return nil
}

func (el *element) lastVersion(branchPath string) *version {
	b, ok := el.branches[branchPath]
	if !ok {
		return nil
	}
	for i := len(b.versions) - 1; i >= 0; i-- {
		if !b.versions[i].removed {
			return b.versions[i]
		}
	}
	return nil
}

// ListChildren returns the children recorded on a directory version.
func (s *Store) ListChildren(ctx context.Context, dirPath, versionID string) ([]env.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, v, err := s.lookup(dirPath, versionID)
	if err != nil {
		return nil, err
	}
	if el.kind != env.KindDir {
		return nil, fmt.Errorf("list %q: not a directory", dirPath)
	}
	return slices.Clone(v.children), nil
}

// ReadFileAttributes returns the flags of a file version.
func (s *Store) ReadFileAttributes(ctx context.Context, elementPath, versionID string) (env.Attr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, v, err := s.lookup(elementPath, versionID)
	if err != nil {
		return env.Attr{}, err
	}
	return v.attr, nil
}

// FetchFileBytes returns the content of a file version.
func (s *Store) FetchFileBytes(ctx context.Context, elementPath, versionID string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, v, err := s.lookup(elementPath, versionID)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(slices.Clone(v.content))), nil
}

// RawVersionDump lists the element's branches and versions the way a
// version tree listing does: each version is followed by the branches forked
// from it. Removed versions are not listed.
func (s *Store) RawVersionDump(ctx context.Context, elementPath string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.elements[path.Clean(elementPath)]
	if !ok {
		return nil, fmt.Errorf("%w: element %q", env.ErrNotFound, elementPath)
	}

	var lines []string
	var dump func(b *branch)
	dump = func(b *branch) {
		lines = append(lines, el.path+"@@"+b.path)
		for _, v := range b.versions {
			if !v.removed {
				line := el.path + "@@" + v.id
				if len(v.labels) > 0 {
					line += " (" + strings.Join(v.labels, ", ") + ")"
				}
				lines = append(lines, line)
			}
			for _, bp := range el.order {
				if fb := el.branches[bp]; fb.parent == v.id {
					dump(fb)
				}
			}
		}
	}
	if top, ok := el.branches[topBranch]; ok {
		dump(top)
	}
	return lines, nil
}

// HistorySince synthesizes the history of every element for (since, until],
// oldest first.
func (s *Store) HistorySince(ctx context.Context, since time.Time, until *time.Time) ([]env.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := func(t time.Time) bool {
		return t.After(since) && (until == nil || !t.After(*until))
	}

	var events []recorded

	for _, p := range util.SortedKeys(s.elements) {
		el := s.elements[p]
		for _, bp := range el.order {
			b := el.branches[bp]
			for i, v := range b.versions {
				if !in(v.date) {
					continue
				}
				e := env.HistoryEvent{
					User:          v.user,
					Date:          v.date,
					ObjectPath:    el.path,
					ObjectKind:    "version",
					ObjectVersion: v.id,
					Comment:       v.comment,
				}
				if i > 0 {
					e.PreviousVersion = b.versions[i-1].id
				} else if b.parent != "" {
					e.PreviousVersion = b.parent
				}
				switch {
				case v.seq == 0 && b.parent != "":
					e.ObjectKind = "branch"
					e.Operation, e.Event = env.OpMkBranch, env.EventCreateBranch
				case v.seq == 0:
					e.Operation, e.Event = env.OpMkElem, env.EventCreateVersion
				case el.kind == env.KindDir:
					e.ObjectKind = "directory version"
					e.Operation, e.Event = env.OpCheckin, env.EventCreateDirVersion
				default:
					e.Operation, e.Event = env.OpCheckin, env.EventCreateVersion
				}
				events = append(events, recorded{e, v.created})
			}
		}
	}
	for _, r := range s.removed {
		if !in(r.date) {
			continue
		}
		events = append(events, recorded{env.HistoryEvent{
			User:          r.user,
			Date:          r.date,
			ObjectPath:    r.path,
			ObjectKind:    "version",
			ObjectVersion: r.version,
			Operation:     env.OpRmVer,
			Event:         env.EventDestroyVersion,
			Comment:       "Destroyed version " + strconv.Quote(r.version) + ".",
		}, r.created})
	}
	for _, e := range s.extra {
		if in(e.Date) {
			events = append(events, e)
		}
	}

	slices.SortStableFunc(events, func(a, b recorded) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.created - b.created
	})
	out := make([]env.HistoryEvent, len(events))
	for i, e := range events {
		out[i] = e.HistoryEvent
	}
	return out, nil
}

var _ env.Env = (*Store)(nil)
