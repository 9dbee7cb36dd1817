package fixture

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/keshon/ccview/internal/env"
)

// VersionOption sets properties of a version being created.
type VersionOption func(*version, *element) error

// WithContent sets the content of a file version.
func WithContent(content string) VersionOption {
	return func(v *version, _ *element) error {
		v.content = []byte(content)
		return nil
	}
}

// WithAttr sets the flags of a file version.
func WithAttr(text, exec bool) VersionOption {
	return func(v *version, _ *element) error {
		v.attr = env.Attr{Text: text, Exec: exec}
		return nil
	}
}

// WithComment sets the checkin comment.
func WithComment(comment string) VersionOption {
	return func(v *version, _ *element) error {
		v.comment = comment
		return nil
	}
}

// WithUser sets the user recorded in history.
func WithUser(user string) VersionOption {
	return func(v *version, _ *element) error {
		v.user = user
		return nil
	}
}

// WithLabels attaches labels to the version.
func WithLabels(labels ...string) VersionOption {
	return func(v *version, _ *element) error {
		v.labels = append(v.labels, labels...)
		return nil
	}
}

// Adding links existing elements into a directory version.
func (s *Store) Adding(names ...string) VersionOption {
	return func(v *version, el *element) error {
		if el.kind != env.KindDir {
			return fmt.Errorf("add to %q: not a directory", el.path)
		}
		for _, name := range names {
			child, ok := s.elements[path.Join(el.path, name)]
			if !ok {
				return fmt.Errorf("%w: element %q", env.ErrNotFound, path.Join(el.path, name))
			}
			v.children = slices.DeleteFunc(v.children, func(c env.Child) bool { return c.Name == name })
			v.children = append(v.children, env.Child{Name: name, Kind: child.kind})
		}
		return nil
	}
}

// Removing unlinks names from a directory version.
func Removing(names ...string) VersionOption {
	return func(v *version, el *element) error {
		if el.kind != env.KindDir {
			return fmt.Errorf("remove from %q: not a directory", el.path)
		}
		v.children = slices.DeleteFunc(v.children, func(c env.Child) bool { return slices.Contains(names, c.Name) })
		return nil
	}
}

// AddFile creates a file element with its first version /main/0.
func (s *Store) AddFile(elementPath string, at time.Time, opts ...VersionOption) (string, error) {
	return s.addElement(elementPath, env.KindFile, at, opts)
}

// AddDir creates an empty directory element with its first version /main/0.
func (s *Store) AddDir(elementPath string, at time.Time, opts ...VersionOption) (string, error) {
	return s.addElement(elementPath, env.KindDir, at, opts)
}

func (s *Store) addElement(elementPath string, kind env.ElementKind, at time.Time, opts []VersionOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := path.Clean(elementPath)
	if _, ok := s.elements[p]; ok {
		return "", fmt.Errorf("element %q already exists", p)
	}
	el := &element{path: p, kind: kind, branches: make(map[string]*branch)}
	el.branches[topBranch] = &branch{path: topBranch}
	el.order = []string{topBranch}
	s.elements[p] = el

	v, err := s.appendVersion(el, el.branches[topBranch], at, opts)
	if err != nil {
		delete(s.elements, p)
		return "", err
	}
	return v.id, nil
}

// Checkin appends the next version to a branch of an element. Directory
// versions start from the children of the previous version.
func (s *Store) Checkin(elementPath, branchPath string, at time.Time, opts ...VersionOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[path.Clean(elementPath)]
	if !ok {
		return "", fmt.Errorf("%w: element %q", env.ErrNotFound, elementPath)
	}
	b, ok := el.branches[branchPath]
	if !ok {
		return "", fmt.Errorf("%w: branch %s of %q", env.ErrNotFound, branchPath, elementPath)
	}
	v, err := s.appendVersion(el, b, at, opts)
	if err != nil {
		return "", err
	}
	return v.id, nil
}

// Link checks in a new version of dir on its top branch with names added.
func (s *Store) Link(dir string, at time.Time, names ...string) (string, error) {
	return s.Checkin(dir, topBranch, at, s.Adding(names...))
}

// Unlink checks in a new version of dir on its top branch with names removed.
func (s *Store) Unlink(dir string, at time.Time, names ...string) (string, error) {
	return s.Checkin(dir, topBranch, at, Removing(names...))
}

// Branch creates branch name forked from version from and its version 0.
func (s *Store) Branch(elementPath, from, name string, at time.Time, opts ...VersionOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.elements[path.Clean(elementPath)]
	if !ok {
		return "", fmt.Errorf("%w: element %q", env.ErrNotFound, elementPath)
	}
	parent := el.find(from)
	if parent == nil {
		return "", fmt.Errorf("%w: %s@@%s", env.ErrNotFound, elementPath, from)
	}
	branchPath, _, _ := env.ParseVersion(parent.id)
	branchPath += "/" + name
	if _, ok := el.branches[branchPath]; ok {
		return "", fmt.Errorf("branch %s of %q already exists", branchPath, elementPath)
	}

	b := &branch{path: branchPath, parent: parent.id}
	el.branches[branchPath] = b
	el.order = append(el.order, branchPath)

	base := append([]VersionOption{inherit(parent)}, opts...)
	v, err := s.appendVersion(el, b, at, base)
	if err != nil {
		delete(el.branches, branchPath)
		el.order = el.order[:len(el.order)-1]
		return "", err
	}
	return v.id, nil
}

// Label attaches labels to an existing version.
func (s *Store) Label(elementPath, versionID string, labels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, v, err := s.lookup(elementPath, versionID)
	if err != nil {
		return err
	}
	v.labels = append(v.labels, labels...)
	return nil
}

// RemoveVersion destroys a version at time at. It disappears from version
// dumps and is reported in history.
func (s *Store) RemoveVersion(elementPath, versionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, v, err := s.lookup(elementPath, versionID)
	if err != nil {
		return err
	}
	v.removed = true
	s.created++
	s.removed = append(s.removed, removal{path: el.path, version: v.id, date: at, created: s.created})
	return nil
}

// Record adds a raw history event, reported as is by HistorySince.
func (s *Store) Record(e env.HistoryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	s.extra = append(s.extra, recorded{e, s.created})
}

func inherit(from *version) VersionOption {
	return func(v *version, _ *element) error {
		v.children = slices.Clone(from.children)
		v.attr = from.attr
		v.content = from.content
		return nil
	}
}

func (s *Store) appendVersion(el *element, b *branch, at time.Time, opts []VersionOption) (*version, error) {
	seq := 0
	if n := len(b.versions); n > 0 {
		prev := b.versions[n-1]
		seq = prev.seq + 1
		opts = append([]VersionOption{inherit(prev)}, opts...)
	}

	v := &version{id: b.path + "/" + strconv.Itoa(seq), seq: seq, date: at}
	for _, opt := range opts {
		if err := opt(v, el); err != nil {
			return nil, err
		}
	}
	s.created++
	v.created = s.created
	b.versions = append(b.versions, v)
	return v, nil
}
