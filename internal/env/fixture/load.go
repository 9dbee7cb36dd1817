package fixture

import (
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keshon/ccview/internal/env"
)

// document is the YAML description of a store.
type document struct {
	Root     string       `yaml:"root"`
	Elements []elementDoc `yaml:"elements"`
	Removed  []removalDoc `yaml:"removed"`
	History  string       `yaml:"history"`
}

type elementDoc struct {
	Path     string       `yaml:"path"`
	Kind     string       `yaml:"kind"`
	Versions []versionDoc `yaml:"versions"`
}

type versionDoc struct {
	ID       string     `yaml:"id"`
	From     string     `yaml:"from"`
	Date     time.Time  `yaml:"date"`
	User     string     `yaml:"user"`
	Comment  string     `yaml:"comment"`
	Labels   []string   `yaml:"labels"`
	Text     bool       `yaml:"text"`
	Exec     bool       `yaml:"exec"`
	Content  string     `yaml:"content"`
	Children []childDoc `yaml:"children"`
}

type childDoc struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Version string `yaml:"version"`
}

type removalDoc struct {
	Path    string    `yaml:"path"`
	Version string    `yaml:"version"`
	User    string    `yaml:"user"`
	Date    time.Time `yaml:"date"`
}

// LoadFile reads a store description from a YAML file.
func LoadFile(name string) (*Store, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a store description. Versions of a branch are listed in order;
// the first version of a new branch names the version it forks from.
func Load(r io.Reader) (*Store, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if doc.Root == "" {
		return nil, fmt.Errorf("decode fixture: root is required")
	}

	s := New(doc.Root)
	for _, ed := range doc.Elements {
		if err := s.loadElement(ed); err != nil {
			return nil, err
		}
	}
	for _, rd := range doc.Removed {
		if err := s.RemoveVersion(rd.Path, rd.Version, rd.Date); err != nil {
			return nil, fmt.Errorf("removed %s@@%s: %w", rd.Path, rd.Version, err)
		}
	}
	if strings.TrimSpace(doc.History) != "" {
		events, err := env.ReadHistory(strings.NewReader(doc.History))
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			s.Record(e)
		}
	}
	return s, nil
}

func parseKind(k string) (env.ElementKind, error) {
	switch strings.ToLower(k) {
	case "", "file":
		return env.KindFile, nil
	case "dir", "directory":
		return env.KindDir, nil
	}
	return 0, fmt.Errorf("unknown element kind %q", k)
}

func (s *Store) loadElement(ed elementDoc) error {
	kind, err := parseKind(ed.Kind)
	if err != nil {
		return fmt.Errorf("element %q: %w", ed.Path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := path.Clean(ed.Path)
	if _, ok := s.elements[p]; ok {
		return fmt.Errorf("element %q listed twice", p)
	}
	el := &element{path: p, kind: kind, branches: make(map[string]*branch)}
	s.elements[p] = el

	for _, vd := range ed.Versions {
		if err := s.loadVersion(el, vd); err != nil {
			return fmt.Errorf("element %q version %q: %w", p, vd.ID, err)
		}
	}
	return nil
}

func (s *Store) loadVersion(el *element, vd versionDoc) error {
	branchPath, seq, ok := env.ParseVersion(vd.ID)
	if !ok {
		return fmt.Errorf("malformed version id")
	}

	b, ok := el.branches[branchPath]
	if !ok {
		b = &branch{path: branchPath}
		if branchPath != topBranch {
			from := vd.From
			if from == "" {
				parentBranch := path.Dir(branchPath)
				last := el.lastVersion(parentBranch)
				if last == nil {
					return fmt.Errorf("%w: no version to fork %s from", env.ErrNotFound, branchPath)
				}
				from = last.id
			}
			if el.find(from) == nil {
				return fmt.Errorf("%w: fork point %s", env.ErrNotFound, from)
			}
			b.parent = from
		}
		el.branches[branchPath] = b
		el.order = append(el.order, branchPath)
	}
	if n := len(b.versions); n > 0 && b.versions[n-1].seq >= seq {
		return fmt.Errorf("versions of %s out of order", branchPath)
	}

	v := &version{
		id:      branchPath + "/" + strconv.Itoa(seq),
		seq:     seq,
		date:    vd.Date,
		user:    vd.User,
		comment: vd.Comment,
		labels:  slices.Clone(vd.Labels),
		attr:    env.Attr{Text: vd.Text, Exec: vd.Exec},
		content: []byte(vd.Content),
	}
	for _, cd := range vd.Children {
		kind, err := parseKind(cd.Kind)
		if err != nil {
			return fmt.Errorf("child %q: %w", cd.Name, err)
		}
		v.children = append(v.children, env.Child{Name: cd.Name, Kind: kind, Version: cd.Version})
	}
	s.created++
	v.created = s.created
	b.versions = append(b.versions, v)
	return nil
}
