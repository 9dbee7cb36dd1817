package changes

import (
	"slices"
	"strconv"
	"strings"
)

// Type classifies a change between two points in time.
type Type int

const (
	AddedFile Type = iota
	AddedDir
	DeletedFile
	DeletedDir
	ChangedFile
	ChangedDir
	DeletedVersion
)

var typeNames = [...]string{
	AddedFile:      "ADDED_FILE",
	AddedDir:       "ADDED_DIR",
	DeletedFile:    "DELETED_FILE",
	DeletedDir:     "DELETED_DIR",
	ChangedFile:    "CHANGED_FILE",
	ChangedDir:     "CHANGED_DIR",
	DeletedVersion: "DELETED_VERSION",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// IsDeletion reports whether the change removes an element.
func (t Type) IsDeletion() bool { return t == DeletedFile || t == DeletedDir }

// Record is one change to an element, relative to the snapshot root.
// Seq orders records by the history event that produced them.
type Record struct {
	Path    string
	Version string
	Type    Type
	Seq     int

	// Text and Exec are meaningful only when Known is set.
	Text  bool
	Exec  bool
	Known bool

	// Added lists the elements a changed or added directory gained, each
	// with its own subtree.
	Added []Record
}

// NewRecord builds a record with the root path "." mapped to "".
func NewRecord(path, version string, t Type, seq int) Record {
	return Record{Path: RelPath(path), Version: version, Type: t, Seq: seq}
}

// RelPath normalizes a relative path: "." and "./x" become "" and "x".
func RelPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	if p == "." {
		return ""
	}
	return strings.TrimSuffix(p, "/")
}

func (r Record) String() string {
	return r.Type.String() + ": " + r.Path + ": " + r.Version
}

// Set holds the merged change per path.
type Set struct {
	byPath map[string]*Record
	order  []string
}

// Merge folds records into one change per path. Records are applied in
// slice order:
//   - the first record for a path is kept;
//   - a DeletedVersion record replaces the existing one;
//   - a deletion beats a change or addition of the same path;
//   - otherwise the record with the higher version number wins, ties going
//     to the later record.
//
// Added lists are carried into the winner unless it deletes a directory.
// Finally, an added entry is dropped when a deletion of the same path has a
// later ordinal; an entry added after the deletion survives.
func Merge(records []Record) *Set {
	s := &Set{byPath: make(map[string]*Record)}
	var deletions []Record

	for _, rec := range records {
		rec.Path = RelPath(rec.Path)
		if rec.Type.IsDeletion() {
			deletions = append(deletions, rec)
		}

		prev, ok := s.byPath[rec.Path]
		if !ok {
			s.order = append(s.order, rec.Path)
			s.byPath[rec.Path] = &rec
			continue
		}
		if rec.Type == DeletedVersion {
			s.byPath[rec.Path] = &rec
			continue
		}

		winner, loser := latest(prev, &rec)
		if winner.Type != DeletedDir {
			winner.Added = union(winner.Added, loser.Added)
		} else {
			winner.Added = nil
		}
		s.byPath[rec.Path] = winner
	}

	for _, d := range deletions {
		for _, p := range s.order {
			r := s.byPath[p]
			r.Added = prune(r.Added, d)
		}
	}
	return s
}

// latest picks the record that describes the path. A file deletion beats a
// change as a directory deletion does: a file that comes back after being
// unlinked shows up in its parent's added list, not as a change.
func latest(prev, next *Record) (winner, loser *Record) {
	switch {
	case prev.Type.IsDeletion() && !next.Type.IsDeletion():
		return prev, next
	case next.Type.IsDeletion() && !prev.Type.IsDeletion():
		return next, prev
	case versionSeq(prev.Version) > versionSeq(next.Version):
		return prev, next
	}
	return next, prev
}

// union merges added lists; for a path present in both, the later ordinal wins.
func union(a, b []Record) []Record {
	if len(b) == 0 {
		return a
	}
	out := slices.Clone(a)
	for _, rb := range b {
		i := slices.IndexFunc(out, func(r Record) bool { return r.Path == rb.Path })
		switch {
		case i < 0:
			out = append(out, rb)
		case rb.Seq > out[i].Seq:
			out[i] = rb
		}
	}
	slices.SortStableFunc(out, func(x, y Record) int { return x.Seq - y.Seq })
	return out
}

// prune drops entries for the deleted path added before the deletion,
// descending into added directories.
func prune(added []Record, d Record) []Record {
	if len(added) == 0 {
		return added
	}
	out := added[:0:0]
	for _, a := range added {
		if a.Path == d.Path && a.Seq < d.Seq {
			continue
		}
		a.Added = prune(a.Added, d)
		out = append(out, a)
	}
	return out
}

// Get returns the merged change for a path.
func (s *Set) Get(path string) (*Record, bool) {
	r, ok := s.byPath[RelPath(path)]
	return r, ok
}

// Len returns the number of changed paths.
func (s *Set) Len() int { return len(s.order) }

// Records returns the merged changes in first-seen order.
func (s *Set) Records() []Record {
	out := make([]Record, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, *s.byPath[p])
	}
	return out
}

// versionSeq returns the trailing integer of a version path, or -1.
func versionSeq(v string) int {
	i := strings.LastIndexAny(v, `/\`)
	n, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return -1
	}
	return n
}
