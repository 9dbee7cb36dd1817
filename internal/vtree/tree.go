package vtree

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrNoParentVersion is returned when a line names a sub-branch of a branch
// that has no versions to fork from.
var ErrNoParentVersion = errors.New("parent branch has no versions")

const (
	checkedOutMarker = "CHECKEDOUT view "
	elementSep       = "@@"
)

// BranchID addresses a branch inside a Tree.
type BranchID int32

// VersionID addresses a version inside a Tree.
type VersionID int32

const (
	NoBranch  BranchID  = -1
	NoVersion VersionID = -1
)

type branch struct {
	name   string
	parent VersionID // fork point, not owned
	first  VersionID
}

type version struct {
	branch   BranchID
	seq      int
	prev     VersionID
	next     VersionID
	forks    []BranchID
	comments []string
}

// Tree is the branch and version graph of one element. Branches and versions
// live in arenas and refer to each other by handle; a branch owns its chain of
// versions and a version owns the branches forked from it.
type Tree struct {
	branches []branch
	versions []version
	roots    []BranchID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Build creates a tree from version dump lines.
func Build(lines []string) (*Tree, error) {
	t := New()
	for _, l := range lines {
		if err := t.AddVersion(l); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddVersion adds one dump line such as "file.c@@/main/br/3 (REL_1, REL_2)".
// Path segments before the last are branch names. The last segment is either
// a version number appended to the innermost branch or one more branch name.
// Checked-out placeholders are skipped.
func (t *Tree) AddVersion(line string) error {
	if strings.Contains(line, checkedOutMarker) {
		return nil
	}
	names, last, comments := splitLine(line)
	if last == "" {
		return nil
	}

	seq, err := strconv.Atoi(last)
	if err != nil || seq < 0 {
		names = append(names, last)
		seq = -1
	}

	cur := NoBranch
	for _, name := range names {
		cur, err = t.branchAt(cur, name)
		if err != nil {
			return fmt.Errorf("add version %q: %w", line, err)
		}
	}
	if cur != NoBranch && seq >= 0 {
		t.appendVersion(cur, seq, comments)
	}
	return nil
}

// splitLine strips the element prefix and the comment list and splits the
// remaining version path into branch names and the final segment.
func splitLine(line string) (names []string, last string, comments []string) {
	if i := strings.LastIndex(line, elementSep); i >= 0 {
		line = line[i+len(elementSep):]
	}
	if open := strings.IndexByte(line, '('); open >= 0 {
		if end := strings.IndexByte(line[open:], ')'); end >= 0 {
			for _, c := range strings.Split(line[open+1:open+end], ",") {
				if c = strings.TrimSpace(c); c != "" {
					comments = append(comments, c)
				}
			}
		}
		line = line[:open]
	}

	segs := strings.FieldsFunc(strings.TrimSpace(line), func(r rune) bool { return r == '/' || r == '\\' })
	if len(segs) == 0 {
		return nil, "", comments
	}
	return segs[:len(segs)-1], strings.TrimSpace(segs[len(segs)-1]), comments
}

func (t *Tree) branchAt(parent BranchID, name string) (BranchID, error) {
	if parent == NoBranch {
		for _, b := range t.roots {
			if t.branches[b].name == name {
				return b, nil
			}
		}
		b := t.newBranch(name, NoVersion)
		t.roots = append(t.roots, b)
		return b, nil
	}

	last := NoVersion
	for v := t.branches[parent].first; v != NoVersion; v = t.versions[v].next {
		last = v
		for _, b := range t.versions[v].forks {
			if t.branches[b].name == name {
				return b, nil
			}
		}
	}
	if last == NoVersion {
		return NoBranch, fmt.Errorf("branch %q under %q: %w", name, t.BranchPath(parent), ErrNoParentVersion)
	}
	b := t.newBranch(name, last)
	t.versions[last].forks = append(t.versions[last].forks, b)
	return b, nil
}

func (t *Tree) newBranch(name string, parent VersionID) BranchID {
	t.branches = append(t.branches, branch{name: name, parent: parent, first: NoVersion})
	return BranchID(len(t.branches) - 1)
}

func (t *Tree) appendVersion(b BranchID, seq int, comments []string) VersionID {
	last := t.LastVersion(b)
	t.versions = append(t.versions, version{
		branch:   b,
		seq:      seq,
		prev:     last,
		next:     NoVersion,
		comments: comments,
	})
	id := VersionID(len(t.versions) - 1)
	if last == NoVersion {
		t.branches[b].first = id
	} else {
		t.versions[last].next = id
	}
	return id
}

// Roots returns the top-level branches.
func (t *Tree) Roots() []BranchID { return slices.Clone(t.roots) }

// BranchName returns the short name of a branch.
func (t *Tree) BranchName(b BranchID) string { return t.branches[b].name }

// ParentVersion returns the version a branch was forked from.
func (t *Tree) ParentVersion(b BranchID) VersionID { return t.branches[b].parent }

// FirstVersion returns the first version on a branch.
func (t *Tree) FirstVersion(b BranchID) VersionID { return t.branches[b].first }

// LastVersion returns the last version on a branch.
func (t *Tree) LastVersion(b BranchID) VersionID {
	last := NoVersion
	for v := t.branches[b].first; v != NoVersion; v = t.versions[v].next {
		last = v
	}
	return last
}

// Branch returns the branch a version belongs to.
func (t *Tree) Branch(v VersionID) BranchID { return t.versions[v].branch }

// Seq returns the version number.
func (t *Tree) Seq(v VersionID) int { return t.versions[v].seq }

// Next returns the successor on the same branch.
func (t *Tree) Next(v VersionID) VersionID { return t.versions[v].next }

// Prev returns the predecessor on the same branch.
func (t *Tree) Prev(v VersionID) VersionID { return t.versions[v].prev }

// Forks returns the branches forked from a version.
func (t *Tree) Forks(v VersionID) []BranchID { return slices.Clone(t.versions[v].forks) }

// Comments returns the comment tokens (labels, baselines) of a version.
func (t *Tree) Comments(v VersionID) []string { return slices.Clone(t.versions[v].comments) }

// HasComment reports whether a version carries the comment token.
func (t *Tree) HasComment(v VersionID, c string) bool {
	return slices.Contains(t.versions[v].comments, c)
}

// BranchPath returns the full branch name such as /main/br.
func (t *Tree) BranchPath(b BranchID) string {
	var parts []string
	for b != NoBranch {
		parts = append(parts, t.branches[b].name)
		p := t.branches[b].parent
		if p == NoVersion {
			break
		}
		b = t.versions[p].branch
	}
	slices.Reverse(parts)
	return "/" + strings.Join(parts, "/")
}

// WholeName returns the full version path such as /main/br/2.
func (t *Tree) WholeName(v VersionID) string {
	if v == NoVersion {
		return ""
	}
	return t.BranchPath(t.versions[v].branch) + "/" + strconv.Itoa(t.versions[v].seq)
}

// ForkPoint resolves a zero version to the version its branch was forked
// from. Other versions, and zero versions of top-level branches, resolve to
// themselves.
func (t *Tree) ForkPoint(v VersionID) VersionID {
	for v != NoVersion && t.versions[v].seq == 0 {
		p := t.branches[t.versions[v].branch].parent
		if p == NoVersion {
			break
		}
		v = p
	}
	return v
}

// FindSeq returns the version with the given number on a branch.
func (t *Tree) FindSeq(b BranchID, seq int) VersionID {
	for v := t.branches[b].first; v != NoVersion; v = t.versions[v].next {
		if t.versions[v].seq == seq {
			return v
		}
	}
	return NoVersion
}

// FindInBranch returns the first version on a branch carrying the comment,
// without descending into forked branches.
func (t *Tree) FindInBranch(b BranchID, comment string) VersionID {
	for v := t.branches[b].first; v != NoVersion; v = t.versions[v].next {
		if t.HasComment(v, comment) {
			return v
		}
	}
	return NoVersion
}

// FindVersionWithComment searches the whole tree depth first for a version
// carrying the comment.
func (t *Tree) FindVersionWithComment(comment string) VersionID {
	for _, b := range t.roots {
		if v := t.findWithComment(b, comment); v != NoVersion {
			return v
		}
	}
	return NoVersion
}

func (t *Tree) findWithComment(b BranchID, comment string) VersionID {
	for v := t.branches[b].first; v != NoVersion; v = t.versions[v].next {
		if t.HasComment(v, comment) {
			return v
		}
		for _, fb := range t.versions[v].forks {
			if found := t.findWithComment(fb, comment); found != NoVersion {
				return found
			}
		}
	}
	return NoVersion
}

// FindVersion locates a version by path such as /main/br/3.
func (t *Tree) FindVersion(path string) VersionID {
	names, last, _ := splitLine(path)
	seq, err := strconv.Atoi(last)
	if err != nil || len(names) == 0 {
		return NoVersion
	}

	cur := NoBranch
	for _, name := range names {
		cur = t.findBranch(cur, name)
		if cur == NoBranch {
			return NoVersion
		}
	}
	return t.FindSeq(cur, seq)
}

func (t *Tree) findBranch(parent BranchID, name string) BranchID {
	if parent == NoBranch {
		for _, b := range t.roots {
			if t.branches[b].name == name {
				return b
			}
		}
		return NoBranch
	}
	for v := t.branches[parent].first; v != NoVersion; v = t.versions[v].next {
		for _, b := range t.versions[v].forks {
			if t.branches[b].name == name {
				return b
			}
		}
	}
	return NoBranch
}

// Leaves returns every version without a successor. The walk is depth first:
// along each branch a tip is recorded when reached, and the branches forked
// from a version are visited before the walk moves to the next version.
func (t *Tree) Leaves() []VersionID {
	var out []VersionID
	for _, b := range t.roots {
		out = t.appendLeaves(out, b)
	}
	return out
}

func (t *Tree) appendLeaves(out []VersionID, b BranchID) []VersionID {
	for v := t.branches[b].first; v != NoVersion; v = t.versions[v].next {
		if t.versions[v].next == NoVersion {
			out = append(out, v)
		}
		for _, fb := range t.versions[v].forks {
			out = t.appendLeaves(out, fb)
		}
	}
	return out
}

// PruneBranch removes the addressed version and everything after it. Pruning
// version 0 detaches the whole branch from its fork point. A path that is not
// in the tree is ignored.
func (t *Tree) PruneBranch(path string) {
	v := t.FindVersion(path)
	if v == NoVersion {
		return
	}
	ver := &t.versions[v]
	b := ver.branch

	if ver.seq == 0 {
		parent := t.branches[b].parent
		if parent == NoVersion {
			t.roots = slices.DeleteFunc(t.roots, func(r BranchID) bool { return r == b })
			return
		}
		t.versions[parent].forks = slices.DeleteFunc(t.versions[parent].forks, func(f BranchID) bool { return f == b })
		return
	}

	if ver.prev == NoVersion {
		t.branches[b].first = NoVersion
		return
	}
	t.versions[ver.prev].next = NoVersion
}

// PruneBranchAfter keeps the addressed version but removes its successors and
// the branches forked from it. A path that is not in the tree is ignored.
func (t *Tree) PruneBranchAfter(path string) {
	if v := t.FindVersion(path); v != NoVersion {
		t.PruneAfter(v, true)
	}
}

// PruneAfter cuts the branch after v, optionally dropping v's forks.
func (t *Tree) PruneAfter(v VersionID, dropForks bool) {
	t.versions[v].next = NoVersion
	if dropForks {
		t.versions[v].forks = nil
	}
}

// String renders the tree with one branch or version per line.
func (t *Tree) String() string {
	var b strings.Builder
	for _, r := range t.roots {
		t.writeBranch(&b, r, 0)
	}
	return b.String()
}

func (t *Tree) writeBranch(b *strings.Builder, br BranchID, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent + t.branches[br].name + "\n")
	for v := t.branches[br].first; v != NoVersion; v = t.versions[v].next {
		b.WriteString(indent + "  " + strconv.Itoa(t.versions[v].seq))
		if c := t.versions[v].comments; len(c) > 0 {
			b.WriteString(" (" + strings.Join(c, ", ") + ")")
		}
		b.WriteByte('\n')
		for _, fb := range t.versions[v].forks {
			t.writeBranch(b, fb, depth+2)
		}
	}
}
