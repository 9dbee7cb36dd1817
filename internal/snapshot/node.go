package snapshot

import (
	"errors"
	"strconv"
)

var (
	// ErrCorrupt marks a stream that cannot be decoded.
	ErrCorrupt = errors.New("snapshot: corrupt stream")
	// ErrUnbalanced marks an encoder whose directory opens and closes differ.
	ErrUnbalanced = errors.New("snapshot: unbalanced directories")
	// ErrFlagSeparator marks a file version holding the byte that separates
	// it from its flags.
	ErrFlagSeparator = errors.New("snapshot: '|' in file version")
)

// maxFieldLen bounds a single name or version.
const maxFieldLen = 1 << 20

// Kind discriminates stream nodes.
type Kind byte

const (
	File Kind = iota
	DirOpen
	DirClose
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case DirOpen:
		return "dir"
	case DirClose:
		return "end"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is one item of a snapshot stream. DirClose nodes carry no fields.
type Node struct {
	Kind    Kind
	Name    string
	Version string
	Text    bool
	Exec    bool
}

// Entry is a node flattened to its path relative to the snapshot root. The
// root directory has the empty path.
type Entry struct {
	Path    string
	Kind    Kind
	Version string
	Text    bool
	Exec    bool
}

// Flags renders the file flags the way they are stored after the version.
func (e Entry) Flags() string { return flags(e.Text, e.Exec) }

func flags(text, exec bool) string {
	switch {
	case text && exec:
		return "tx"
	case text:
		return "t"
	case exec:
		return "x"
	}
	return ""
}
