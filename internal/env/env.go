// Package env defines the collaborator the view reads version history from.
package env

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound reports an unknown element or version.
var ErrNotFound = errors.New("element or version not found")

// Env is the version store a view is computed against. Paths are absolute
// element paths; versions are whole names such as /main/br/3.
type Env interface {
	// ListChildren lists the children of a directory version.
	ListChildren(ctx context.Context, dirPath, version string) ([]Child, error)
	// HistorySince returns events after since, up to and including until
	// when it is set, oldest first.
	HistorySince(ctx context.Context, since time.Time, until *time.Time) ([]HistoryEvent, error)
	ReadFileAttributes(ctx context.Context, elementPath, version string) (Attr, error)
	FetchFileBytes(ctx context.Context, elementPath, version string) (io.ReadCloser, error)
	// RawVersionDump returns the version lines of an element in creation
	// order, parents before children.
	RawVersionDump(ctx context.Context, elementPath string) ([]string, error)
}

// RootLocker is implemented by environments that serialize work per root.
type RootLocker interface {
	Lock(root string) (unlock func())
}

// ElementKind tells files from directories.
type ElementKind int

const (
	KindFile ElementKind = iota
	KindDir
)

func (k ElementKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	}
	return "ElementKind(" + strconv.Itoa(int(k)) + ")"
}

// Child is one entry of a directory version. Version is informational; the
// view re-resolves every child through its policy.
type Child struct {
	Name    string
	Kind    ElementKind
	Version string
}

// Attr holds the per-version file flags.
type Attr struct {
	Text bool
	Exec bool
}

// ParseVersion splits a whole version name into its branch path and number.
func ParseVersion(v string) (branch string, seq int, ok bool) {
	v = strings.ReplaceAll(v, `\`, "/")
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(v[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return v[:i], n, true
}
