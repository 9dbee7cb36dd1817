package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
)

// Decode streams the nodes of a snapshot. Iteration stops at the first error,
// which wraps ErrCorrupt when the stream is malformed.
func Decode(r io.Reader) iter.Seq2[Node, error] {
	return func(yield func(Node, error) bool) {
		d := decoder{r: bufio.NewReader(r)}
		for {
			n, err := d.next()
			if err == io.EOF {
				if d.depth != 0 {
					yield(Node{}, fmt.Errorf("%w: %d directories not closed", ErrCorrupt, d.depth))
				}
				return
			}
			if err != nil {
				yield(Node{}, err)
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// Walk decodes a snapshot into entries with paths relative to its root.
// Directory close nodes are not yielded.
func Walk(r io.Reader) iter.Seq2[Entry, error] {
	return Flatten(Decode(r))
}

// Flatten turns a node stream into entries with paths relative to its first
// directory. A close without an open directory ends the stream with
// ErrUnbalanced.
func Flatten(nodes iter.Seq2[Node, error]) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var dirs []string
		for n, err := range nodes {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if n.Kind == DirClose {
				if len(dirs) == 0 {
					yield(Entry{}, ErrUnbalanced)
					return
				}
				dirs = dirs[:len(dirs)-1]
				continue
			}

			p := n.Name
			if len(dirs) > 0 {
				p = join(dirs[len(dirs)-1], n.Name)
			}
			if n.Kind == DirOpen {
				dirs = append(dirs, p)
			}
			if !yield(Entry{Path: p, Kind: n.Kind, Version: n.Version, Text: n.Text, Exec: n.Exec}, nil) {
				return
			}
		}
	}
}

// Collect drains a walk.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Pairs maps each entry path to its version.
func Pairs(entries []Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Path] = e.Version
	}
	return out
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

type decoder struct {
	r     *bufio.Reader
	depth int
}

func (d *decoder) next() (Node, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return Node{}, err
	}

	k := Kind(b)
	switch k {
	case DirClose:
		if d.depth == 0 {
			return Node{}, fmt.Errorf("%w: close without open", ErrCorrupt)
		}
		d.depth--
		return Node{Kind: DirClose}, nil
	case File, DirOpen:
	default:
		return Node{}, fmt.Errorf("%w: unknown node kind %d", ErrCorrupt, b)
	}

	name, err := d.str()
	if err != nil {
		return Node{}, err
	}
	version, err := d.str()
	if err != nil {
		return Node{}, err
	}

	n := Node{Kind: k, Name: name, Version: version}
	if k == DirOpen {
		d.depth++
		return n, nil
	}
	if i := strings.IndexByte(version, '|'); i >= 0 {
		f := version[i+1:]
		n.Version = version[:i]
		n.Text = strings.Contains(f, "t")
		n.Exec = strings.Contains(f, "x")
	}
	return n, nil
}

func (d *decoder) str() (string, error) {
	var n [4]byte
	if _, err := io.ReadFull(d.r, n[:]); err != nil {
		return "", truncated(err)
	}
	size := binary.BigEndian.Uint32(n[:])
	if size > maxFieldLen {
		return "", fmt.Errorf("%w: field length %d", ErrCorrupt, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", truncated(err)
	}
	return string(buf), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated node", ErrCorrupt)
	}
	return err
}
