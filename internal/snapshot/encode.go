package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Encoder writes a snapshot stream.
type Encoder struct {
	w     *bufio.Writer
	depth int
	err   error
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// File writes a file node.
func (e *Encoder) File(name, version string, text, exec bool) error {
	return e.Write(Node{Kind: File, Name: name, Version: version, Text: text, Exec: exec})
}

// Open writes a directory open node.
func (e *Encoder) Open(name, version string) error {
	return e.Write(Node{Kind: DirOpen, Name: name, Version: version})
}

// Close ends the innermost open directory.
func (e *Encoder) Close() error {
	return e.Write(Node{Kind: DirClose})
}

// Write appends n to the stream. The first error sticks.
func (e *Encoder) Write(n Node) error {
	if e.err != nil {
		return e.err
	}
	switch n.Kind {
	case File:
		if strings.IndexByte(n.Version, '|') >= 0 {
			e.err = fmt.Errorf("%w: %q", ErrFlagSeparator, n.Version)
			return e.err
		}
		version := n.Version
		if f := flags(n.Text, n.Exec); f != "" {
			version += "|" + f
		}
		e.err = e.fields(n.Kind, n.Name, version)
	case DirOpen:
		e.err = e.fields(n.Kind, n.Name, n.Version)
		e.depth++
	case DirClose:
		if e.depth == 0 {
			e.err = fmt.Errorf("%w: close without open", ErrUnbalanced)
			return e.err
		}
		e.err = e.w.WriteByte(byte(DirClose))
		e.depth--
	default:
		e.err = fmt.Errorf("snapshot: unknown node kind %d", n.Kind)
	}
	return e.err
}

// Flush writes buffered data and checks that every directory was closed.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if err := e.w.Flush(); err != nil {
		e.err = err
		return err
	}
	if e.depth != 0 {
		return fmt.Errorf("%w: %d directories left open", ErrUnbalanced, e.depth)
	}
	return nil
}

func (e *Encoder) fields(k Kind, name, version string) error {
	if len(name) > maxFieldLen || len(version) > maxFieldLen {
		return fmt.Errorf("snapshot: field longer than %d bytes", maxFieldLen)
	}
	if err := e.w.WriteByte(byte(k)); err != nil {
		return err
	}
	if err := e.str(name); err != nil {
		return err
	}
	return e.str(version)
}

func (e *Encoder) str(s string) error {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	if _, err := e.w.Write(n[:]); err != nil {
		return err
	}
	_, err := e.w.WriteString(s)
	return err
}
