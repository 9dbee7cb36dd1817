// Package cache stores resolved snapshots of a tree at points in time and
// builds new ones incrementally from the nearest earlier snapshot.
//
// Layout under the cache directory:
//
//	<xxh3(root id)>-<policy fingerprint>/   one generation of a root
//	    generation.json
//	    <xxh3(path)>/<unix millis>          one snapshot entry
package cache

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/keshon/ccview/internal/changes"
	"github.com/keshon/ccview/internal/config"
	"github.com/keshon/ccview/internal/env"
	"github.com/keshon/ccview/internal/fs"
	"github.com/keshon/ccview/internal/logging"
	"github.com/keshon/ccview/internal/snapshot"
	"github.com/keshon/ccview/internal/util"
)

var tracer = otel.Tracer("ccview.cache")

// Source produces what the cache stores: full listings, the changes
// between two points in time, and single resolutions used during replay.
type Source interface {
	Walk(ctx context.Context, path string, at time.Time) iter.Seq2[snapshot.Node, error]
	Changes(ctx context.Context, path string, from, to time.Time) ([]changes.Record, error)
	Resolve(ctx context.Context, path string, isFile bool, at time.Time) (string, bool, error)
	Attributes(ctx context.Context, path, version string) (env.Attr, error)
}

// Root identifies the tree a snapshot belongs to. Entries of different
// fingerprints never mix: a new fingerprint starts a new generation.
type Root struct {
	ID          string
	Fingerprint string
}

func (r Root) prefix() string {
	return strconv.FormatUint(xxh3.HashString(r.ID), 16) + "-"
}

func (r Root) dirName() string {
	return r.prefix() + r.Fingerprint
}

// Entry is one snapshot of a path at a point in time. The backing file may
// not exist yet.
type Entry struct {
	Root Root
	Path string
	At   time.Time
	file string
}

// File returns the backing file of the entry.
func (e *Entry) File() string { return e.file }

func (e *Entry) String() string {
	return fmt.Sprintf("%s@%s", e.Path, e.At.UTC().Format(time.RFC3339Nano))
}

// generation is the content of generation.json.
type generation struct {
	Root        string    `json:"root"`
	Fingerprint string    `json:"fingerprint"`
	Created     time.Time `json:"created"`
}

// Option configures a Store.
type Option func(*Store)

func WithFS(fsys fs.FS) Option {
	return func(s *Store) { s.fs = fsys }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeepLatest sets whether Cleanup keeps the newest entry of each key.
func WithKeepLatest(keep bool) Option {
	return func(s *Store) { s.keepLatest = keep }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces time.Now for generation stamps, build timing and the
// age of leftover temp files.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a snapshot cache rooted at one directory. It is safe for
// concurrent use.
type Store struct {
	dir        string
	fs         fs.FS
	logger     *slog.Logger
	keepLatest bool
	metrics    *Metrics
	now        func() time.Time

	builds singleflight.Group

	mu   sync.Mutex
	refs map[string]int  // entry file -> active readers
	gens map[string]bool // generation dirs prepared by this process
}

// New returns a cache rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:        filepath.Clean(dir),
		keepLatest: true,
		now:        time.Now,
		refs:       make(map[string]int),
		gens:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = fs.NewOSFS()
	}
	s.logger = logging.Or(s.logger)
	return s
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) keyDir(root Root, path string) string {
	return filepath.Join(s.dir, root.dirName(), strconv.FormatUint(xxh3.HashString(path), 16))
}

// Get returns the entry of path at at. Times are kept to the millisecond.
func (s *Store) Get(root Root, path string, at time.Time) *Entry {
	at = time.UnixMilli(at.UnixMilli())
	return &Entry{
		Root: root,
		Path: path,
		At:   at,
		file: filepath.Join(s.keyDir(root, path), strconv.FormatInt(at.UnixMilli(), 10)),
	}
}

// NearestBefore returns the newest existing entry of path strictly before at.
func (s *Store) NearestBefore(root Root, path string, at time.Time) (*Entry, bool) {
	entries, err := s.fs.ReadDir(s.keyDir(root, path))
	if err != nil {
		return nil, false
	}
	limit := at.UnixMilli()
	best := int64(-1)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ms, ok := parseStamp(e.Name()); ok && ms < limit && ms > best {
			best = ms
		}
	}
	if best < 0 {
		return nil, false
	}
	return s.Get(root, path, time.UnixMilli(best)), true
}

func parseStamp(name string) (int64, bool) {
	if strings.HasPrefix(name, ".") {
		return 0, false
	}
	ms, err := strconv.ParseInt(name, 10, 64)
	return ms, err == nil && ms >= 0
}

// prepare makes sure the generation directory of root is the only one of
// that root and carries its generation.json.
func (s *Store) prepare(root Root) error {
	dir := filepath.Join(s.dir, root.dirName())

	s.mu.Lock()
	done := s.gens[dir]
	s.mu.Unlock()
	if done {
		return nil
	}

	if _, err := s.Invalidate(root); err != nil {
		return err
	}
	meta := filepath.Join(dir, config.GenerationFile)
	if !s.fs.Exists(meta) {
		g := generation{Root: root.ID, Fingerprint: root.Fingerprint, Created: s.now().UTC()}
		if err := util.WriteJSON(s.fs, meta, g); err != nil {
			return fmt.Errorf("write generation of %s: %w", root.ID, err)
		}
	}

	s.mu.Lock()
	s.gens[dir] = true
	s.mu.Unlock()
	return nil
}

// Generation describes one generation directory found in the cache.
type Generation struct {
	Dir         string
	Root        string
	Fingerprint string
	Created     time.Time
}

// Generations lists the generation directories of the cache. Directories
// without readable metadata are listed with their name only.
func (s *Store) Generations() ([]Generation, error) {
	dirs, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if s.fs.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache %s: %w", s.dir, err)
	}
	var out []Generation
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, d.Name())
		g := Generation{Dir: dir}
		var meta generation
		if err := util.ReadJSON(s.fs, filepath.Join(dir, config.GenerationFile), &meta); err == nil {
			g.Root, g.Fingerprint, g.Created = meta.Root, meta.Fingerprint, meta.Created
		}
		out = append(out, g)
	}
	return out, nil
}
