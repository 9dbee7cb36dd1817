package cache

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/keshon/ccview/internal/util"
)

// staleTempAge is how old a temp file must be before a sweep treats it as
// left over from a crashed build.
const staleTempAge = time.Hour

// Acquire marks e as being read. Sweeps leave acquired entries alone.
func (s *Store) Acquire(e *Entry) {
	s.mu.Lock()
	s.refs[e.file]++
	s.mu.Unlock()
}

// Release undoes one Acquire.
func (s *Store) Release(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[e.file] <= 1 {
		delete(s.refs, e.file)
		return
	}
	s.refs[e.file]--
}

func (s *Store) inUse(file string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[file] > 0
}

// Cleanup removes stale temp files and entries that are no longer needed:
// every entry but the newest of each key when keep-latest is on, every entry
// otherwise. It returns the number of entries removed.
func (s *Store) Cleanup() (int, error) {
	gens, err := s.Generations()
	if err != nil {
		return 0, err
	}
	var removed atomic.Int64
	err = util.Parallel(gens, util.WorkerCount(), func(g Generation) error {
		n, err := s.sweepGeneration(g.Dir, s.keepLatest)
		removed.Add(int64(n))
		return err
	})
	n := int(removed.Load())
	s.metrics.removed(n)
	if err != nil {
		return n, err
	}
	s.logger.Debug("cache cleanup", "dir", s.dir, "generations", len(gens), "removed", n)
	return n, nil
}

// Clear removes every generation of every root. Directories holding
// entries in use are emptied of everything else.
func (s *Store) Clear() (int, error) {
	gens, err := s.Generations()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, g := range gens {
		n, err := s.removeGeneration(g.Dir)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	s.metrics.removed(removed)
	s.logger.Info("cache cleared", "dir", s.dir, "removed", removed)
	return removed, nil
}

// Invalidate removes the generations of root.ID other than root's own.
func (s *Store) Invalidate(root Root) (int, error) {
	gens, err := s.Generations()
	if err != nil {
		return 0, err
	}
	keep := root.dirName()
	removed := 0
	for _, g := range gens {
		name := filepath.Base(g.Dir)
		if name == keep || !strings.HasPrefix(name, root.prefix()) {
			continue
		}
		n, err := s.removeGeneration(g.Dir)
		removed += n
		if err != nil {
			return removed, err
		}
		s.logger.Info("cache generation invalidated", "root", root.ID, "dir", g.Dir, "entries", n)
	}
	s.metrics.removed(removed)
	return removed, nil
}

// removeGeneration deletes a generation directory, or sweeps it clean when
// some of its entries are in use.
func (s *Store) removeGeneration(dir string) (int, error) {
	s.mu.Lock()
	delete(s.gens, dir)
	busy := false
	for file, n := range s.refs {
		if n > 0 && strings.HasPrefix(file, dir+string(filepath.Separator)) {
			busy = true
			break
		}
	}
	s.mu.Unlock()

	if busy {
		return s.sweepGeneration(dir, false)
	}
	count := 0
	keys, err := s.fs.ReadDir(dir)
	if err != nil && !s.fs.IsNotExist(err) {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, k := range keys {
		if !k.IsDir() {
			continue
		}
		entries, err := s.fs.ReadDir(filepath.Join(dir, k.Name()))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if _, ok := parseStamp(e.Name()); ok {
				count++
			}
		}
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("remove %s: %w", dir, err)
	}
	return count, nil
}

// sweepGeneration removes the entries of one generation that are not in
// use, keeping the newest of each key when keepLatest is set. Stale temp
// files go regardless.
func (s *Store) sweepGeneration(dir string, keepLatest bool) (int, error) {
	keys, err := s.fs.ReadDir(dir)
	if err != nil {
		if s.fs.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	removed := 0
	for _, k := range keys {
		if !k.IsDir() {
			if err := s.removeStaleTemp(filepath.Join(dir, k.Name())); err != nil {
				return removed, err
			}
			continue
		}
		n, err := s.sweepKey(filepath.Join(dir, k.Name()), keepLatest)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) sweepKey(dir string, keepLatest bool) (int, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}

	newest := int64(-1)
	if keepLatest {
		for _, e := range entries {
			if ms, ok := parseStamp(e.Name()); ok && ms > newest {
				newest = ms
			}
		}
	}

	removed := 0
	for _, e := range entries {
		file := filepath.Join(dir, e.Name())
		if isTemp(e.Name()) {
			if err := s.removeStaleTemp(file); err != nil {
				return removed, err
			}
			continue
		}
		ms, ok := parseStamp(e.Name())
		if !ok || ms == newest || s.inUse(file) {
			continue
		}
		if err := s.fs.Remove(file); err != nil && !s.fs.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", file, err)
		}
		removed++
	}
	return removed, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".tmp-") || strings.HasPrefix(name, "tmp-")
}

// removeStaleTemp removes file when it is a temp file older than
// staleTempAge. Younger ones may belong to a build still running.
func (s *Store) removeStaleTemp(file string) error {
	if !isTemp(filepath.Base(file)) {
		return nil
	}
	info, err := s.fs.Stat(file)
	if err != nil || s.now().Sub(info.ModTime()) <= staleTempAge {
		return nil
	}
	if err := s.fs.Remove(file); err != nil && !s.fs.IsNotExist(err) {
		return fmt.Errorf("remove temp %s: %w", file, err)
	}
	s.logger.Debug("removed stale temp file", "file", file)
	return nil
}
