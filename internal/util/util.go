package util

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"runtime"
	"sort"
	"sync"

	"github.com/keshon/ccview/internal/fs"
)

// WriteAtomic publishes the output of write at target: the content goes to a
// temp file in the target directory which is renamed into place only after
// write and close succeed. Readers never see a partial file.
func WriteAtomic(fsys fs.FS, target string, write func(io.Writer) error) error {
	dir := path.Dir(target)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %q: %w", dir, err)
	}

	tmpFile, tmpPath, err := fsys.CreateTempFile(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %q: %w", dir, err)
	}
	defer fsys.Remove(tmpPath) // ensure cleanup on error

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmpPath, err)
	}

	// Atomically rename
	if err := fsys.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("publish %q: %w", target, err)
	}
	return nil
}

// WriteJSON writes a JSON file atomically.
func WriteJSON(fsys fs.FS, target string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteAtomic(fsys, target, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// ReadJSON reads a JSON file and unmarshals it into v
func ReadJSON(fsys fs.FS, target string, v any) error {
	data, err := fsys.ReadFile(target)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SortedKeys returns the keys of a map sorted alphabetically.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WorkerCount returns the number of workers for concurrent operations.
func WorkerCount() int {
	return runtime.NumCPU()
}

// Parallel runs fn concurrently for each item in inputs, limited by
// workerLimit, and returns the first error.
func Parallel[T any](inputs []T, workerLimit int, fn func(T) error) error {
	if len(inputs) == 0 {
		return nil
	}
	if workerLimit < 1 {
		workerLimit = 1
	}

	sem := make(chan struct{}, workerLimit)
	errCh := make(chan error, len(inputs))
	var wg sync.WaitGroup

	for _, in := range inputs {
		sem <- struct{}{}
		wg.Add(1)
		go func(x T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(x); err != nil {
				errCh <- err
			}
		}(in)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}
