package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/keshon/ccview/internal/logging"
	"github.com/keshon/ccview/internal/policy"
)

// Watcher recompiles a policy file when it changes on disk. When the
// compiled rules change it invalidates the root's older cache generations
// and hands the new policy to the callback.
type Watcher struct {
	store    *Store
	file     string
	rootID   string
	opts     []policy.Option
	onChange func(*policy.Policy)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	current *policy.Policy
}

// NewWatcher compiles file and starts watching its directory. Editors often
// replace files instead of writing them, so the directory is watched and
// events are filtered by name.
func NewWatcher(store *Store, file, rootID string, onChange func(*policy.Policy), opts ...policy.Option) (*Watcher, error) {
	file = filepath.Clean(file)
	p, err := policy.CompileFile(file, opts...)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(file)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(file), err)
	}
	return &Watcher{
		store:    store,
		file:     file,
		rootID:   rootID,
		opts:     opts,
		onChange: onChange,
		logger:   logging.Or(store.logger),
		watcher:  fw,
		current:  p,
	}, nil
}

// Policy returns the policy compiled last.
func (w *Watcher) Policy() *policy.Policy {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Root returns the cache root of the current policy.
func (w *Watcher) Root() Root {
	return Root{ID: w.rootID, Fingerprint: w.Policy().Fingerprint()}
}

// Reload recompiles the policy file. It reports whether the compiled rules
// changed. A file that fails to compile leaves the current policy in place.
func (w *Watcher) Reload() (bool, error) {
	p, err := policy.CompileFile(w.file, w.opts...)
	if err != nil {
		w.logger.Warn("policy reload failed", "file", w.file, "error", err)
		return false, err
	}

	w.mu.Lock()
	same := p.Fingerprint() == w.current.Fingerprint()
	if !same {
		w.current = p
	}
	w.mu.Unlock()
	if same {
		return false, nil
	}

	root := Root{ID: w.rootID, Fingerprint: p.Fingerprint()}
	n, err := w.store.Invalidate(root)
	if err != nil {
		return true, fmt.Errorf("invalidate %s: %w", w.rootID, err)
	}
	w.logger.Info("policy changed", "file", w.file, "fingerprint", root.Fingerprint, "invalidated", n)
	if w.onChange != nil {
		w.onChange(p)
	}
	return true, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Errors are logged by Reload.
			_, _ = w.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
