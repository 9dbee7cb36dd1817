package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keshon/ccview/internal/cache"
	"github.com/keshon/ccview/internal/config"
	"github.com/keshon/ccview/internal/env/fixture"
	"github.com/keshon/ccview/internal/fs"
	"github.com/keshon/ccview/internal/policy"
	"github.com/keshon/ccview/internal/view"
)

// Registry holds the metrics served by `cache watch`.
var Registry = prometheus.NewRegistry()

var (
	metricsOnce  sync.Once
	cacheMetrics *cache.Metrics
)

var (
	ErrNoFixture = errors.New("no version store: set --fixture or " + config.KeyFixturePath)
	ErrNoPolicy  = errors.New("no policy: set --policy or " + config.KeyViewPolicy)
)

// Environment loads the version store described by the fixture file.
func (c *Context) Environment() (*fixture.Store, error) {
	if c.Settings.FixturePath == "" {
		return nil, ErrNoFixture
	}
	return fixture.LoadFile(c.Settings.FixturePath)
}

// Policy compiles file, or the configured policy file when file is empty.
func (c *Context) Policy(file string) (*policy.Policy, error) {
	if file == "" {
		file = c.Settings.PolicyFile
	}
	if file == "" {
		return nil, ErrNoPolicy
	}
	return policy.CompileFile(file, c.PolicyOptions()...)
}

// PolicyOptions are the compile options implied by the settings.
func (c *Context) PolicyOptions() []policy.Option {
	return []policy.Option{policy.WithViewRoot(c.Settings.ViewRoot), policy.WithLogger(c.Logger)}
}

// View opens the environment and applies the configured policy to it.
func (c *Context) View() (*view.View, *fixture.Store, error) {
	store, err := c.Environment()
	if err != nil {
		return nil, nil, err
	}
	p, err := c.Policy("")
	if err != nil {
		return nil, nil, err
	}
	opts := []view.Option{view.WithRoot(c.Settings.ViewRoot), view.WithLogger(c.Logger)}
	if c.Settings.Stream != "" || len(c.Settings.Baselines) > 0 {
		opts = append(opts, view.WithStream(c.Settings.Stream, c.Settings.Baselines...))
	}
	return view.New(store, p, opts...), store, nil
}

// Cache opens the snapshot cache of the settings.
func (c *Context) Cache() *cache.Store {
	metricsOnce.Do(func() { cacheMetrics = cache.NewMetrics(Registry) })

	var fsys fs.FS = fs.NewOSFS()
	if c.Settings.Compress {
		fsys = fs.NewCompressedFS(fsys)
	}
	return cache.New(c.Settings.CacheDir,
		cache.WithFS(fsys),
		cache.WithLogger(c.Logger),
		cache.WithKeepLatest(c.Settings.KeepLatest),
		cache.WithMetrics(cacheMetrics),
	)
}

// RootID names the cached tree: the store root, bounded by the stream and
// its baselines when set.
func (c *Context) RootID(store *fixture.Store) string {
	id := store.Root()
	if c.Settings.Stream != "" || len(c.Settings.Baselines) > 0 {
		id += "@" + c.Settings.Stream + ":" + strings.Join(c.Settings.Baselines, ",")
	}
	return id
}

// ParseTime reads an RFC 3339 time; empty means now.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// IsTerminal reports whether w is a character device.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
