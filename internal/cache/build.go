package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/ccview/internal/changes"
	"github.com/keshon/ccview/internal/snapshot"
	"github.com/keshon/ccview/internal/util"
)

// sourceError marks a failure of the Source rather than of the cache. It is
// returned to the caller instead of triggering an uncached pass.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// GetOrBuildSnapshot streams the snapshot of path at at, building and
// caching it first when needed.
func (s *Store) GetOrBuildSnapshot(ctx context.Context, root Root, path string, at time.Time, src Source) iter.Seq2[snapshot.Entry, error] {
	return s.Materialize(ctx, s.Get(root, path, at), src)
}

// Materialize streams the snapshot of e, building it when it does not exist.
// A corrupt or unreadable entry is removed and the snapshot is served by an
// uncached pass over src instead.
func (s *Store) Materialize(ctx context.Context, e *Entry, src Source) iter.Seq2[snapshot.Entry, error] {
	return func(yield func(snapshot.Entry, error) bool) {
		if err := s.ensure(ctx, e, src); err != nil {
			var se *sourceError
			if errors.As(err, &se) || ctx.Err() != nil {
				yield(snapshot.Entry{}, err)
				return
			}
			s.fallback(ctx, e, src, err, yield)
			return
		}

		s.Acquire(e)
		defer s.Release(e)

		r, err := s.fs.Open(e.file)
		if err != nil {
			s.fallback(ctx, e, src, err, yield)
			return
		}
		defer r.Close()

		// Check the whole entry before yielding anything so a bad tail never
		// follows entries already handed out.
		for _, err := range snapshot.Walk(r) {
			if err != nil {
				s.fallback(ctx, e, src, err, yield)
				return
			}
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			s.fallback(ctx, e, src, err, yield)
			return
		}
		for entry, err := range snapshot.Walk(r) {
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

func (s *Store) fallback(ctx context.Context, e *Entry, src Source, cause error, yield func(snapshot.Entry, error) bool) {
	s.logger.Warn("cache entry unusable, reading uncached", "entry", e.String(), "file", e.file, "error", cause)
	s.metrics.fallback()
	if err := s.fs.Remove(e.file); err != nil && !s.fs.IsNotExist(err) {
		s.logger.Warn("remove unusable cache entry", "file", e.file, "error", err)
	}
	for entry, err := range snapshot.Flatten(src.Walk(ctx, e.Path, e.At)) {
		if !yield(entry, err) || err != nil {
			return
		}
	}
}

// ensure makes sure the entry file exists. Concurrent calls for the same
// entry share one build.
func (s *Store) ensure(ctx context.Context, e *Entry, src Source) error {
	if err := s.prepare(e.Root); err != nil {
		return err
	}
	if s.fs.Exists(e.file) {
		s.metrics.hit()
		s.logger.Debug("cache hit", "entry", e.String())
		return nil
	}
	_, err, _ := s.builds.Do(e.file, func() (any, error) {
		if s.fs.Exists(e.file) {
			return nil, nil
		}
		return nil, s.build(ctx, e, src)
	})
	return err
}

func (s *Store) build(ctx context.Context, e *Entry, src Source) error {
	buildID := uuid.NewString()[:12]
	ctx, span := tracer.Start(ctx, "cache.build",
		trace.WithAttributes(
			attribute.String("build.id", buildID),
			attribute.String("entry.path", e.Path),
			attribute.Int64("entry.at", e.At.UnixMilli()),
		),
	)
	defer span.End()

	start := s.now()
	mode := "full"
	err := errNoBase
	if base, ok := s.NearestBefore(e.Root, e.Path, e.At); ok {
		err = s.buildIncremental(ctx, e, base, src)
		if err == nil {
			mode = "incremental"
		} else if ctx.Err() == nil {
			s.logger.Debug("incremental build failed, building in full", "build", buildID, "entry", e.String(), "base", base.String(), "error", err)
		}
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = s.buildFull(ctx, e, src)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	elapsed := s.now().Sub(start)
	span.SetAttributes(attribute.String("build.mode", mode))
	s.metrics.built(mode, elapsed)
	s.logger.Debug("cache entry built", "build", buildID, "mode", mode, "entry", e.String(), "duration", elapsed)
	return nil
}

var errNoBase = errors.New("no earlier entry")

func (s *Store) buildFull(ctx context.Context, e *Entry, src Source) error {
	return util.WriteAtomic(s.fs, e.file, func(w io.Writer) error {
		enc := snapshot.NewEncoder(w)
		for n, err := range src.Walk(ctx, e.Path, e.At) {
			if err != nil {
				return &sourceError{err: err}
			}
			if err := enc.Write(n); err != nil {
				return fmt.Errorf("encode %s: %w", e, err)
			}
		}
		return enc.Flush()
	})
}

func (s *Store) buildIncremental(ctx context.Context, e, base *Entry, src Source) error {
	recs, err := src.Changes(ctx, e.Path, base.At, e.At)
	if err != nil {
		return fmt.Errorf("changes since %s: %w", base, err)
	}
	set := changes.Merge(recs)

	s.Acquire(base)
	defer s.Release(base)

	r, err := s.fs.Open(base.file)
	if err != nil {
		return fmt.Errorf("open base %s: %w", base, err)
	}
	defer r.Close()

	return util.WriteAtomic(s.fs, e.file, func(w io.Writer) error {
		rp := &replayer{
			ctx:  ctx,
			src:  src,
			root: e.Path,
			at:   e.At,
			set:  set,
			enc:  snapshot.NewEncoder(w),
		}
		if err := rp.run(snapshot.Decode(r)); err != nil {
			return err
		}
		return rp.enc.Flush()
	})
}
