package indexcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/524D/mzsearch/internal/index"
)

// ResourceError reports an index artifact that could not be read or written
type ResourceError struct {
	Location    string
	Fingerprint index.Fingerprint
	Err         error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("index %s at %s: %v", e.Fingerprint, e.Location, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// BuildFunc constructs an index when no stored copy can be used
type BuildFunc func(ctx context.Context) (*index.Index, error)

// Cache hands out one index per fingerprint. Stores are searched in order
// and new indexes are written to the first one.
type Cache struct {
	stores []Store
	logger *slog.Logger

	mu    sync.Mutex
	ready map[index.Fingerprint]*index.Index
	group singleflight.Group

	builds atomic.Int64
}

// New returns a cache over stores. Without stores indexes live in memory only.
func New(logger *slog.Logger, stores ...Store) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		stores: stores,
		logger: logger,
		ready:  make(map[index.Fingerprint]*index.Index),
	}
}

// Location returns the location name artifacts of fp are stored under
func Location(fp index.Fingerprint) string {
	return locationStart + fp.String()
}

// Builds returns how many indexes this cache has constructed
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

func (c *Cache) lookup(fp index.Fingerprint) *index.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready[fp]
}

// GetOrBuild returns the index for fp. params is the canonical parameter
// text fp was computed from. Concurrent callers with the same fingerprint
// share one load or build.
func (c *Cache) GetOrBuild(ctx context.Context, params []byte, fp index.Fingerprint,
	build BuildFunc) (*index.Index, error) {

	if x := c.lookup(fp); x != nil {
		return x, nil
	}
	v, err, _ := c.group.Do(fp.String(), func() (any, error) {
		if x := c.lookup(fp); x != nil {
			return x, nil
		}
		x, err := c.load(ctx, params, fp)
		if err != nil {
			return nil, err
		}
		if x == nil {
			c.logger.Info("building index", "fingerprint", fp.String()[:12])
			if x, err = build(ctx); err != nil {
				return nil, err
			}
			c.builds.Add(1)
			if err := c.persist(ctx, params, x); err != nil {
				return nil, err
			}
		}
		c.mu.Lock()
		c.ready[fp] = x
		c.mu.Unlock()
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*index.Index), nil
}

// load returns nil without error when no store holds a usable copy
func (c *Cache) load(ctx context.Context, params []byte, fp index.Fingerprint) (*index.Index, error) {
	loc := Location(fp)
	for _, s := range c.stores {
		where := s.String() + "/" + loc
		text, err := s.Get(ctx, loc, ParamsFile)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &ResourceError{Location: where, Fingerprint: fp, Err: err}
		}
		if !bytes.Equal(text, params) {
			c.logger.Warn("index parameters differ, ignoring stored index", "location", where)
			continue
		}
		peps, err := s.Get(ctx, loc, PeptideFile)
		if err != nil {
			return nil, &ResourceError{Location: where, Fingerprint: fp, Err: err}
		}
		frags, err := s.Get(ctx, loc, FragmentFile)
		if err != nil {
			return nil, &ResourceError{Location: where, Fingerprint: fp, Err: err}
		}
		x, err := index.ReadIndex(bytes.NewReader(peps), bytes.NewReader(frags), fp)
		switch {
		case errors.Is(err, index.ErrFingerprintMismatch), errors.Is(err, index.ErrSchemaVersion):
			c.logger.Warn("stale index, rebuilding", "location", where, "err", err)
			continue
		case err != nil:
			return nil, &ResourceError{Location: where, Fingerprint: fp, Err: err}
		}
		c.logger.Info("read index", "location", where, "peptides", len(x.Peptides))
		return x, nil
	}
	return nil, nil
}

// persist writes the params file last, so its presence marks a complete entry
func (c *Cache) persist(ctx context.Context, params []byte, x *index.Index) error {
	if len(c.stores) == 0 {
		return nil
	}
	s, loc := c.stores[0], Location(x.Fingerprint)
	fail := func(err error) error {
		return &ResourceError{Location: s.String() + "/" + loc, Fingerprint: x.Fingerprint, Err: err}
	}
	var peps, frags bytes.Buffer
	if err := x.WritePeptideIndex(&peps); err != nil {
		return fail(err)
	}
	if err := x.WriteFragmentIndex(&frags); err != nil {
		return fail(err)
	}
	for _, a := range []struct {
		name string
		data []byte
	}{{PeptideFile, peps.Bytes()}, {FragmentFile, frags.Bytes()}, {ParamsFile, params}} {
		if err := s.Put(ctx, loc, a.name, a.data); err != nil {
			return fail(err)
		}
	}
	c.logger.Info("wrote index", "location", s.String()+"/"+loc,
		"peptides", len(x.Peptides), "fragments", x.NumFragments())
	return nil
}
