// Package indexcache persists fragment indexes and hands out one shared
// instance per fingerprint, building it at most once.
package indexcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Artifact names inside a location
const (
	ParamsFile    = "index.params"
	PeptideFile   = "peptideIndex.ind"
	FragmentFile  = "fragmentIndex.ind"
	locationStart = "index_"
)

// ErrNotFound is returned by a Store for an absent artifact
var ErrNotFound = errors.New("artifact not found")

// Store reads and writes named artifacts grouped by location
type Store interface {
	Get(ctx context.Context, location, name string) ([]byte, error)
	Put(ctx context.Context, location, name string, data []byte) error
	String() string
}

// LocalStore keeps artifacts in Root/<location>/<name>
type LocalStore struct {
	Root string
}

func (s LocalStore) path(location, name string) string {
	return filepath.Join(s.Root, location, name)
}

func (s LocalStore) Get(ctx context.Context, location, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(location, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path(location, name))
	}
	return b, err
}

// Put writes through a temporary file so readers never see a partial artifact
func (s LocalStore) Put(ctx context.Context, location, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.Root, location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(location, name))
}

func (s LocalStore) String() string { return s.Root }
