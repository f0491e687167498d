// Package blobstore keeps fetched artifacts as local files that stand in for
// transient handles. Every blob must be released when it is superseded.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"jobfetch/internal/util"
)

// ErrReleased is returned when a released blob is read or exported.
var ErrReleased = errors.New("blob already released")

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("blob store closed")

// Store owns a private directory of blobs.
type Store struct {
	dir string

	mu     sync.Mutex
	live   map[string]*Blob
	closed bool
}

// Open creates a fresh private directory under base (created if missing).
func Open(base string) (*Store, error) {
	if err := util.EnsureDir(base); err != nil {
		return nil, fmt.Errorf("blob base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "session-")
	if err != nil {
		return nil, fmt.Errorf("blob session dir: %w", err)
	}
	return &Store{dir: dir, live: make(map[string]*Blob)}, nil
}

// Dir returns the store's private directory.
func (s *Store) Dir() string { return s.dir }

// Put copies r into a new blob. name is the display name, not the on-disk path.
func (s *Store) Put(name string, r io.Reader) (*Blob, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	f, err := os.CreateTemp(s.dir, "blob-*")
	if err != nil {
		return nil, fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write blob: %w", err)
	}

	b := &Blob{store: s, name: name, path: f.Name(), size: n}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = os.Remove(b.path)
		return nil, ErrClosed
	}
	s.live[b.path] = b
	return b, nil
}

// Live returns the number of blobs not yet released.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close releases every live blob and removes the store directory.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	blobs := make([]*Blob, 0, len(s.live))
	for _, b := range s.live {
		blobs = append(blobs, b)
	}
	s.mu.Unlock()

	var err error
	for _, b := range blobs {
		err = multierr.Append(err, b.Release())
	}
	return multierr.Append(err, os.RemoveAll(s.dir))
}

func (s *Store) forget(b *Blob) {
	s.mu.Lock()
	delete(s.live, b.path)
	s.mu.Unlock()
}

// Blob is a handle to one fetched artifact.
type Blob struct {
	store *Store
	name  string
	path  string
	size  int64

	once     sync.Once
	mu       sync.RWMutex
	released bool
}

func (b *Blob) Name() string { return b.name }
func (b *Blob) Path() string { return b.path }
func (b *Blob) Size() int64  { return b.size }

// Released reports whether Release has been called.
func (b *Blob) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}

// Release deletes the backing file. Only the first call does any work.
func (b *Blob) Release() error {
	var err error
	b.once.Do(func() {
		b.mu.Lock()
		b.released = true
		b.mu.Unlock()
		err = util.RemoveIfExists(b.path)
		b.store.forget(b)
	})
	return err
}

// Open returns a reader over the blob contents.
func (b *Blob) Open() (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return nil, ErrReleased
	}
	return os.Open(b.path)
}

// Export copies the blob into dir under its sanitised display name and
// returns the written path. Existing files are never overwritten.
func (b *Blob) Export(dir string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return "", ErrReleased
	}
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure output dir: %w", err)
	}

	src, err := os.Open(b.path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst := util.UniquePath(dir, util.SanitizeFilename(b.name))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(dst), nil
}
