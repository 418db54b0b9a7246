package preview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
)

// Store owns the profile file behind the preview. Saves made through the
// store and edits made by other programs both end up in Snapshot.
type Store struct {
	path  string
	order []accel.Key

	mu        sync.Mutex
	profile   accel.Profile
	fallbacks []accel.FieldFallback
	stamp     fileStamp
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	modTime int64 // UnixNano
	size    int64
}

func stampOf(info fs.FileInfo) fileStamp {
	return fileStamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
}

// NewStore returns a store for path holding the defaults until Load is
// called. order is the key order used on save.
func NewStore(path string, order []accel.Key) *Store {
	return &Store{
		path:    path,
		order:   slices.Clone(order),
		profile: accel.Defaults(),
	}
}

func (s *Store) Path() string { return s.path }

// Load reads the file. On failure the current profile is kept and the
// error matches accel.ErrSourceUnavailable.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return &accel.SourceError{Op: "read", Path: s.path, Err: err}
	}
	p, fallbacks, err := accel.LoadFile(s.path)
	if err != nil {
		return err
	}
	s.profile = p
	s.fallbacks = fallbacks
	s.stamp = stampOf(info)
	return nil
}

// Snapshot returns the current profile and the fallbacks from its last load.
func (s *Store) Snapshot() (accel.Profile, []accel.FieldFallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, slices.Clone(s.fallbacks)
}

// Save writes p and makes it current.
func (s *Store) Save(p accel.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := accel.SaveFile(s.path, p, s.order); err != nil {
		return err
	}
	s.profile = p
	s.fallbacks = nil
	if info, err := os.Stat(s.path); err == nil {
		s.stamp = stampOf(info)
	}
	return nil
}

// ReloadIfChanged reloads the file when its size or modification time moved
// since the last load or save. A missing file is not a change.
func (s *Store) ReloadIfChanged() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat profile: %w", err)
	}
	if stampOf(info) == s.stamp {
		return false, nil
	}
	if err := s.loadLocked(); err != nil {
		return false, err
	}
	return true, nil
}
