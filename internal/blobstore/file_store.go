// Package blobstore provides a filesystem-backed key/value blob store.
//
// It is adapted from the teacher's NATS JetStream object store
// (internal/objectstore/nats_store.go in the grounding corpus): the same
// Get/Put/Delete shape, but backed by a plain directory of files at the
// user config root instead of a networked bucket, matching the on-disk
// artefacts SPEC_FULL §6 specifies for both the document cache (§4.15) and
// the voice-cache journal (§4.10). Keeping one implementation behind one
// interface means both stores share the same atomicity and corruption
// handling instead of reinventing it twice.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get when key has no entry.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is a filesystem-backed blob store rooted at a single directory.
// Every key maps to exactly one file directly inside Dir; callers that need
// namespacing (document cache vs. voice-cache journal) use distinct Dirs.
type Store struct {
	dir string
}

// New creates the backing directory (if absent) and returns a Store rooted
// there.
func New(dir string) (*Store, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create blobstore directory '%s': %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

// Get reads the bytes stored under key. It returns ErrNotFound if the file
// does not exist.
func (s *Store) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to read blob '%s': %w", key, err)
	}

	return data, nil
}

// Put writes data under key atomically: a temp file in the same directory
// is written and fsynced, then renamed over the destination, so a crash
// mid-write never leaves a half-written file visible under key.
func (s *Store) Put(key string, data []byte) error {
	dest := s.path(key)

	tmp, err := os.CreateTemp(s.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for blob '%s': %w", key, err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()

	if writeErr != nil || syncErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write blob '%s': write=%v sync=%v close=%v", key, writeErr, syncErr, closeErr)
	}

	err = os.Rename(tmpName, dest)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to commit blob '%s': %w", key, err)
	}

	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob '%s': %w", key, err)
	}

	return nil
}

// List returns every key currently present in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobstore directory '%s': %w", s.dir, err)
	}

	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		keys = append(keys, entry.Name())
	}

	return keys, nil
}

// Clear removes every entry in the store.
func (s *Store) Clear() error {
	keys, err := s.List()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := s.Delete(key); delErr != nil {
			return delErr
		}
	}

	return nil
}
