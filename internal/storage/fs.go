package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FSStore is a BlobStore rooted at a local directory.
type FSStore struct{ base string }

// NewFSStore creates the base directory if needed. An empty base means "./data".
func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{base: base}, nil
}

// Put writes the blob to a temporary file and renames it into place,
// so readers never observe a partial preview.
func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	key, dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob parent: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("commit blob %s: %w", key, err)
	}
	return key, nil
}

// Get opens the blob for reading. Missing keys return an error matching fs.ErrNotExist.
func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	_, p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Delete removes the blob. Deleting a missing key is not an error.
func (s *FSStore) Delete(key string) error {
	_, p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) resolve(key string) (string, string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if key == "" || clean == "" || clean == "." {
		return "", "", ErrInvalidKey
	}
	if clean != strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, filepath.Join(s.base, filepath.FromSlash(clean)), nil
}
