// Package storage keeps graded sheet previews as named blobs.
package storage

import (
	"errors"
	"io"
)

// ErrInvalidKey is returned for empty keys and keys that escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore stores opaque blobs under slash-separated keys.
type BlobStore interface {
	// Put writes r under key and returns the canonical key.
	Put(key string, r io.Reader) (string, error)
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}
