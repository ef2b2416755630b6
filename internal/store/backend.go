package store

import (
	"context"
	"errors"
)

// ErrConflict is returned by CompareAndSwap when the stored version moved.
var ErrConflict = errors.New("snapshot version conflict")

// Backend persists one versioned blob per namespace.
//
// Load returns a nil blob and version 0 when the namespace was never written.
// CompareAndSwap stores data only if the current version equals expect, then
// bumps the version; otherwise it returns ErrConflict.
type Backend interface {
	Load(ctx context.Context, namespace string) ([]byte, int64, error)
	CompareAndSwap(ctx context.Context, namespace string, data []byte, expect int64) error
	Close() error
}
