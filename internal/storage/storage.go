// Package storage stores artifact bytes and hands out time-limited URLs for
// them. Keys are slash separated and relative to the backend root.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists at a key.
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned for empty keys or keys escaping the backend root.
var ErrInvalidKey = errors.New("invalid storage key")

// Storage is the object store used by processing jobs.
type Storage interface {
	// Store writes r at key and returns the location reference of the object.
	Store(ctx context.Context, key string, r io.Reader) (string, error)

	// Open returns a reader for the object at location.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes the object at location. Deleting a missing object is not an error.
	Delete(ctx context.Context, location string) error

	// Presign returns a URL that grants read access to location for ttl.
	Presign(ctx context.Context, location string, ttl time.Duration) (string, error)

	// Exists reports whether an object exists at location.
	Exists(ctx context.Context, location string) (bool, error)
}

// Copy streams the object at location into w.
func Copy(ctx context.Context, s Storage, location string, w io.Writer) (int64, error) {
	r, err := s.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	return io.Copy(w, r)
}
