package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCS connects to bucket with application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
	}, nil
}

// Store uploads r to key.
func (g *GCS) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	w := g.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object: %w", err)
	}

	return key, nil
}

// Open returns a reader for the object at location.
func (g *GCS) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(location).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return r, nil
}

// Delete removes the object at location.
func (g *GCS) Delete(ctx context.Context, location string) error {
	err := g.bucket.Object(location).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks if an object exists at location.
func (g *GCS) Exists(ctx context.Context, location string) (bool, error) {
	_, err := g.bucket.Object(location).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gcs.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
}

// Presign returns a V4 signed GET URL for location.
func (g *GCS) Presign(ctx context.Context, location string, ttl time.Duration) (string, error) {
	u, err := g.bucket.SignedURL(location, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return u, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
