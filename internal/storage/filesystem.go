package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Filesystem stores objects below a base directory on local disk.
type Filesystem struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewFilesystem creates a filesystem store rooted at baseDir. Presigned URLs
// are built on baseURL and signed with secret.
func NewFilesystem(baseDir, baseURL, secret string) (*Filesystem, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Filesystem{
		baseDir: filepath.Clean(baseDir),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Store writes r to key, creating parent directories as needed.
func (fs *Filesystem) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	path, err := fs.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a sibling temp file so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to commit object: %w", err)
	}

	return key, nil
}

// Open returns a reader for the file at location.
func (fs *Filesystem) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	path, err := fs.resolve(location)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the file at location.
func (fs *Filesystem) Delete(ctx context.Context, location string) error {
	path, err := fs.resolve(location)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if a file exists at location.
func (fs *Filesystem) Exists(ctx context.Context, location string) (bool, error) {
	path, err := fs.resolve(location)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// Presign returns baseURL/location with an expiry and an HMAC signature
// that Verify accepts until the expiry passes.
func (fs *Filesystem) Presign(ctx context.Context, location string, ttl time.Duration) (string, error) {
	if _, err := fs.resolve(location); err != nil {
		return "", err
	}

	expires := fs.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", fs.sign(location, expires))

	return fs.baseURL + "/" + strings.TrimPrefix(location, "/") + "?" + q.Encode(), nil
}

// Verify checks a signature produced by Presign.
func (fs *Filesystem) Verify(location, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || fs.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(fs.sign(location, exp)))
}

func (fs *Filesystem) sign(location string, expires int64) string {
	mac := hmac.New(sha256.New, fs.secret)
	_, _ = fmt.Fprintf(mac, "%s\n%d", location, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a key to a path below baseDir, rejecting traversal.
func (fs *Filesystem) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}

	path := filepath.Join(fs.baseDir, filepath.FromSlash(key))
	if path != fs.baseDir && !strings.HasPrefix(path, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidKey)
	}
	if path == fs.baseDir {
		return "", ErrInvalidKey
	}

	return path, nil
}
