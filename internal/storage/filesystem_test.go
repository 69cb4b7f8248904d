package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir(), "http://media.local/files/", "test-secret")
	require.NoError(t, err)
	return fs
}

func TestFilesystem_StoreOpenDelete(t *testing.T) {
	t.Parallel()

	fs := newTestFilesystem(t)
	ctx := context.Background()

	loc, err := fs.Store(ctx, "uploads/a/song.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/a/song.mp3", loc)

	ok, err := fs.Exists(ctx, loc)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := fs.Open(ctx, loc)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))

	var buf bytes.Buffer
	n, err := Copy(ctx, fs, loc, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	require.NoError(t, fs.Delete(ctx, loc))
	require.NoError(t, fs.Delete(ctx, loc), "deleting twice is not an error")

	ok, err = fs.Exists(ctx, loc)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.Open(ctx, loc)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystem_RejectsTraversal(t *testing.T) {
	t.Parallel()

	fs := newTestFilesystem(t)
	ctx := context.Background()

	_, err := fs.Store(ctx, "../escape.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = fs.Open(ctx, "a/../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = fs.Exists(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFilesystem_Presign(t *testing.T) {
	t.Parallel()

	fs := newTestFilesystem(t)
	now := time.Unix(1_700_000_000, 0)
	fs.now = func() time.Time { return now }

	raw, err := fs.Presign(context.Background(), "images/cat.png", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/files/images/cat.png", u.Path)

	q := u.Query()
	assert.Equal(t, "1700000060", q.Get("expires"))
	assert.True(t, fs.Verify("images/cat.png", q.Get("expires"), q.Get("signature")))
	assert.False(t, fs.Verify("images/dog.png", q.Get("expires"), q.Get("signature")))

	now = now.Add(2 * time.Minute)
	assert.False(t, fs.Verify("images/cat.png", q.Get("expires"), q.Get("signature")), "expired")
}
