package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	_, err := m.Presign(ctx, "a.txt", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	loc, err := m.Store(ctx, "a.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	r, err := m.Open(ctx, loc)
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "hello", string(data))

	u, err := m.Presign(ctx, loc, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "memory://a.txt?expires="))

	assert.Equal(t, []string{"a.txt"}, m.Keys())
	require.NoError(t, m.Delete(ctx, loc))

	_, err = m.Open(ctx, loc)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Store(ctx, "", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
