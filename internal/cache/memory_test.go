package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Second)
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCache_IncrWithExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.IncrWithExpiry(ctx, "rl", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	now = now.Add(2 * time.Minute)
	n, err := c.IncrWithExpiry(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
