package cache

import (
	"context"
	"testing"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, _ := s.SetNX(ctx, "evt_1", "1", time.Hour)
	second, _ := s.SetNX(ctx, "evt_1", "1", time.Hour)
	assert.True(t, first)
	assert.False(t, second)
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "order_seq:20260101", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestProductCache(t *testing.T) {
	ctx := context.Background()
	c := NewProductCache(NewMemoryStore())

	_, ok := c.Products(ctx)
	assert.False(t, ok)

	c.SetProducts(ctx, []models.Product{{Name: "Pistaches"}})
	got, ok := c.Products(ctx)
	require.True(t, ok)
	assert.Equal(t, "Pistaches", got[0].Name)

	c.Invalidate(ctx)
	_, ok = c.Products(ctx)
	assert.False(t, ok)

	var nilCache *ProductCache
	nilCache.Invalidate(ctx)
}
