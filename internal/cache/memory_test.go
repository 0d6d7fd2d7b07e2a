package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/cache"
)

func TestMemory_SetGet(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[string]()
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestMemory_GetMissing(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[string]()
	defer m.Close()

	_, err := m.Get(context.Background(), "missing")
	require.True(t, errors.Is(err, cache.ErrNotFound))
}

func TestMemory_Expiry(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[string]()
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", 5*time.Millisecond))

	time.Sleep(15 * time.Millisecond)

	_, err := m.Get(ctx, "k")
	require.True(t, errors.Is(err, cache.ErrNotFound))
}

func TestMemory_Delete(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[string]()
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, m.Delete(ctx, "k"))

	_, err := m.Get(ctx, "k")
	require.True(t, errors.Is(err, cache.ErrNotFound))
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[string]()
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, m.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, m.Clear(ctx))

	has, err := m.Has(ctx, "a")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGetOrSet(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory[int]()
	defer m.Close()

	ctx := context.Background()
	calls := 0
	loader := func(ctx context.Context) (int, time.Duration, error) {
		calls++
		return 42, time.Minute, nil
	}

	v, err := cache.GetOrSet(ctx, m, "answer", loader)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	v, err = cache.GetOrSet(ctx, m, "answer", loader)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls, "second call should be served from cache, not reinvoke loader")
}
