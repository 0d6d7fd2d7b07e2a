package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/ratelimit"
)

func TestLimiter_AllowMemory(t *testing.T) {
	t.Parallel()

	t.Run("allows up to max actions", func(t *testing.T) {
		t.Parallel()
		l := ratelimit.New(nil, 2, time.Hour)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("tracks each tenant/action pair independently", func(t *testing.T) {
		t.Parallel()
		l := ratelimit.New(nil, 1, time.Hour)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "tenant-2", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok, "a different tenant must not share tenant-1's counter")

		ok, err = l.Allow(ctx, "tenant-1", "stop_instance")
		require.NoError(t, err)
		require.True(t, ok, "a different action must not share the restart_instance counter")
	})

	t.Run("resets after the window elapses", func(t *testing.T) {
		t.Parallel()
		l := ratelimit.New(nil, 1, 10*time.Millisecond)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.False(t, ok)

		time.Sleep(20 * time.Millisecond)

		ok, err = l.Allow(ctx, "tenant-1", "restart_instance")
		require.NoError(t, err)
		require.True(t, ok, "window should have reset")
	})
}
