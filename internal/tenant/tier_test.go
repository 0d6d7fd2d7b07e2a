package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/cache"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// fakeRow implements pgx.Row over a single string column.
type fakeRow struct {
	tier string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.tier
	return nil
}

// fakeQuerier returns a fixed tier for every lookup, regardless of the
// tenant queried, so the gate's caching behavior can be exercised without a
// real connection pool.
type fakeQuerier struct {
	tier  string
	err   error
	calls int
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	return fakeRow{tier: q.tier, err: q.err}
}

func TestTierGate_BelowGrowthTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tier string
		want bool
	}{
		{"starter", true},
		{"trial", true},
		{"growth", false},
		{"enterprise", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.tier, func(t *testing.T) {
			t.Parallel()
			q := &fakeQuerier{tier: tc.tier}
			gate := tenant.NewTierGate(q, cache.NewMemory[bool]())

			below, err := gate.IsBelowGrowthTier(context.Background(), uuid.New())
			require.NoError(t, err)
			require.Equal(t, tc.want, below)
		})
	}
}

func TestTierGate_CachesLookup(t *testing.T) {
	t.Parallel()

	q := &fakeQuerier{tier: "starter"}
	gate := tenant.NewTierGate(q, cache.NewMemory[bool]())
	tenantID := uuid.New()

	_, err := gate.IsBelowGrowthTier(context.Background(), tenantID)
	require.NoError(t, err)
	_, err = gate.IsBelowGrowthTier(context.Background(), tenantID)
	require.NoError(t, err)

	require.Equal(t, 1, q.calls, "second call for the same tenant should be served from cache")
}
