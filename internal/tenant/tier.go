package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cloudledger/jobcore/internal/cache"
)

// growthTierTTL bounds how long a tier lookup is cached before the zombie
// scanner re-checks tenant_subscriptions (§4.6 step 6 tier gate).
const growthTierTTL = 5 * time.Minute

// querier is the minimal surface TierGate needs against a pool connection.
// Satisfied by *pgxpool.Pool.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TierGate answers zombiescan.TierLookup by consulting tenant_subscriptions,
// cached to avoid a round trip on every plugin's annotate call within a scan.
type TierGate struct {
	db    querier
	cache cache.Cache[bool]
}

// NewTierGate builds a TierGate backed by db and an in-memory cache with a
// fixed 5-minute TTL. Pass a cache.NewRedis instance instead when the
// lookup should be shared across worker replicas.
func NewTierGate(db querier, c cache.Cache[bool]) *TierGate {
	if c == nil {
		c = cache.NewMemory[bool]()
	}
	return &TierGate{db: db, cache: c}
}

// IsBelowGrowthTier reports whether tenantID's active subscription tier is
// "starter" or "trial" (anything below "growth"), satisfying
// zombiescan.TierLookup.
func (g *TierGate) IsBelowGrowthTier(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("tenant_tier_below_growth:%s", tenantID)

	return cache.GetOrSet(ctx, g.cache, key, func(ctx context.Context) (bool, time.Duration, error) {
		var tier string
		row := g.db.QueryRow(ctx,
			`SELECT tier FROM tenant_subscriptions WHERE tenant_id = $1 AND status = 'active' LIMIT 1`,
			tenantID)
		if err := row.Scan(&tier); err != nil {
			return false, 0, fmt.Errorf("tier gate: lookup tenant %s: %w", tenantID, err)
		}

		switch tier {
		case "starter", "trial":
			return true, growthTierTTL, nil
		default:
			return false, growthTierTTL, nil
		}
	})
}
