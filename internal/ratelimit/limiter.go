// Package ratelimit enforces the per-tenant remediation action cap: at most
// 50 actions per action-type per hour (SPEC_FULL.md §5). Grounded on
// wisbric-nightowl's internal/auth/ratelimit.go INCR+EXPIRE fixed-window
// pattern, generalized from per-IP login attempts to per-(tenant,action)
// remediation counts, with an in-process memory fallback when REDIS_URL is
// unset.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxActions is the per-action-type-per-hour cap (§5).
const DefaultMaxActions = 50

// DefaultWindow is the fixed window duration.
const DefaultWindow = time.Hour

// Limiter enforces a fixed-window cap on (tenantID, action) pairs.
type Limiter struct {
	redis      redis.UniversalClient
	maxActions int
	window     time.Duration

	mu       sync.Mutex
	memory   map[string]*memoryCounter
}

type memoryCounter struct {
	count     int
	expiresAt time.Time
}

// New builds a Limiter. rdb may be nil, in which case the limiter falls back
// to an in-process memory counter (per-worker, not distributed).
func New(rdb redis.UniversalClient, maxActions int, window time.Duration) *Limiter {
	if maxActions <= 0 {
		maxActions = DefaultMaxActions
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		redis:      rdb,
		maxActions: maxActions,
		window:     window,
		memory:     make(map[string]*memoryCounter),
	}
}

// Allow reports whether tenantID may perform action again this window,
// incrementing the counter as a side effect (handler.RateLimiter contract).
func (l *Limiter) Allow(ctx context.Context, tenantID, action string) (bool, error) {
	if l.redis != nil {
		return l.allowRedis(ctx, tenantID, action)
	}
	return l.allowMemory(tenantID, action), nil
}

func (l *Limiter) allowRedis(ctx context.Context, tenantID, action string) (bool, error) {
	key := fmt.Sprintf("remediation_ratelimit:%s:%s", tenantID, action)

	count, err := l.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("ratelimit: check: %w", err)
	}
	if count >= l.maxActions {
		return false, nil
	}

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: record: %w", err)
	}
	if incr.Val() == 1 {
		l.redis.Expire(ctx, key, l.window)
	}
	return true, nil
}

func (l *Limiter) allowMemory(tenantID, action string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := tenantID + ":" + action
	now := time.Now()

	counter, ok := l.memory[key]
	if !ok || now.After(counter.expiresAt) {
		counter = &memoryCounter{count: 0, expiresAt: now.Add(l.window)}
		l.memory[key] = counter
	}
	if counter.count >= l.maxActions {
		return false
	}
	counter.count++
	return true
}
