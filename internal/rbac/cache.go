package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const grantsVersionKey = "rbac:grants:version"

type cachedGrant struct {
	Found bool  `json:"found"`
	Grant Grant `json:"grant"`
}

// CachedGrants caches a GrantSource in Redis. Entries are keyed by a version that
// Invalidate bumps, so any role, permission or assignment change retires every entry at once.
//
// When the bump fails this instance reads through to the source and retries the bump on
// every lookup until it lands. Other instances keep serving their entries until the bump
// lands or the TTL expires, so the TTL bounds how long a revoked grant may stay live.
type CachedGrants struct {
	next   GrantSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
	stale  atomic.Bool
}

// DefaultGrantTTL is the cache lifetime used when none is configured.
const DefaultGrantTTL = time.Minute

// NewCachedGrants wraps next. A nil client disables caching.
func NewCachedGrants(next GrantSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGrants {
	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}
	return &CachedGrants{next: next, client: client, ttl: ttl, logger: logger}
}

// Grant implements GrantSource.
func (c *CachedGrants) Grant(ctx context.Context, tenantID, userID, businessUnitID uuid.UUID) (Grant, bool, error) {
	if c.client == nil {
		return c.next.Grant(ctx, tenantID, userID, businessUnitID)
	}
	if c.stale.Load() {
		if err := c.bump(ctx); err != nil {
			c.warn(ctx, "rbac cache pending invalidation", err)
			return c.next.Grant(ctx, tenantID, userID, businessUnitID)
		}
	}
	version, err := c.version(ctx)
	if err != nil {
		c.warn(ctx, "rbac cache version", err)
		return c.next.Grant(ctx, tenantID, userID, businessUnitID)
	}
	key := fmt.Sprintf("rbac:grants:%d:%s:%s:%s", version, tenantID, userID, businessUnitID)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var hit cachedGrant
		if err := json.Unmarshal(payload, &hit); err == nil {
			return hit.Grant, hit.Found, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.warn(ctx, "rbac cache read", err)
	}

	res := c.group.DoChan(key, func() (any, error) {
		grant, found, err := c.next.Grant(context.WithoutCancel(ctx), tenantID, userID, businessUnitID)
		if err != nil {
			return nil, err
		}
		entry := cachedGrant{Found: found, Grant: grant}
		if raw, err := json.Marshal(entry); err == nil {
			if err := c.client.Set(context.WithoutCancel(ctx), key, raw, c.ttl).Err(); err != nil {
				c.warn(ctx, "rbac cache write", err)
			}
		}
		return entry, nil
	})
	select {
	case <-ctx.Done():
		return Grant{}, false, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return Grant{}, false, r.Err
		}
		entry := r.Val.(cachedGrant)
		return entry.Grant, entry.Found, nil
	}
}

// Invalidate retires every cached grant. On error the instance stops trusting its
// cache until a later bump succeeds.
func (c *CachedGrants) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	c.stale.Store(true)
	return c.bump(ctx)
}

func (c *CachedGrants) bump(ctx context.Context) error {
	if err := c.client.Incr(ctx, grantsVersionKey).Err(); err != nil {
		return fmt.Errorf("rbac: bump grants version: %w", err)
	}
	c.stale.Store(false)
	return nil
}

func (c *CachedGrants) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, grantsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *CachedGrants) warn(ctx context.Context, msg string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, slog.Any("error", err))
	}
}
