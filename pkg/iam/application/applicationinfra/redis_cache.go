package applicationinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/redis/go-redis/v9"
)

const (
	redisTenantKeyPrefix = "tenant:pk:"
	redisTenantIDPrefix  = "tenant:id:"
)

// RedisTenantCache caches resolved tenants under both the public key and
// the application id. Entries expire after ttl, which bounds how long a
// deactivation can go unnoticed if an invalidation is lost.
type RedisTenantCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTenantCache(client *redis.Client, ttl time.Duration) *RedisTenantCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisTenantCache{client: client, ttl: ttl}
}

func tenantKey(publicKey string) string {
	return redisTenantKeyPrefix + publicKey
}

func tenantIDKey(id kernel.ApplicationID) string {
	return redisTenantIDPrefix + id.String()
}

func (c *RedisTenantCache) GetByPublicKey(ctx context.Context, publicKey string) (*kernel.TenantContext, bool) {
	return c.get(ctx, tenantKey(publicKey))
}

func (c *RedisTenantCache) GetByID(ctx context.Context, id kernel.ApplicationID) (*kernel.TenantContext, bool) {
	return c.get(ctx, tenantIDKey(id))
}

func (c *RedisTenantCache) Set(ctx context.Context, tenant kernel.TenantContext) {
	data, err := json.Marshal(tenant)
	if err != nil {
		return
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tenantKey(tenant.PublicKey), data, c.ttl)
		pipe.Set(ctx, tenantIDKey(tenant.ApplicationID), data, c.ttl)
		return nil
	})
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to cache tenant")
	}
}

func (c *RedisTenantCache) Invalidate(ctx context.Context, tenant kernel.TenantContext) {
	if err := c.client.Del(ctx, tenantKey(tenant.PublicKey), tenantIDKey(tenant.ApplicationID)).Err(); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("Failed to invalidate cached tenant")
	}
}

// get treats any redis failure as a miss so resolution falls through to the repository
func (c *RedisTenantCache) get(ctx context.Context, key string) (*kernel.TenantContext, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.WithContext(ctx).WithError(err).Warn("Tenant cache read failed")
		}
		return nil, false
	}

	var tenant kernel.TenantContext
	if err := json.Unmarshal(data, &tenant); err != nil {
		return nil, false
	}
	return &tenant, true
}
