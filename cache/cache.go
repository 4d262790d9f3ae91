// Package cache keeps published tenant pages close to the demo handler.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/tplumina/lumina/models"
)

// ErrMiss is returned when the slug is not cached.
var ErrMiss = errors.New("cache miss")

// TenantCache stores tenants by slug.
type TenantCache interface {
	Get(ctx context.Context, slug string) (*models.Tenant, error)
	Set(ctx context.Context, t *models.Tenant) error
	Invalidate(ctx context.Context, slugs ...string) error
}

const keyPrefix = "lumina:tenant:slug:"

// SettleDelay is how long after a tenant write the slug is dropped again.
// A demo read that loaded the tenant before the write committed stores it
// after the first invalidation; the second one removes it.
const SettleDelay = 2 * time.Second

const settleTimeout = 5 * time.Second

func key(slug string) string {
	return keyPrefix + slug
}

// Redis is a TenantCache backed by a redis client.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{
		Client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		TTL:    ttl,
	}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, slug string) (*models.Tenant, error) {
	raw, err := r.Client.Get(ctx, key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var t models.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		// a corrupt entry is as good as none
		_ = r.Client.Del(ctx, key(slug)).Err()
		return nil, ErrMiss
	}
	return &t, nil
}

func (r *Redis) Set(ctx context.Context, t *models.Tenant) error {
	if t == nil || t.Slug == "" {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key(t.Slug), raw, r.TTL).Err()
}

func (r *Redis) Invalidate(ctx context.Context, slugs ...string) error {
	keys := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s != "" {
			keys = append(keys, key(s))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

// InvalidateSettled drops slugs now and once more after delay. Only the
// first invalidation's error is returned.
func InvalidateSettled(ctx context.Context, c TenantCache, delay time.Duration, slugs ...string) error {
	err := c.Invalidate(ctx, slugs...)
	if delay > 0 {
		time.AfterFunc(delay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
			defer cancel()
			_ = c.Invalidate(ctx, slugs...)
		})
	}
	return err
}

func (r *Redis) Close() error {
	return r.Client.Close()
}

// Noop never holds anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.Tenant, error) { return nil, ErrMiss }
func (Noop) Set(context.Context, *models.Tenant) error           { return nil }
func (Noop) Invalidate(context.Context, ...string) error         { return nil }
