package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Cart cache

func cartCacheKey(ownerID string) string {
	return fmt.Sprintf("cart:%s", ownerID)
}

func (r *RedisRepository) cartTTL() time.Duration {
	if r.config != nil && r.config.CartTTL > 0 {
		return r.config.CartTTL
	}
	return 30 * time.Minute
}

func (r *RedisRepository) GetCart(ctx context.Context, ownerID string) (*models.Cart, error) {
	var c models.Cart
	err := r.GetJSON(ctx, cartCacheKey(ownerID), &c)
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCart caches c until the configured TTL or the cart's own expiry,
// whichever comes first.
func (r *RedisRepository) SetCart(ctx context.Context, c *models.Cart) error {
	ttl := r.cartTTL()
	if !c.ExpiresAt.IsZero() {
		if left := time.Until(c.ExpiresAt); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return r.DeleteCart(ctx, c.OwnerID)
	}
	return r.SetJSON(ctx, cartCacheKey(c.OwnerID), c, ttl)
}

func (r *RedisRepository) DeleteCart(ctx context.Context, ownerID string) error {
	return r.client.Del(ctx, cartCacheKey(ownerID)).Err()
}

// Distributed lock

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a serial.Locker spanning processes. Each holder writes a
// random token with SET NX and only deletes the key while it still owns it.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func (r *RedisRepository) Locker(ttl, retry time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{client: r.client, ttl: ttl, retry: retry}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	lockKey := "lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{lockKey}, token).Err()
	}()
	return fn(ctx)
}
