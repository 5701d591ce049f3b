package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedProvider puts a Redis read-through cache in front of another Store.
// Writes go to the inner store first and then evict the cached entry.
// Passwords never reach Redis: they stay in process memory, and an entry whose
// password this process has not seen is read from the inner store again.
type cachedProvider struct {
	inner  Store
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zap.SugaredLogger

	mu        sync.RWMutex
	passwords map[string]string
}

type cacheEntry struct {
	Config Config `json:"config"`
	Secret bool   `json:"secret,omitempty"`
}

// NewCachedProvider wraps inner with a Redis cache. A nil client returns inner unchanged.
func NewCachedProvider(inner Store, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Store {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &cachedProvider{inner: inner, rdb: rdb, ttl: ttl, prefix: "tenancy:config:", log: log, passwords: map[string]string{}}
}

func (c *cachedProvider) key(tenant string) string { return c.prefix + tenant }

func (c *cachedProvider) ConfigFor(ctx context.Context, tenant string) (Config, error) {
	raw, err := c.rdb.Get(ctx, c.key(tenant)).Bytes()
	if err == nil {
		if cfg, ok := c.decode(tenant, raw); ok {
			return cfg, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// cache outage degrades to the inner store
		c.log.Warnw("tenant cache get", "tenant", tenant, "err", err)
	}
	cfg, err := c.inner.ConfigFor(ctx, tenant)
	if err != nil {
		return Config{}, err
	}
	if raw, err := c.encode(tenant, cfg); err == nil {
		if err := c.rdb.Set(ctx, c.key(tenant), raw, c.ttl).Err(); err != nil {
			c.log.Warnw("tenant cache set", "tenant", tenant, "err", err)
		}
	}
	return cfg, nil
}

// encode keeps cfg's password in memory and returns the entry without it.
func (c *cachedProvider) encode(tenant string, cfg Config) ([]byte, error) {
	e := cacheEntry{Config: cfg}
	c.mu.Lock()
	if cfg.Password != "" {
		c.passwords[tenant] = cfg.Password
		e.Config.Password, e.Secret = "", true
	} else {
		delete(c.passwords, tenant)
	}
	c.mu.Unlock()
	return json.Marshal(e)
}

// decode reports false when raw is unreadable or its password is unknown here.
func (c *cachedProvider) decode(tenant string, raw []byte) (Config, bool) {
	var e cacheEntry
	if json.Unmarshal(raw, &e) != nil {
		return Config{}, false
	}
	if !e.Secret {
		return e.Config, true
	}
	c.mu.RLock()
	pw, ok := c.passwords[tenant]
	c.mu.RUnlock()
	if !ok {
		return Config{}, false
	}
	e.Config.Password = pw
	return e.Config, true
}

func (c *cachedProvider) List(ctx context.Context) ([]string, error) {
	return c.inner.List(ctx)
}

func (c *cachedProvider) Save(ctx context.Context, name string, cfg Config) error {
	if err := c.inner.Save(ctx, name, cfg); err != nil {
		return err
	}
	return c.evict(ctx, name)
}

func (c *cachedProvider) Remove(ctx context.Context, name string) error {
	if err := c.inner.Remove(ctx, name); err != nil {
		return err
	}
	return c.evict(ctx, name)
}

func (c *cachedProvider) evict(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.passwords, name)
	c.mu.Unlock()
	if err := c.rdb.Del(ctx, c.key(name)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
