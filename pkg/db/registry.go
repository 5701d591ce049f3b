package db

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tenantdb/pkg/tenants"
)

// Registry owns the connection handles, keyed by spec name.
// Tenants that only differ by schema resolve to the same spec name and share a Pool.
// Safe for concurrent use.
type Registry struct {
	log       *zap.SugaredLogger
	perConfig bool

	mu      sync.RWMutex
	pools   map[string]Pool
	openers map[string]Opener
	opened  int

	// one open in flight per spec; the lock is never held while dialing
	opening singleflight.Group
}

// NewRegistry creates a registry with the PostgreSQL and MySQL openers installed.
// perConfig keys handles by the whole config (or its pool key) instead of host+database.
func NewRegistry(log *zap.SugaredLogger, perConfig bool) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		log:       log,
		perConfig: perConfig,
		pools:     map[string]Pool{},
		openers: map[string]Opener{
			tenants.AdapterPostgreSQL: OpenPostgres,
			tenants.AdapterMySQL:      OpenMySQL,
		},
	}
}

// RegisterOpener installs (or replaces) the opener for an adapter type.
func (r *Registry) RegisterOpener(adapter string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[adapter] = o
}

// SpecName derives the handle key for cfg. Stable for identical configs and distinct
// whenever host, adapter or database differ.
func (r *Registry) SpecName(cfg tenants.Config) string {
	if r.perConfig {
		if cfg.PoolKey != "" {
			return "_tenancy_" + cfg.PoolKey
		}
		raw, _ := json.Marshal(cfg)
		sum := sha256.Sum256(raw)
		return "_tenancy_" + hex.EncodeToString(sum[:16])
	}
	hostHash := md5.Sum([]byte(cfg.HostOrDefault()))
	return fmt.Sprintf("_tenancy_%s_%s_%s", hex.EncodeToString(hostHash[:]), cfg.Adapter, cfg.Database)
}

// Establish returns the handle for cfg, opening it on first use. Concurrent
// callers for the same spec share one open; other specs are not held up by it.
func (r *Registry) Establish(ctx context.Context, cfg tenants.Config) (Pool, string, error) {
	spec := r.SpecName(cfg)
	if p, ok := r.lookup(spec); ok {
		return p, spec, nil
	}
	v, err, _ := r.opening.Do(spec, func() (any, error) {
		if p, ok := r.lookup(spec); ok {
			return p, nil
		}
		r.mu.RLock()
		open, ok := r.openers[cfg.Adapter]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no opener for adapter %q", cfg.Adapter)
		}
		p, err := open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pools[spec] = p
		r.opened++
		r.mu.Unlock()
		r.log.Infow("connection handle opened", "spec", spec, "host", cfg.HostOrDefault(), "database", cfg.Database)
		return p, nil
	})
	if err != nil {
		return nil, spec, err
	}
	return v.(Pool), spec, nil
}

func (r *Registry) lookup(spec string) (Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[spec]
	return p, ok
}

// Invalidate closes and forgets a handle so the next Establish re-opens it.
func (r *Registry) Invalidate(spec string) {
	r.mu.Lock()
	p, ok := r.pools[spec]
	delete(r.pools, spec)
	r.mu.Unlock()
	if ok {
		p.Close()
		r.log.Warnw("connection handle invalidated", "spec", spec)
	}
}

// Opened reports how many handles have been opened since start.
func (r *Registry) Opened() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opened
}

// Len reports how many handles are currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Ping checks every held handle; used by health checks.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for spec, p := range r.pools {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", spec, err)
		}
	}
	return nil
}

// Close closes all handles. Call at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for spec, p := range r.pools {
		p.Close()
		delete(r.pools, spec)
	}
}
