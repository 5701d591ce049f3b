// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgProvider implements Provider backed by a tenant catalog table in PostgreSQL.
type pgProvider struct {
	dbPool      *pgxpool.Pool      // Connection pool to the catalog database
	log         *zap.SugaredLogger // Logger for diagnostic output
	defaultName string
	defaultCfg  Config
}

// NewPostgresProvider constructs a PostgreSQL-backed tenant provider.
func NewPostgresProvider(dbPool *pgxpool.Pool, log *zap.SugaredLogger, defaultName string, def Config) Store {
	return &pgProvider{dbPool: dbPool, log: log, defaultName: defaultName, defaultCfg: def}
}

// EnsureSchema creates the tenant catalog if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_tenants (
  name text PRIMARY KEY,
  config jsonb NOT NULL DEFAULT '{}'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

// SeedFromEnv ingests initial tenants.
// jsonSeed format (TENANT_SEED_JSON):
// [
//
//	{"name":"acme","config":{"adapter":"postgresql","database":"shared","schema_search_path":"acme"}},
//	{"name":"globex"}
//
// ]
//
// Entries without a config are derived from the default config.
func SeedFromEnv(ctx context.Context, s Store, def Config, jsonSeed string, useSchemas bool) error {
	if jsonSeed == "" {
		return nil
	}
	var entries []Tenant
	if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		cfg := e.Config
		if cfg == (Config{}) {
			cfg = Derive(def, e.Name, useSchemas)
		}
		if err := s.Save(ctx, e.Name, cfg); err != nil {
			return fmt.Errorf("seed %s: %w", e.Name, err)
		}
	}
	return nil
}

// ConfigFor fetches a tenant's config by name.
func (p *pgProvider) ConfigFor(ctx context.Context, tenant string) (Config, error) {
	if tenant == "" || tenant == p.defaultName {
		return p.defaultCfg, nil
	}
	var raw []byte
	err := p.dbPool.QueryRow(ctx, `SELECT config FROM tenancy_tenants WHERE name=$1`, tenant).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, tenant)
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config of %s: %w", tenant, err)
	}
	if cfg.Adapter == "" {
		cfg.Adapter = p.defaultCfg.Adapter
	}
	return cfg, nil
}

// List returns the names of all catalogued tenants.
func (p *pgProvider) List(ctx context.Context) ([]string, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT name FROM tenancy_tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Save upserts a tenant's config.
func (p *pgProvider) Save(ctx context.Context, name string, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.dbPool.Exec(ctx, `INSERT INTO tenancy_tenants(name, config) VALUES ($1, $2)
	  ON CONFLICT (name) DO UPDATE SET config=EXCLUDED.config, updated_at=NOW()`, name, raw)
	return err
}

// Remove deletes a tenant from the catalog.
func (p *pgProvider) Remove(ctx context.Context, name string) error {
	_, err := p.dbPool.Exec(ctx, `DELETE FROM tenancy_tenants WHERE name=$1`, name)
	return err
}
