// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string // tenancy-admin

	// Default tenant connection and tenancy mode
	DatabaseURL   string
	DefaultTenant string
	UseSchemas    bool
	PoolPerConfig bool

	// Tenant sources: catalog table, seed JSON, YAML file
	CatalogURL     string
	TenantSeedJSON string
	TenantsFile    string

	// Redis read-through cache of tenant configs
	RedisURL string
	CacheTTL time.Duration

	// Admin API auth (dev passthrough when JWKS is empty)
	AdminJWKSURL  string
	AdminIssuer   string
	AdminAudience string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:            env("TENANCY_ENV", "dev"),
		HTTPAddr:       env("TENANCY_HTTP_ADDR", ":8080"),
		DatabaseURL:    env("DATABASE_URL", "postgres://postgres@127.0.0.1:5432/app?sslmode=disable"),
		DefaultTenant:  env("TENANCY_DEFAULT_TENANT", "public"),
		UseSchemas:     envBool("TENANCY_USE_SCHEMAS", true),
		PoolPerConfig:  envBool("TENANCY_POOL_PER_CONFIG", false),
		CatalogURL:     env("TENANCY_CATALOG_URL", ""),
		TenantSeedJSON: env("TENANT_SEED_JSON", ""),
		TenantsFile:    env("TENANTS_FILE", ""),
		RedisURL:       env("REDIS_URL", ""),
		CacheTTL:       envDur("TENANT_CACHE_TTL_SEC", 30) * time.Second,
		AdminJWKSURL:   env("ADMIN_JWKS_URL", ""),
		AdminIssuer:    env("ADMIN_OIDC_ISSUER", ""),
		AdminAudience:  env("ADMIN_OIDC_AUDIENCE", "tenancy-admin"),
	}
	if cfg.CatalogURL == "" {
		log.Println("[WARN] TENANCY_CATALOG_URL not set, using in-memory tenant provider")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
