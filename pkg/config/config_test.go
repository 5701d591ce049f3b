package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TENANCY_ENV", "TENANCY_USE_SCHEMAS", "TENANCY_DEFAULT_TENANT", "TENANT_CACHE_TTL_SEC", "TENANCY_CATALOG_URL"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "public", cfg.DefaultTenant)
	assert.True(t, cfg.UseSchemas)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Empty(t, cfg.CatalogURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TENANCY_ENV", "prod")
	t.Setenv("TENANCY_USE_SCHEMAS", "false")
	t.Setenv("TENANCY_POOL_PER_CONFIG", "true")
	t.Setenv("TENANCY_DEFAULT_TENANT", "main")
	t.Setenv("TENANT_CACHE_TTL_SEC", "5")
	t.Setenv("DATABASE_URL", "mysql://root@db:3306/app")

	cfg := Load()

	assert.Equal(t, "prod", cfg.Env)
	assert.False(t, cfg.UseSchemas)
	assert.True(t, cfg.PoolPerConfig)
	assert.Equal(t, "main", cfg.DefaultTenant)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, "mysql://root@db:3306/app", cfg.DatabaseURL)
}
