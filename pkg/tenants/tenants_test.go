package tenants

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstSchema(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"", ""},
		{"tenant_x", "tenant_x"},
		{"tenant_x,public", "tenant_x"},
		{`"Tenant X", public, shared`, "Tenant X"},
		{" acme ,public", "acme"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Config{SchemaSearchPath: tt.path}.FirstSchema(), tt.path)
	}
}

func TestDiff(t *testing.T) {
	base := Config{Adapter: AdapterPostgreSQL, Host: "db1", Database: "shared", SchemaSearchPath: "a"}

	assert.True(t, base.Diff(base).Empty())

	d := base.Diff(Config{Adapter: AdapterPostgreSQL, Host: "db1", Database: "shared", SchemaSearchPath: "b"})
	assert.Equal(t, []string{"schema_search_path"}, d.Keys())
	assert.False(t, d.Any(KeyHost, KeyDatabase))

	d = base.Diff(Config{Adapter: AdapterPostgreSQL, Host: "db2", Database: "other", SchemaSearchPath: "a"})
	assert.True(t, d.Has(KeyHost))
	assert.True(t, d.Has(KeyDatabase))
	assert.False(t, d.Has(KeySchemaSearchPath))
}

func TestWithout(t *testing.T) {
	cfg := Config{Adapter: AdapterPostgreSQL, Host: "h", Database: "d", SchemaSearchPath: "s", Port: 5432}
	out := cfg.Without(KeyDatabase, KeySchemaSearchPath)
	assert.Equal(t, Config{Adapter: AdapterPostgreSQL, Host: "h", Port: 5432}, out)
	assert.Equal(t, "d", cfg.Database, "receiver must not change")
}

func TestDerive(t *testing.T) {
	pg := Config{Adapter: AdapterPostgreSQL, Database: "app"}
	assert.Equal(t, "acme", Derive(pg, "acme", true).SchemaSearchPath)
	assert.Equal(t, "app", Derive(pg, "acme", true).Database)
	assert.Equal(t, "acme", Derive(pg, "acme", false).Database)

	my := Config{Adapter: AdapterMySQL, Database: "app"}
	assert.Equal(t, "acme", Derive(my, "acme", true).Database)
	assert.Empty(t, Derive(my, "acme", true).SchemaSearchPath)
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	def := Config{Adapter: AdapterPostgreSQL, Host: "localhost", Database: "app"}
	p := NewMemoryProvider(nil, "public", def, true)

	seed := `[{"name":"acme"},{"name":"globex","config":{"database":"globex_db"}}]`
	dir := t.TempDir()
	file := filepath.Join(dir, "tenants.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
tenants:
  - name: initech
    config:
      adapter: postgresql
      host: db2
      database: initech
      schema_search_path: initech,public
`), 0o600))
	require.NoError(t, Seed(p, seed, file))

	cfg, err := p.ConfigFor(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, def, cfg)

	cfg, err = p.ConfigFor(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.SchemaSearchPath)
	assert.Equal(t, "app", cfg.Database)

	cfg, err = p.ConfigFor(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, AdapterPostgreSQL, cfg.Adapter, "adapter inherited from default")
	assert.Equal(t, "globex_db", cfg.Database)

	cfg, err = p.ConfigFor(ctx, "initech")
	require.NoError(t, err)
	assert.Equal(t, "db2", cfg.Host)
	assert.Equal(t, "initech", cfg.FirstSchema())

	names, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex", "initech"}, names)

	require.NoError(t, p.Remove(ctx, "acme"))
	_, err = p.ConfigFor(ctx, "acme")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryProviderBadSeed(t *testing.T) {
	p := NewMemoryProvider(nil, "public", Config{}, false)
	assert.Error(t, Seed(p, "{not json", ""))
	assert.Error(t, Seed(p, "", filepath.Join(t.TempDir(), "missing.yml")))
}

func TestCachedProviderWithoutRedis(t *testing.T) {
	inner := NewMemoryProvider(nil, "public", Config{Adapter: AdapterPostgreSQL, Database: "app"}, true)
	assert.Equal(t, inner, NewCachedProvider(inner, nil, 0, nil))
}

func TestCachedProviderDegradesOnOutage(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryProvider(nil, "public", Config{Adapter: AdapterPostgreSQL, Database: "app"}, true)
	require.NoError(t, inner.Save(ctx, "acme", Config{Adapter: AdapterPostgreSQL, Database: "app", SchemaSearchPath: "acme"}))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	p := NewCachedProvider(inner, rdb, time.Minute, nil)

	cfg, err := p.ConfigFor(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.SchemaSearchPath)

	_, err = p.ConfigFor(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCachedProviderKeepsPasswordsOutOfRedis(t *testing.T) {
	inner := NewMemoryProvider(nil, "public", Config{Adapter: AdapterPostgreSQL, Database: "app"}, true)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	c := NewCachedProvider(inner, rdb, time.Minute, nil).(*cachedProvider)

	cfg := Config{Adapter: AdapterPostgreSQL, Database: "app", SchemaSearchPath: "acme", Password: "s3cret"}
	raw, err := c.encode("acme", cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")

	got, ok := c.decode("acme", raw)
	require.True(t, ok)
	assert.Equal(t, cfg, got)

	// another process wrote the entry: its password is unknown here
	other := NewCachedProvider(inner, rdb, time.Minute, nil).(*cachedProvider)
	_, ok = other.decode("acme", raw)
	assert.False(t, ok)

	plain := Config{Adapter: AdapterPostgreSQL, Database: "app", SchemaSearchPath: "globex"}
	raw, err = other.encode("globex", plain)
	require.NoError(t, err)
	got, ok = other.decode("globex", raw)
	require.True(t, ok)
	assert.Equal(t, plain, got)

	_, ok = c.decode("acme", []byte("{not json"))
	assert.False(t, ok)
}
