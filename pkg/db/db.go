// pkg/db/db.go
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tenantdb/pkg/config"
	"tenantdb/pkg/tenants"
)

// Row is the single-row result of a query.
type Row interface {
	Scan(dest ...any) error
}

// Conn is one physical connection checked out of a Pool.
// A Conn belongs to a single session at a time.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
	// Release hands the connection back to its pool.
	Release()
}

// Pool is a connection handle shared by every tenant with the same spec name.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Opener opens a new Pool for cfg.
type Opener func(ctx context.Context, cfg tenants.Config) (Pool, error)

// ConfigFromURL turns a DATABASE_URL into the default tenant config.
// Supported schemes: postgres, postgresql, mysql.
func ConfigFromURL(raw string) (tenants.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return tenants.Config{}, fmt.Errorf("parse database url: %w", err)
	}
	var cfg tenants.Config
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		cfg.Adapter = tenants.AdapterPostgreSQL
	case "mysql":
		cfg.Adapter = tenants.AdapterMySQL
	default:
		return tenants.Config{}, fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	cfg.Host = u.Hostname()
	if p := u.Port(); p != "" {
		if cfg.Port, err = strconv.Atoi(p); err != nil {
			return tenants.Config{}, fmt.Errorf("database url port: %w", err)
		}
	}
	cfg.Database = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	q := u.Query()
	cfg.SSLMode = q.Get("sslmode")
	cfg.SchemaSearchPath = q.Get("search_path")
	cfg.PoolKey = q.Get("pool_key")
	return cfg, nil
}

// MustConnect opens the tenant catalog pool; nil when no catalog is configured.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	if cfg.CatalogURL == "" {
		return nil
	}
	pool, err := pgxpool.New(context.Background(), cfg.CatalogURL)
	if err != nil {
		log.Fatalw("pg connect", "err", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalw("pg ping", "err", err)
	}
	log.Infow("tenant catalog ready", "host", redactDSN(cfg.CatalogURL))
	return pool
}

func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis parse", "err", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(context.Background()).Err(); err != nil {
		log.Fatalw("redis ping", "err", err)
	}
	log.Infow("redis ready", "addr", opts.Addr)
	return cli
}

func redactDSN(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
