package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenantdb/pkg/tenants"
)

// maintenanceDatabase is used when a config carries no database, e.g. while creating one.
const maintenanceDatabase = "postgres"

type pgPool struct{ pool *pgxpool.Pool }

type pgConn struct{ conn *pgxpool.Conn }

// PostgresDSN builds a pgx connection URL for cfg. The search path is not part of it:
// schema siblings share the pool and set it per checked-out connection.
func PostgresDSN(cfg tenants.Config) string {
	u := url.URL{Scheme: "postgres", Host: cfg.HostOrDefault()}
	if cfg.Port != 0 {
		u.Host += ":" + strconv.Itoa(cfg.Port)
	}
	if cfg.Username != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	database := cfg.Database
	if database == "" {
		database = maintenanceDatabase
	}
	u.Path = "/" + database
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// OpenPostgres opens a pgx pool for cfg and pings it.
func OpenPostgres(ctx context.Context, cfg tenants.Config) (Pool, error) {
	pcfg, err := pgxpool.ParseConfig(PostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("pg config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return &pgPool{pool: pool}, nil
}

func (p *pgPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgConn{conn: c}, nil
}

func (p *pgPool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *pgPool) Close() { p.pool.Close() }

func (c *pgConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.conn.Exec(ctx, sql, args...)
	return err
}

func (c *pgConn) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c *pgConn) Release() { c.conn.Release() }
