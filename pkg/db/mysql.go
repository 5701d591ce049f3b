package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"tenantdb/pkg/tenants"
)

type sqlPool struct{ db *sql.DB }

type sqlConn struct{ conn *sql.Conn }

// MySQLDSN builds a go-sql-driver DSN for cfg. An empty database connects to the server only.
func MySQLDSN(cfg tenants.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.HostOrDefault(), strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	switch cfg.SSLMode {
	case "", "disable", "false":
	case "skip-verify":
		mc.TLSConfig = "skip-verify"
	default:
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

// OpenMySQL opens a database/sql pool for cfg and pings it.
func OpenMySQL(ctx context.Context, cfg tenants.Config) (Pool, error) {
	db, err := sql.Open("mysql", MySQLDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &sqlPool{db: db}, nil
}

func (p *sqlPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: c}, nil
}

func (p *sqlPool) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *sqlPool) Close() { _ = p.db.Close() }

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) Release() { _ = c.conn.Close() }
