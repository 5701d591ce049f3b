// Package dbtest provides an in-memory database server for tests of tenant routing.
// It understands the statements the tenancy dialects issue and keeps a log of them.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantdb/pkg/db"
	"tenantdb/pkg/tenants"
)

// Server is a fake engine: a set of databases, each with a set of schemas.
type Server struct {
	adapter string

	mu        sync.Mutex
	databases map[string]map[string]bool
	stmts     []string
	opens     map[string]int
	inUse     int
	failures  map[string]error
}

// NewServer creates a server of the given adapter type holding databases.
// PostgreSQL servers always hold the "postgres" maintenance database, and every
// PostgreSQL database starts with a "public" schema.
func NewServer(adapter string, databases ...string) *Server {
	s := &Server{
		adapter:   adapter,
		databases: map[string]map[string]bool{},
		opens:     map[string]int{},
		failures:  map[string]error{},
	}
	if adapter == tenants.AdapterPostgreSQL {
		databases = append(databases, "postgres")
	}
	for _, d := range databases {
		s.addDatabase(d)
	}
	return s
}

func (s *Server) Adapter() string { return s.adapter }

// Opener returns a db.Opener dialing this server.
func (s *Server) Opener() db.Opener {
	return func(ctx context.Context, cfg tenants.Config) (db.Pool, error) {
		database := cfg.Database
		if database == "" && s.adapter == tenants.AdapterPostgreSQL {
			database = "postgres"
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.failure("OPEN " + database); err != nil {
			return nil, err
		}
		if database != "" && s.databases[database] == nil {
			return nil, s.missingDatabase(database)
		}
		s.opens[database]++
		return &pool{srv: s, database: database}, nil
	}
}

// AddSchema creates schema in database.
func (s *Server) AddSchema(database, schema string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDatabase(database)[schema] = true
}

func (s *Server) HasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.databases[name] != nil
}

func (s *Server) HasSchema(database, schema string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.databases[database][schema]
}

// FailOn makes every statement starting with prefix fail with err.
// "OPEN <database>" fails opening a handle on that database.
func (s *Server) FailOn(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = err
}

// Statements returns every statement executed so far, in order.
func (s *Server) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stmts...)
}

// Count returns how many executed statements start with prefix.
func (s *Server) Count(prefix string) int {
	n := 0
	for _, st := range s.Statements() {
		if strings.HasPrefix(st, prefix) {
			n++
		}
	}
	return n
}

// Opens returns how many handles were opened on database ("" counts all of them).
func (s *Server) Opens(database string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if database != "" {
		return s.opens[database]
	}
	n := 0
	for _, c := range s.opens {
		n += c
	}
	return n
}

// InUse returns how many connections are checked out.
func (s *Server) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

func (s *Server) addDatabase(name string) map[string]bool {
	if s.databases[name] == nil {
		s.databases[name] = map[string]bool{}
		if s.adapter == tenants.AdapterPostgreSQL {
			s.databases[name]["public"] = true
		}
	}
	return s.databases[name]
}

func (s *Server) failure(stmt string) error {
	for prefix, err := range s.failures {
		if strings.HasPrefix(stmt, prefix) {
			return err
		}
	}
	return nil
}

func (s *Server) missingDatabase(name string) error {
	if s.adapter == tenants.AdapterMySQL {
		return &mysql.MySQLError{Number: 1049, Message: fmt.Sprintf("Unknown database '%s'", name)}
	}
	return &pgconn.PgError{Code: "3D000", Message: fmt.Sprintf("database %q does not exist", name)}
}

func (s *Server) existingDatabase(name string) error {
	if s.adapter == tenants.AdapterMySQL {
		return &mysql.MySQLError{Number: 1007, Message: fmt.Sprintf("Can't create database '%s'; database exists", name)}
	}
	return &pgconn.PgError{Code: "42P04", Message: fmt.Sprintf("database %q already exists", name)}
}

func (s *Server) droppingMissingDatabase(name string) error {
	if s.adapter == tenants.AdapterMySQL {
		return &mysql.MySQLError{Number: 1008, Message: fmt.Sprintf("Can't drop database '%s'; database doesn't exist", name)}
	}
	return s.missingDatabase(name)
}

type pool struct {
	srv      *Server
	database string

	mu     sync.Mutex
	idle   []*conn
	closed bool
}

func (p *pool) Acquire(ctx context.Context) (db.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("dbtest: pool closed")
	}
	var c *conn
	if n := len(p.idle); n > 0 {
		c, p.idle = p.idle[n-1], p.idle[:n-1]
	} else {
		c = &conn{pool: p, database: p.database}
	}
	p.srv.mu.Lock()
	p.srv.inUse++
	p.srv.mu.Unlock()
	return c, nil
}

func (p *pool) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("dbtest: pool closed")
	}
	return nil
}

func (p *pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.idle = nil
}

// conn keeps its session state (database, search path) across checkouts like a real pooled connection.
type conn struct {
	pool       *pool
	database   string
	searchPath []string
}

// SearchPath reports the connection's current search path.
func (c *conn) SearchPath() []string { return c.searchPath }

func (c *conn) Release() {
	c.pool.srv.mu.Lock()
	c.pool.srv.inUse--
	c.pool.srv.mu.Unlock()

	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if !c.pool.closed {
		c.pool.idle = append(c.pool.idle, c)
	}
}

func (c *conn) Exec(ctx context.Context, stmt string, args ...any) error {
	s := c.pool.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stmts = append(s.stmts, stmt)
	if err := s.failure(stmt); err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(stmt, "SET search_path TO "):
		var path []string
		for _, p := range strings.Split(strings.TrimPrefix(stmt, "SET search_path TO "), ",") {
			path = append(path, unquote(p))
		}
		c.searchPath = path
	case stmt == "RESET search_path":
		c.searchPath = nil
	case strings.HasPrefix(stmt, "USE "):
		name := unquote(strings.TrimPrefix(stmt, "USE "))
		if s.databases[name] == nil {
			return s.missingDatabase(name)
		}
		c.database = name
	case strings.HasPrefix(stmt, "CREATE DATABASE "):
		name := unquote(strings.TrimPrefix(stmt, "CREATE DATABASE "))
		if s.databases[name] != nil {
			return s.existingDatabase(name)
		}
		s.addDatabase(name)
	case strings.HasPrefix(stmt, "DROP DATABASE "):
		name := unquote(strings.TrimPrefix(stmt, "DROP DATABASE "))
		if s.databases[name] == nil {
			return s.droppingMissingDatabase(name)
		}
		delete(s.databases, name)
	case strings.HasPrefix(stmt, "CREATE SCHEMA "):
		name := unquote(strings.TrimPrefix(stmt, "CREATE SCHEMA "))
		schemas := s.databases[c.database]
		if schemas == nil {
			return s.missingDatabase(c.database)
		}
		if schemas[name] {
			return &pgconn.PgError{Code: "42P06", Message: fmt.Sprintf("schema %q already exists", name)}
		}
		schemas[name] = true
	case strings.HasPrefix(stmt, "DROP SCHEMA "):
		name := unquote(strings.TrimSuffix(strings.TrimPrefix(stmt, "DROP SCHEMA "), " CASCADE"))
		schemas := s.databases[c.database]
		if !schemas[name] {
			return &pgconn.PgError{Code: "3F000", Message: fmt.Sprintf("schema %q does not exist", name)}
		}
		delete(schemas, name)
	}
	return nil
}

func (c *conn) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	s := c.pool.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stmts = append(s.stmts, query)
	if err := s.failure(query); err != nil {
		return row{err: err}
	}
	if len(args) != 1 {
		return row{err: fmt.Errorf("dbtest: unsupported query %q", query)}
	}
	name, _ := args[0].(string)
	switch {
	case strings.Contains(query, "pg_database"), strings.Contains(query, "SCHEMATA"):
		return row{val: s.databases[name] != nil}
	case strings.Contains(query, "pg_namespace"):
		return row{val: s.databases[c.database][name]}
	}
	return row{err: fmt.Errorf("dbtest: unsupported query %q", query)}
}

type row struct {
	val bool
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("dbtest: scan into %d destinations", len(dest))
	}
	b, ok := dest[0].(*bool)
	if !ok {
		return fmt.Errorf("dbtest: scan into %T", dest[0])
	}
	*b = r.val
	return nil
}

func unquote(ident string) string {
	ident = strings.TrimSpace(ident)
	if len(ident) >= 2 {
		switch {
		case ident[0] == '"' && ident[len(ident)-1] == '"':
			return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
		case ident[0] == '`' && ident[len(ident)-1] == '`':
			return strings.ReplaceAll(ident[1:len(ident)-1], "``", "`")
		}
	}
	return ident
}
