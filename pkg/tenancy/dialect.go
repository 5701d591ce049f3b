package tenancy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantdb/pkg/tenants"
)

// Dialect holds the engine-specific SQL and error classification.
// Every identifier it interpolates is quoted; values are bound parameters.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string

	DatabaseExistsSQL() string
	CreateDatabaseSQL(name string) string
	DropDatabaseSQL(name string) string
	CreateSchemaSQL(name string) string
	DropSchemaSQL(name string) string

	// ScopeKey is the config key changed by a lightweight switch.
	ScopeKey() tenants.Key
	// ScopeOwner is the object a lightweight switch needs to exist.
	ScopeOwner(cfg tenants.Config) string
	// ScopeExistsSQL checks ScopeOwner; empty when the scope statement fails on its own.
	ScopeExistsSQL() string
	// ScopeSQL makes a checked-out connection reflect cfg's scope; empty means nothing to do.
	ScopeSQL(cfg tenants.Config) string

	// IsNotFound reports whether a driver error means the database or schema does not exist.
	IsNotFound(err error) bool
}

// DialectFor returns the dialect of an adapter type.
func DialectFor(adapter string) (Dialect, error) {
	switch adapter {
	case tenants.AdapterPostgreSQL, "postgres", "":
		return Postgres{}, nil
	case tenants.AdapterMySQL, "mysql2":
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("unsupported adapter %q", adapter)
}

// splitPath returns the unquoted elements of a comma-separated search path.
func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, ",") {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
			p = strings.ReplaceAll(p[1:len(p)-1], `""`, `"`)
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Postgres is the PostgreSQL dialect: schemas are the lightweight scope.
type Postgres struct{}

func (Postgres) Name() string { return tenants.AdapterPostgreSQL }

func (Postgres) QuoteIdent(name string) string { return pgx.Identifier{name}.Sanitize() }

func (Postgres) DatabaseExistsSQL() string {
	return `SELECT EXISTS(SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1)`
}

func (d Postgres) CreateDatabaseSQL(name string) string {
	return "CREATE DATABASE " + d.QuoteIdent(name)
}

func (d Postgres) DropDatabaseSQL(name string) string {
	return "DROP DATABASE " + d.QuoteIdent(name)
}

func (d Postgres) CreateSchemaSQL(name string) string {
	return "CREATE SCHEMA " + d.QuoteIdent(name)
}

func (d Postgres) DropSchemaSQL(name string) string {
	return "DROP SCHEMA " + d.QuoteIdent(name) + " CASCADE"
}

func (Postgres) ScopeKey() tenants.Key { return tenants.KeySchemaSearchPath }

func (Postgres) ScopeOwner(cfg tenants.Config) string { return cfg.FirstSchema() }

func (Postgres) ScopeExistsSQL() string {
	return `SELECT EXISTS(SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1)`
}

func (d Postgres) ScopeSQL(cfg tenants.Config) string {
	parts := splitPath(cfg.SchemaSearchPath)
	if len(parts) == 0 {
		return "RESET search_path"
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = d.QuoteIdent(p)
	}
	return "SET search_path TO " + strings.Join(quoted, ", ")
}

// SQLSTATE 3D000 invalid_catalog_name, 3F000 invalid_schema_name.
func (Postgres) IsNotFound(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "3D000" || pgErr.Code == "3F000"
	}
	return false
}

// MySQL is the MySQL dialect. MySQL has no schemas below a database: the
// lightweight scope is the database itself, switched with USE.
type MySQL struct{}

func (MySQL) Name() string { return tenants.AdapterMySQL }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) DatabaseExistsSQL() string {
	return `SELECT EXISTS(SELECT 1 FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?)`
}

func (d MySQL) CreateDatabaseSQL(name string) string {
	return "CREATE DATABASE " + d.QuoteIdent(name)
}

func (d MySQL) DropDatabaseSQL(name string) string {
	return "DROP DATABASE " + d.QuoteIdent(name)
}

func (d MySQL) CreateSchemaSQL(name string) string { return d.CreateDatabaseSQL(name) }

func (d MySQL) DropSchemaSQL(name string) string { return d.DropDatabaseSQL(name) }

func (MySQL) ScopeKey() tenants.Key { return tenants.KeyDatabase }

func (MySQL) ScopeOwner(cfg tenants.Config) string { return cfg.Database }

func (MySQL) ScopeExistsSQL() string { return "" }

func (d MySQL) ScopeSQL(cfg tenants.Config) string {
	if cfg.Database == "" {
		return ""
	}
	return "USE " + d.QuoteIdent(cfg.Database)
}

// 1049 ER_BAD_DB_ERROR, 1008 ER_DB_DROP_EXISTS.
func (MySQL) IsNotFound(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1049 || myErr.Number == 1008
	}
	return false
}
