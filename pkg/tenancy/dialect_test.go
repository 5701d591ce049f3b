package tenancy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdb/pkg/tenants"
)

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"postgresql", "postgres", ""} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, "postgresql", d.Name())
	}
	for _, name := range []string{"mysql", "mysql2"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, "mysql", d.Name())
	}
	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestPostgresSQL(t *testing.T) {
	d := Postgres{}

	assert.Equal(t, `"acme"`, d.QuoteIdent("acme"))
	assert.Equal(t, `"we""ird"`, d.QuoteIdent(`we"ird`))
	assert.Equal(t, `CREATE DATABASE "acme"`, d.CreateDatabaseSQL("acme"))
	assert.Equal(t, `DROP SCHEMA "acme" CASCADE`, d.DropSchemaSQL("acme"))

	tests := []struct {
		path     string
		expected string
	}{
		{"", "RESET search_path"},
		{"acme", `SET search_path TO "acme"`},
		{`acme, "Shared"`, `SET search_path TO "acme", "Shared"`},
		{`acme; DROP TABLE users`, `SET search_path TO "acme; DROP TABLE users"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, d.ScopeSQL(tenants.Config{SchemaSearchPath: tt.path}), tt.path)
	}
	assert.Equal(t, tenants.KeySchemaSearchPath, d.ScopeKey())
	assert.Equal(t, "acme", d.ScopeOwner(tenants.Config{SchemaSearchPath: "acme,public"}))
}

func TestMySQLSQL(t *testing.T) {
	d := MySQL{}

	assert.Equal(t, "`acme`", d.QuoteIdent("acme"))
	assert.Equal(t, "`a``b`", d.QuoteIdent("a`b"))
	assert.Equal(t, "USE `acme`", d.ScopeSQL(tenants.Config{Database: "acme"}))
	assert.Empty(t, d.ScopeSQL(tenants.Config{}))
	assert.Empty(t, d.ScopeExistsSQL())
	assert.Equal(t, d.DropDatabaseSQL("acme"), d.DropSchemaSQL("acme"))
	assert.Equal(t, tenants.KeyDatabase, d.ScopeKey())
}

func TestIsNotFound(t *testing.T) {
	pg := Postgres{}
	assert.True(t, pg.IsNotFound(&pgconn.PgError{Code: "3D000"}))
	assert.True(t, pg.IsNotFound(fmt.Errorf("connect: %w", &pgconn.PgError{Code: "3F000"})))
	assert.False(t, pg.IsNotFound(&pgconn.PgError{Code: "28P01"}))
	assert.False(t, pg.IsNotFound(errors.New("dial tcp: connection refused")))

	my := MySQL{}
	assert.True(t, my.IsNotFound(&mysql.MySQLError{Number: 1049}))
	assert.True(t, my.IsNotFound(&mysql.MySQLError{Number: 1008}))
	assert.False(t, my.IsNotFound(&mysql.MySQLError{Number: 1045}))
}

func TestTranslate(t *testing.T) {
	a := &Adapter{dialect: Postgres{}}
	target := tenants.Config{Database: "acme"}

	err := a.translate("acme", target, &moveError{move: MoveConnection, err: &pgconn.PgError{Code: "3D000"}})
	var dnf *DatabaseNotFoundError
	require.True(t, errors.As(err, &dnf))
	assert.True(t, dnf.Missing)
	assert.Equal(t, "acme", dnf.Database)

	err = a.translate("acme", target, &moveError{move: MoveScope, err: errors.New("timeout")})
	var tnf *TenantNotFoundError
	require.True(t, errors.As(err, &tnf))
	assert.False(t, tnf.Missing)
	assert.False(t, errors.Is(err, ErrDatabaseNotFound))
	assert.EqualError(t, err, "tenant acme not found: could not switch: timeout")
}

func TestTranslateMySQLScopeMove(t *testing.T) {
	a := &Adapter{dialect: MySQL{}}
	err := a.translate("acme", tenants.Config{Database: "acme"}, &moveError{move: MoveScope, err: &mysql.MySQLError{Number: 1049}})

	var dnf *DatabaseNotFoundError
	require.True(t, errors.As(err, &dnf))
	assert.True(t, dnf.Missing)
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
