package ddsql

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	var kindTests = []struct {
		input    string
		expected Kind
	}{
		{"mysql", MySQL},
		{"postgresql", PostgreSQL},
		{"Postgres", PostgreSQL},
		{"oracle", Oracle},
		{"mssql", SQLServer},
		{"sqlite3", SQLite},
	}

	for _, test := range kindTests {
		kind, err := ParseKind(test.input)
		assert.Nil(t, err)
		assert.Equal(t, test.expected, kind)
	}

	_, err := ParseKind("db2")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestDSN(t *testing.T) {
	c := ConnInfo{Kind: PostgreSQL, Host: "db", Port: 5432, Database: "sales", User: "u", Password: "p"}
	dsn, err := c.DSN()
	assert.Nil(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/sales", dsn)

	c.Kind = MySQL
	dsn, err = c.DSN()
	assert.Nil(t, err)
	assert.True(t, strings.HasPrefix(dsn, "u:p@tcp(db:5432)/sales"))

	c.Kind = SQLServer
	dsn, err = c.DSN()
	assert.Nil(t, err)
	assert.Equal(t, "sqlserver://u:p@db:5432?database=sales", dsn)

	c.Kind = Oracle
	dsn, err = c.DSN()
	assert.Nil(t, err)
	assert.True(t, strings.HasPrefix(dsn, "oracle://"))

	c = ConnInfo{Kind: SQLite, Database: "/tmp/x.db"}
	dsn, err = c.DSN()
	assert.Nil(t, err)
	assert.Equal(t, "/tmp/x.db", dsn)
}

func TestConnInfoStringHidesPassword(t *testing.T) {
	c := ConnInfo{Kind: PostgreSQL, Host: "db", Port: 5432, Database: "sales", User: "u", Password: "secret"}
	assert.NotContains(t, c.String(), "secret")
	assert.Equal(t, "postgresql://db:5432/sales", c.String())
}

func TestValidate(t *testing.T) {
	assert.Nil(t, ConnInfo{Kind: SQLite, Database: "x.db"}.Validate())
	assert.NotNil(t, ConnInfo{Kind: PostgreSQL, Database: "x"}.Validate())
	assert.NotNil(t, ConnInfo{Kind: PostgreSQL, Host: "h"}.Validate())
	assert.ErrorIs(t, ConnInfo{Kind: "db2", Host: "h", Database: "x"}.Validate(), ErrUnsupportedKind)
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "`a``b`", QuoteIdent(MySQL, "a`b"))
	assert.Equal(t, "[a]]b]", QuoteIdent(SQLServer, "a]b"))
	assert.Equal(t, `"a""b"`, QuoteIdent(PostgreSQL, `a"b`))

	assert.Equal(t, `"public"."t"`, QualifiedTable(ConnInfo{Kind: PostgreSQL}, "t"))
	assert.Equal(t, `"t"`, QualifiedTable(ConnInfo{Kind: SQLite}, "t"))
	assert.Equal(t, "[sales].[t]", QualifiedTable(ConnInfo{Kind: SQLServer, Schema: "sales"}, "t"))
}

func newSQLiteCatalog(t *testing.T) ConnInfo {
	t.Helper()
	c := ConnInfo{Kind: SQLite, Database: filepath.Join(t.TempDir(), "catalog.db")}

	db, err := Open(context.Background(), c)
	require.Nil(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE orders (id INTEGER, amount REAL)`,
		`CREATE TABLE customers (id INTEGER, name TEXT)`,
	} {
		_, err := db.Exec(stmt)
		require.Nil(t, err)
	}
	return c
}

func TestListTablesSQLite(t *testing.T) {
	c := newSQLiteCatalog(t)

	db, err := Open(context.Background(), c)
	require.Nil(t, err)
	defer db.Close()

	tables, err := ListTables(context.Background(), db, c)
	assert.Nil(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)
}

func TestPoolReusesConnections(t *testing.T) {
	c := newSQLiteCatalog(t)

	pool, err := NewPool(1)
	require.Nil(t, err)
	defer pool.Close()

	db1, release1, err := pool.Get(context.Background(), c)
	require.Nil(t, err)
	release1()
	db2, release2, err := pool.Get(context.Background(), c)
	require.Nil(t, err)
	release2()
	assert.Same(t, db1, db2)
	assert.Equal(t, 1, pool.Len())

	other := newSQLiteCatalog(t)
	_, releaseOther, err := pool.Get(context.Background(), other)
	require.Nil(t, err)
	defer releaseOther()
	assert.Equal(t, 1, pool.Len())

	// The first handle was evicted and closed
	assert.NotNil(t, db1.Ping())
}

func TestPoolKeepsLeasedHandleOpenAfterEviction(t *testing.T) {
	a := newSQLiteCatalog(t)
	b := newSQLiteCatalog(t)

	pool, err := NewPool(1)
	require.Nil(t, err)
	defer pool.Close()

	dbA, releaseA, err := pool.Get(context.Background(), a)
	require.Nil(t, err)

	_, releaseB, err := pool.Get(context.Background(), b)
	require.Nil(t, err)
	defer releaseB()
	assert.Equal(t, 1, pool.Len())

	var n int
	require.Nil(t, dbA.QueryRowContext(context.Background(), "SELECT count(*) FROM orders").Scan(&n))
	assert.Equal(t, 0, n)

	releaseA()
	assert.NotNil(t, dbA.Ping())

	// Releasing twice is harmless
	releaseA()
}

func TestPoolCloseWaitsForLeases(t *testing.T) {
	c := newSQLiteCatalog(t)

	pool, err := NewPool(2)
	require.Nil(t, err)

	db, release, err := pool.Get(context.Background(), c)
	require.Nil(t, err)

	pool.Close()
	assert.Equal(t, 0, pool.Len())
	assert.Nil(t, db.Ping())

	release()
	assert.NotNil(t, db.Ping())
}

func TestPoolSlowOpenDoesNotBlockOtherConnections(t *testing.T) {
	slow := ConnInfo{Kind: SQLite, Database: "slow.db"}
	fast := newSQLiteCatalog(t)

	pool, err := NewPool(4)
	require.Nil(t, err)
	defer pool.Close()

	unblock := make(chan struct{})
	started := make(chan struct{})
	pool.open = func(ctx context.Context, c ConnInfo) (*sql.DB, error) {
		if c == slow {
			close(started)
			<-unblock
			return nil, errors.New("unreachable host")
		}
		return Open(ctx, c)
	}

	slowErr := make(chan error, 1)
	go func() {
		_, _, err := pool.Get(context.Background(), slow)
		slowErr <- err
	}()
	<-started

	db, release, err := pool.Get(context.Background(), fast)
	require.Nil(t, err)
	assert.Nil(t, db.Ping())
	release()

	// A second caller for the slow connection gives up with its context
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = pool.Get(ctx, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(unblock)
	assert.NotNil(t, <-slowErr)

	// Failed opens are not cached
	assert.Equal(t, 1, pool.Len())
}

func TestLoadConnInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.properties")
	props := strings.Join([]string{
		"db_system_name=postgresql",
		"conn_ip=10.0.0.1",
		"port=5432",
		"conn_path=warehouse",
		"user_name=aurum",
		"password=secret",
		"dbschema=public",
	}, "\n")
	require.Nil(t, os.WriteFile(path, []byte(props), 0644))

	c, err := LoadConnInfo(path)
	assert.Nil(t, err)
	assert.Equal(t, ConnInfo{
		Kind:     PostgreSQL,
		Host:     "10.0.0.1",
		Port:     5432,
		Database: "warehouse",
		Schema:   "public",
		User:     "aurum",
		Password: "secret",
	}, c)
}

func TestLoadConnInfoUnknownEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.properties")
	require.Nil(t, os.WriteFile(path, []byte("db_system_name=db2\nconn_ip=h\nconn_path=x\n"), 0644))

	_, err := LoadConnInfo(path)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}
