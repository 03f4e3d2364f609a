// Package ddsql opens connections to the relational engines that can be
// profiled and lists the tables of a catalog.
package ddsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	goora "github.com/sijms/go-ora/v2"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedKind is returned for database engines without a driver.
var ErrUnsupportedKind = errors.New("unsupported database kind")

// Kind identifies a relational engine
type Kind string

// Supported engines
const (
	MySQL      Kind = "mysql"
	PostgreSQL Kind = "postgresql"
	Oracle     Kind = "oracle"
	SQLServer  Kind = "sqlserver"
	SQLite     Kind = "sqlite"
)

// ParseKind maps an engine name, as found in catalog properties, to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql":
		return MySQL, nil
	case "postgresql", "postgres", "pgsql":
		return PostgreSQL, nil
	case "oracle":
		return Oracle, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// DriverName returns the database/sql driver registered for the engine.
func (k Kind) DriverName() (string, error) {
	switch k {
	case MySQL:
		return "mysql", nil
	case PostgreSQL:
		return "pgx", nil
	case Oracle:
		return "oracle", nil
	case SQLServer:
		return "sqlserver", nil
	case SQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, string(k))
}

// ConnInfo carries everything needed to reach one database.
type ConnInfo struct {
	Kind     Kind   `json:"kind"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database"`
	Schema   string `json:"schema,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// String describes the connection without credentials.
func (c ConnInfo) String() string {
	if c.Kind == SQLite {
		return fmt.Sprintf("%s:%s", c.Kind, c.Database)
	}
	return fmt.Sprintf("%s://%s/%s", c.Kind, c.address(), c.Database)
}

func (c ConnInfo) address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DSN builds the driver specific data source name.
func (c ConnInfo) DSN() (string, error) {
	switch c.Kind {
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = c.address()
		cfg.DBName = c.Database
		return cfg.FormatDSN(), nil
	case PostgreSQL:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   c.address(),
			Path:   "/" + c.Database,
		}
		return u.String(), nil
	case SQLServer:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     c.address(),
			RawQuery: url.Values{"database": {c.Database}}.Encode(),
		}
		return u.String(), nil
	case Oracle:
		return goora.BuildUrl(c.Host, c.Port, c.Database, c.User, c.Password, nil), nil
	case SQLite:
		return c.Database, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, string(c.Kind))
}

// Validate checks that the fields required by the engine are present.
func (c ConnInfo) Validate() error {
	if _, err := c.Kind.DriverName(); err != nil {
		return err
	}
	if c.Database == "" {
		return errors.New("database name is required")
	}
	if c.Kind != SQLite && c.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, c ConnInfo) (*sql.DB, error) {
	driver, err := c.Kind.DriverName()
	if err != nil {
		return nil, err
	}
	dsn, err := c.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", c, err)
	}
	return db, nil
}

func (c ConnInfo) schema() string {
	if c.Schema != "" {
		return c.Schema
	}
	switch c.Kind {
	case PostgreSQL:
		return "public"
	case SQLServer:
		return "dbo"
	case MySQL:
		return c.Database
	case Oracle:
		return strings.ToUpper(c.User)
	}
	return ""
}

func listTablesQuery(c ConnInfo) (string, []any) {
	switch c.Kind {
	case PostgreSQL:
		return `SELECT table_name FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`, []any{c.schema()}
	case MySQL:
		return `SELECT table_name FROM information_schema.tables
			WHERE table_schema = ? AND table_type = 'BASE TABLE' ORDER BY table_name`, []any{c.schema()}
	case SQLServer:
		return `SELECT table_name FROM information_schema.tables
			WHERE table_schema = @p1 AND table_type = 'BASE TABLE' ORDER BY table_name`, []any{c.schema()}
	case Oracle:
		return `SELECT table_name FROM all_tables WHERE owner = :1 ORDER BY table_name`, []any{c.schema()}
	}
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`, nil
}

// ListTables returns the base tables of the connection's schema.
func ListTables(ctx context.Context, db *sql.DB, c ConnInfo) ([]string, error) {
	query, args := listTablesQuery(c)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", c, err)
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// QuoteIdent quotes a single identifier for the engine.
func QuoteIdent(k Kind, name string) string {
	switch k {
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedTable returns the quoted, schema qualified table name.
func QualifiedTable(c ConnInfo, table string) string {
	schema := c.schema()
	if c.Kind == SQLite || schema == "" {
		return QuoteIdent(c.Kind, table)
	}
	return QuoteIdent(c.Kind, schema) + "." + QuoteIdent(c.Kind, table)
}
