package ddstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

// SQLiteStore upserts profiles into a table of an SQLite database file.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func newSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite store requires a database path")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// writes are serialized by the single connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: quoteSQLite(cfg.Table)}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id            TEXT PRIMARY KEY,
			dataset       TEXT NOT NULL,
			source        TEXT NOT NULL,
			column_name   TEXT NOT NULL,
			data_type     TEXT NOT NULL,
			total_values  INTEGER NOT NULL,
			null_values   INTEGER NOT NULL,
			unique_values INTEGER NOT NULL,
			profile       TEXT NOT NULL,
			profiled_at   TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	return s, nil
}

func (s *SQLiteStore) Write(ctx context.Context, col *ddprofile.Column) error {
	r, err := rowOf(col)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+s.table+` (id, dataset, source, column_name, data_type,
			total_values, null_values, unique_values, profile, profiled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data_type = excluded.data_type, total_values = excluded.total_values,
			null_values = excluded.null_values, unique_values = excluded.unique_values,
			profile = excluded.profile, profiled_at = excluded.profiled_at`,
		r.id, r.dataset, r.source, r.column, r.dataType,
		r.total, r.nulls, r.cardinality, string(r.profile), r.profiledAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }

func (s *SQLiteStore) TearDown(ctx context.Context) error {
	return s.db.Close()
}

// DB exposes the underlying database for inspection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
