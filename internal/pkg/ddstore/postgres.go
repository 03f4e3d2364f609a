package ddstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

// PostgresStore upserts profiles into a PostgreSQL table in batches.
type PostgresStore struct {
	pool      *pgxpool.Pool
	table     string
	batchSize int

	mut     sync.Mutex
	pending []row
	store   func(ctx context.Context, rows []row) error

	dropped atomic.Int64
}

func newPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres store requires a dsn")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres store: %w", err)
	}

	s := &PostgresStore{
		pool:      pool,
		table:     pgx.Identifier{cfg.Table}.Sanitize(),
		batchSize: cfg.BatchSize,
	}
	s.store = s.storeBatch
	if err := s.createTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id            TEXT PRIMARY KEY,
			dataset       TEXT NOT NULL,
			source        TEXT NOT NULL,
			column_name   TEXT NOT NULL,
			data_type     TEXT NOT NULL,
			total_values  BIGINT NOT NULL,
			null_values   BIGINT NOT NULL,
			unique_values BIGINT NOT NULL,
			profile       JSONB NOT NULL,
			profiled_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, col *ddprofile.Column) error {
	r, err := rowOf(col)
	if err != nil {
		return err
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	s.pending = append(s.pending, r)
	if len(s.pending) < s.batchSize {
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *PostgresStore) Flush(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked writes the pending rows in one transaction. The rows are
// dropped whether or not the transaction commits.
func (s *PostgresStore) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	rows := s.pending
	s.pending = nil

	if err := s.store(ctx, rows); err != nil {
		total := s.dropped.Add(int64(len(rows)))
		log.WithFields(log.Fields{
			"dropped":       len(rows),
			"dropped_total": total,
		}).Errorf("Error storing profile batch: %s", err)
		return fmt.Errorf("%d profiles dropped: %w", len(rows), err)
	}
	log.Debugf("Stored %d profiles", len(rows))
	return nil
}

func (s *PostgresStore) storeBatch(ctx context.Context, rows []row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO `+s.table+` (id, dataset, source, column_name, data_type,
				total_values, null_values, unique_values, profile, profiled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				data_type = EXCLUDED.data_type, total_values = EXCLUDED.total_values,
				null_values = EXCLUDED.null_values, unique_values = EXCLUDED.unique_values,
				profile = EXCLUDED.profile, profiled_at = EXCLUDED.profiled_at
		`, r.id, r.dataset, r.source, r.column, r.dataType,
			r.total, r.nulls, r.cardinality, string(r.profile), r.profiledAt)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Dropped returns the number of profiles lost to failed batches.
func (s *PostgresStore) Dropped() int64 {
	return s.dropped.Load()
}

func (s *PostgresStore) TearDown(ctx context.Context) error {
	err := s.Flush(ctx)
	s.pool.Close()
	return err
}
