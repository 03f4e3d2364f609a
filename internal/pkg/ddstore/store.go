// Package ddstore persists column profiles. Every backend implements Store
// and is selected by Config.Kind.
package ddstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

// ErrUnknownKind is returned by New for a store kind without a backend.
var ErrUnknownKind = errors.New("unknown store kind")

// Kind names a store backend
type Kind string

// Available backends
const (
	Elastic  Kind = "elastic"
	Postgres Kind = "postgres"
	SQLite   Kind = "sqlite"
	File     Kind = "file"
	Null     Kind = "null"
)

// ParseKind maps a configured store name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "elastic", "elasticsearch", "es":
		return Elastic, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "file", "json":
		return File, nil
	case "null", "none":
		return Null, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Store receives the profiles produced by a run. Write may be called from
// several goroutines at once.
type Store interface {
	// Write persists (or buffers) a single profile.
	Write(ctx context.Context, col *ddprofile.Column) error
	// Flush makes every profile written so far durable.
	Flush(ctx context.Context) error
	// TearDown flushes and releases the backend. It is called once.
	TearDown(ctx context.Context) error
}

// Dropper is implemented by stores that buffer writes and can lose
// profiles after Write accepted them.
type Dropper interface {
	// Dropped returns the number of accepted profiles that were never persisted.
	Dropped() int64
}

// Config selects and configures a backend. Fields irrelevant to the
// selected Kind are ignored.
type Config struct {
	Kind Kind

	// elastic
	Addresses     []string
	Username      string
	Password      string
	Index         string
	FlushInterval time.Duration

	// postgres, sqlite
	DSN       string
	Table     string
	BatchSize int

	// file
	Dir  string
	Bins uint
}

// Defaults applied by New to zero-valued fields
const (
	DefaultIndex         = "profile"
	DefaultTable         = "profiles"
	DefaultBatchSize     = 500
	DefaultBins          = 8
	DefaultFlushInterval = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Bins == 0 {
		c.Bins = DefaultBins
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// New connects to the backend named by cfg.Kind and prepares it to receive
// profiles. Failures here are fatal to a run.
func New(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.withDefaults()
	switch cfg.Kind {
	case Elastic:
		return newElasticStore(ctx, cfg)
	case Postgres:
		return newPostgresStore(ctx, cfg)
	case SQLite:
		return newSQLiteStore(ctx, cfg)
	case File:
		return newFileStore(cfg)
	case Null:
		return &NullStore{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}

// row is the relational form of a profile shared by the SQL backends.
type row struct {
	id          string
	dataset     string
	source      string
	column      string
	dataType    string
	total       int64
	nulls       int64
	cardinality int64
	profile     []byte
	profiledAt  time.Time
}

func rowOf(col *ddprofile.Column) (row, error) {
	data, err := json.Marshal(col)
	if err != nil {
		return row{}, err
	}
	return row{
		id:          col.ID(),
		dataset:     col.Dataset,
		source:      col.Source,
		column:      col.Column,
		dataType:    string(col.Type),
		total:       col.Total,
		nulls:       col.Nulls,
		cardinality: col.Cardinality,
		profile:     data,
		profiledAt:  col.ProfiledAt,
	}, nil
}
