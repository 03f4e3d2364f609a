// Package ddprofile turns a task descriptor into column profiles.
package ddprofile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddfs"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddsql"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// Profiler computes the column profiles of one source, reading CSV files
// through ddfs and tables through ddsql. It returns either every profile of
// the source or an error, never a partial result.
type Profiler struct {
	pool    *ddsql.Pool
	maxRows int64
	now     func() time.Time

	fsMut       sync.Mutex
	filesystems map[ddfs.FileSystemType]ddfs.FileSystem
}

// ProfilerOption configures a Profiler
type ProfilerOption func(*Profiler)

// WithMaxRows limits the number of rows read per source. Zero reads everything.
func WithMaxRows(n int64) ProfilerOption {
	return func(p *Profiler) {
		p.maxRows = n
	}
}

// WithFileSystem sets the filesystem used for sources of the given type.
func WithFileSystem(fsType ddfs.FileSystemType, fs ddfs.FileSystem) ProfilerOption {
	return func(p *Profiler) {
		p.filesystems[fsType] = fs
	}
}

// WithConnectionPool sets the pool database sources are read through.
func WithConnectionPool(pool *ddsql.Pool) ProfilerOption {
	return func(p *Profiler) {
		p.pool = pool
	}
}

// NewProfiler creates a Profiler
func NewProfiler(options ...ProfilerOption) (*Profiler, error) {
	p := &Profiler{
		now:         time.Now,
		filesystems: make(map[ddfs.FileSystemType]ddfs.FileSystem),
	}
	for _, f := range options {
		f(p)
	}

	if p.pool == nil {
		pool, err := ddsql.NewPool(ddsql.DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	return p, nil
}

// Close releases cached database connections.
func (p *Profiler) Close() {
	p.pool.Close()
}

// Profile profiles the source the descriptor names.
func (p *Profiler) Profile(ctx context.Context, d ddtask.Descriptor) ([]*Column, error) {
	return ddtask.Dispatch[[]*Column](ctx, d, p)
}

func (p *Profiler) filesystem(fsType ddfs.FileSystemType) (ddfs.FileSystem, error) {
	p.fsMut.Lock()
	defer p.fsMut.Unlock()

	if fs, ok := p.filesystems[fsType]; ok {
		return fs, nil
	}
	fs, err := ddfs.InitFilesystem(fsType)
	if err != nil {
		return nil, fmt.Errorf("init %s filesystem: %w", fsType, err)
	}
	p.filesystems[fsType] = fs
	return fs, nil
}

func (p *Profiler) ExecLocalFile(ctx context.Context, t ddtask.LocalFile) ([]*Column, error) {
	fs, err := p.filesystem(ddfs.Local)
	if err != nil {
		return nil, err
	}
	return p.profileCSV(fs, t.Path(), t.Separator, t.Dataset, t.Name)
}

func (p *Profiler) ExecRemoteFile(ctx context.Context, t ddtask.RemoteFile) ([]*Column, error) {
	fs, err := p.filesystem(ddfs.TypeOf(t.Location))
	if err != nil {
		return nil, err
	}
	return p.profileCSV(fs, fs.Join(t.Location, t.Name), t.Separator, t.Dataset, t.Name)
}

func (p *Profiler) ExecBenchmark(ctx context.Context, t ddtask.Benchmark) ([]*Column, error) {
	fs, err := p.filesystem(ddfs.Local)
	if err != nil {
		return nil, err
	}
	return p.profileCSV(fs, t.Path, t.Separator, ddtask.BenchmarkDataset, t.Source())
}

func (p *Profiler) ExecTable(ctx context.Context, t ddtask.Table) ([]*Column, error) {
	db, release, err := p.pool.Get(ctx, t.Conn)
	if err != nil {
		return nil, err
	}
	defer release()

	query := "SELECT * FROM " + ddsql.QualifiedTable(t.Conn, t.Table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	stats := make([]*columnStats, len(names))
	for i, name := range names {
		stats[i] = newColumnStats(name)
	}

	values := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}

	var n int64
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Table, err)
		}
		for i, v := range values {
			stats[i].Add(v.String, !v.Valid)
		}
		n++
		if p.maxRows > 0 && n >= p.maxRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Table, err)
	}

	log.Debugf("Profiled table %s of %s: %s rows, %d columns", t.Table, t.Conn, humanize.Comma(n), len(names))
	return p.columns(stats, t.Dataset, t.Table), nil
}

func (p *Profiler) profileCSV(fs ddfs.FileSystem, path string, sep rune, dataset, source string) ([]*Column, error) {
	src, err := fs.OpenReader(path, 0)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	counter := &countingReader{r: src}
	reader := newCSVReader(counter, sep)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		log.Debugf("Source %s is empty", path)
		return []*Column{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	names := headerNames(header)
	stats := make([]*columnStats, len(names))
	for i, name := range names {
		stats[i] = newColumnStats(name)
	}

	var n int64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		for i, s := range stats {
			if i < len(record) {
				s.Add(record[i], false)
			} else {
				s.Add("", true)
			}
		}
		n++
		if p.maxRows > 0 && n >= p.maxRows {
			break
		}
	}

	log.Debugf("Profiled %s: %s rows, %d columns, %s read", path, humanize.Comma(n), len(names), humanize.Bytes(uint64(counter.bytesRead)))
	return p.columns(stats, dataset, source), nil
}

func (p *Profiler) columns(stats []*columnStats, dataset, source string) []*Column {
	now := p.now().UTC()
	cols := make([]*Column, len(stats))
	for i, s := range stats {
		col := s.Profile()
		col.Dataset = dataset
		col.Source = source
		col.ProfiledAt = now
		cols[i] = col
	}
	return cols
}
