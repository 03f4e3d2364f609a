// Package ddtask describes the units of work handed to the profiler.
//
// A Descriptor names exactly one data source and carries everything a
// worker needs to profile it. Descriptors are immutable values; the same
// descriptor may be submitted any number of times.
package ddtask

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddsql"
)

// ErrInvalidDescriptor is returned when a descriptor is structurally incomplete.
var ErrInvalidDescriptor = errors.New("invalid task descriptor")

// Kind is the variant of a Descriptor
type Kind string

// Descriptor variants
const (
	LocalFileKind  Kind = "local_file"
	RemoteFileKind Kind = "remote_file"
	TableKind      Kind = "table"
	BenchmarkKind  Kind = "benchmark"
)

// BenchmarkDataset is the dataset name profiles of benchmark tasks are filed under.
const BenchmarkDataset = "benchmark"

// Executor has one method per Descriptor variant. A Descriptor dispatches
// itself to the matching method, so every Executor handles every variant.
type Executor[T any] interface {
	ExecLocalFile(ctx context.Context, t LocalFile) (T, error)
	ExecRemoteFile(ctx context.Context, t RemoteFile) (T, error)
	ExecTable(ctx context.Context, t Table) (T, error)
	ExecBenchmark(ctx context.Context, t Benchmark) (T, error)
}

// Descriptor is one of LocalFile, RemoteFile, Table or Benchmark.
type Descriptor interface {
	Kind() Kind
	// Source is a human readable name of the source, safe to log.
	Source() string
	isDescriptor()
}

// Dispatch runs the Executor method matching the descriptor's variant.
func Dispatch[T any](ctx context.Context, d Descriptor, e Executor[T]) (T, error) {
	switch t := d.(type) {
	case LocalFile:
		return e.ExecLocalFile(ctx, t)
	case RemoteFile:
		return e.ExecRemoteFile(ctx, t)
	case Table:
		return e.ExecTable(ctx, t)
	case Benchmark:
		return e.ExecBenchmark(ctx, t)
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown variant %T", ErrInvalidDescriptor, d)
}

// LocalFile is a CSV file reachable on the local filesystem.
type LocalFile struct {
	Dataset   string
	Dir       string
	Name      string
	Separator rune
}

func (LocalFile) Kind() Kind { return LocalFileKind }

func (t LocalFile) Source() string { return t.Name }

// Path is the full path of the file.
func (t LocalFile) Path() string { return filepath.Join(t.Dir, t.Name) }

func (LocalFile) isDescriptor() {}

// RemoteFile is a CSV file stored on a distributed filesystem, such as S3.
type RemoteFile struct {
	Dataset   string
	Location  string
	Name      string
	Separator rune
}

func (RemoteFile) Kind() Kind { return RemoteFileKind }

func (t RemoteFile) Source() string { return t.Name }

func (RemoteFile) isDescriptor() {}

// Table is a table of a relational database.
type Table struct {
	Dataset string
	Conn    ddsql.ConnInfo
	Table   string
}

func (Table) Kind() Kind { return TableKind }

func (t Table) Source() string { return t.Table }

func (Table) isDescriptor() {}

// Benchmark is a synthetic load task. It profiles the CSV file at Path
// and is meant to be submitted over and over.
type Benchmark struct {
	Path      string
	Separator rune
}

func (Benchmark) Kind() Kind { return BenchmarkKind }

func (t Benchmark) Source() string { return filepath.Base(t.Path) }

func (Benchmark) isDescriptor() {}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

// ParseSeparator converts a configured separator string to a rune.
// "\t" and "tab" are accepted for tab separated files.
func ParseSeparator(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, invalid("separator %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func validSeparator(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && r != utf8.RuneError
}

// NewLocalFile creates a descriptor for a CSV file in dir.
func NewLocalFile(dataset, dir, name string, sep rune) (LocalFile, error) {
	if strings.TrimSpace(name) == "" {
		return LocalFile{}, invalid("local file name is empty")
	}
	if dir == "" {
		return LocalFile{}, invalid("directory of %s is empty", name)
	}
	if !validSeparator(sep) {
		return LocalFile{}, invalid("bad separator %q for %s", sep, name)
	}
	return LocalFile{Dataset: dataset, Dir: dir, Name: name, Separator: sep}, nil
}

// NewRemoteFile creates a descriptor for a CSV file under a distributed
// filesystem location.
func NewRemoteFile(dataset, location, name string, sep rune) (RemoteFile, error) {
	if strings.TrimSpace(name) == "" {
		return RemoteFile{}, invalid("remote file name is empty")
	}
	if location == "" {
		return RemoteFile{}, invalid("location of %s is empty", name)
	}
	if !validSeparator(sep) {
		return RemoteFile{}, invalid("bad separator %q for %s", sep, name)
	}
	return RemoteFile{Dataset: dataset, Location: location, Name: name, Separator: sep}, nil
}

// NewTable creates a descriptor for a database table.
func NewTable(dataset string, conn ddsql.ConnInfo, table string) (Table, error) {
	if strings.TrimSpace(table) == "" {
		return Table{}, invalid("table name is empty")
	}
	if err := conn.Validate(); err != nil {
		return Table{}, invalid("table %s: %s", table, err)
	}
	return Table{Dataset: dataset, Conn: conn, Table: table}, nil
}

// NewBenchmark creates a benchmark descriptor for the CSV file at path.
func NewBenchmark(path string, sep rune) (Benchmark, error) {
	if strings.TrimSpace(path) == "" {
		return Benchmark{}, invalid("benchmark path is empty")
	}
	if !validSeparator(sep) {
		return Benchmark{}, invalid("bad separator %q for %s", sep, path)
	}
	return Benchmark{Path: path, Separator: sep}, nil
}
