package ddtask

import (
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddsql"
)

// Spec is the serialized form of a Descriptor, as accepted by the online
// server and the Lambda handler.
type Spec struct {
	Kind      Kind            `json:"kind"`
	Dataset   string          `json:"dataset,omitempty"`
	Dir       string          `json:"dir,omitempty"`
	Location  string          `json:"location,omitempty"`
	Name      string          `json:"name,omitempty"`
	Path      string          `json:"path,omitempty"`
	Separator string          `json:"separator,omitempty"`
	Conn      *ddsql.ConnInfo `json:"conn,omitempty"`
	Table     string          `json:"table,omitempty"`
}

func (s Spec) separator() (rune, error) {
	if s.Separator == "" {
		return ',', nil
	}
	return ParseSeparator(s.Separator)
}

// Descriptor validates the spec and builds the descriptor it describes.
func (s Spec) Descriptor() (Descriptor, error) {
	switch s.Kind {
	case LocalFileKind:
		sep, err := s.separator()
		if err != nil {
			return nil, err
		}
		return NewLocalFile(s.Dataset, s.Dir, s.Name, sep)
	case RemoteFileKind:
		sep, err := s.separator()
		if err != nil {
			return nil, err
		}
		return NewRemoteFile(s.Dataset, s.Location, s.Name, sep)
	case TableKind:
		if s.Conn == nil {
			return nil, invalid("table %s has no connection", s.Table)
		}
		return NewTable(s.Dataset, *s.Conn, s.Table)
	case BenchmarkKind:
		sep, err := s.separator()
		if err != nil {
			return nil, err
		}
		return NewBenchmark(s.Path, sep)
	}
	return nil, invalid("unknown kind %q", s.Kind)
}

// SpecOf serializes a descriptor.
func SpecOf(d Descriptor) Spec {
	switch t := d.(type) {
	case LocalFile:
		return Spec{Kind: t.Kind(), Dataset: t.Dataset, Dir: t.Dir, Name: t.Name, Separator: string(t.Separator)}
	case RemoteFile:
		return Spec{Kind: t.Kind(), Dataset: t.Dataset, Location: t.Location, Name: t.Name, Separator: string(t.Separator)}
	case Table:
		conn := t.Conn
		return Spec{Kind: t.Kind(), Dataset: t.Dataset, Conn: &conn, Table: t.Table}
	case Benchmark:
		return Spec{Kind: t.Kind(), Path: t.Path, Separator: string(t.Separator)}
	}
	return Spec{}
}
