package ddstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
	"sync"

	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddfs"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

// FileStore writes profiles as JSON lines. Profiles are partitioned by
// source into numBins files under dir, which may be a local directory or
// an s3:// prefix. Each Flush closes the open files and starts a new
// generation of bins.
type FileStore struct {
	numBins      uint                    // number of output bins
	writers      map[uint]io.WriteCloser // maps a bin number to an open writer
	fs           ddfs.FileSystem         // filesystem to use when opening writers
	dir          string                  // folder to save profiles to
	generation   uint                    // incremented on every Flush
	writtenBytes int64

	mut sync.Mutex
}

func newFileStore(cfg Config) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("file store requires an output directory")
	}
	fs, err := ddfs.InferFilesystem(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return NewFileStore(fs, cfg.Dir, cfg.Bins), nil
}

// NewFileStore creates a FileStore writing through fs.
func NewFileStore(fs ddfs.FileSystem, dir string, numBins uint) *FileStore {
	if numBins == 0 {
		numBins = DefaultBins
	}
	return &FileStore{
		numBins: numBins,
		writers: make(map[uint]io.WriteCloser, numBins),
		fs:      fs,
		dir:     dir,
	}
}

// hashPartition partitions a key to one of numBins bins
func hashPartition(key string, numBins uint) uint {
	h := fnv.New64()
	h.Write([]byte(key))
	return uint(h.Sum64() % uint64(numBins))
}

func (s *FileStore) binPath(bin uint) string {
	return s.fs.Join(s.dir, fmt.Sprintf("profiles-bin%d-%d.jsonl", bin, s.generation))
}

func (s *FileStore) Write(ctx context.Context, col *ddprofile.Column) error {
	data, err := json.Marshal(col)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	bin := hashPartition(col.Dataset+"/"+col.Source, s.numBins)

	s.mut.Lock()
	defer s.mut.Unlock()

	writer, exists := s.writers[bin]
	if !exists {
		writer, err = s.fs.OpenWriter(s.binPath(bin))
		if err != nil {
			return err
		}
		s.writers[bin] = writer
	}

	n, err := writer.Write(data)
	s.writtenBytes += int64(n)
	return err
}

// Flush closes every open bin.
func (s *FileStore) Flush(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	errs := make([]string, 0)
	for _, writer := range s.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(s.writers) > 0 {
		s.writers = make(map[uint]io.WriteCloser, s.numBins)
		s.generation++
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}

func (s *FileStore) TearDown(ctx context.Context) error {
	err := s.Flush(ctx)
	log.Debugf("File store wrote %s to %s", humanize.Bytes(uint64(s.BytesWritten())), s.dir)
	return err
}

// BytesWritten returns the number of bytes written across all bins.
func (s *FileStore) BytesWritten() int64 {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.writtenBytes
}
