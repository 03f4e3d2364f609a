package ddstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	log "github.com/sirupsen/logrus"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
)

const profileMapping = `{
  "mappings": {
    "properties": {
      "dataset":       {"type": "keyword"},
      "source":        {"type": "keyword"},
      "column":        {"type": "keyword"},
      "type":          {"type": "keyword"},
      "total_values":  {"type": "long"},
      "null_values":   {"type": "long"},
      "unique_values": {"type": "long"},
      "numeric":       {"type": "object"},
      "text": {
        "properties": {
          "samples": {"type": "text"}
        }
      },
      "profiled_at":   {"type": "date"}
    }
  }
}`

var errIndexerClosed = errors.New("elastic store is torn down")

// ElasticStore indexes profiles into Elasticsearch with a bulk indexer.
// Documents are keyed by Column.ID.
type ElasticStore struct {
	client        *elasticsearch.Client
	index         string
	flushInterval time.Duration

	// writers hold the read lock; Flush swaps the indexer under the write lock
	mut     sync.RWMutex
	indexer esutil.BulkIndexer

	failed  atomic.Int64
	dropped atomic.Int64
}

func newElasticStore(ctx context.Context, cfg Config) (*ElasticStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect elasticsearch: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("connect elasticsearch: %s", res.Status())
	}

	s := &ElasticStore{
		client:        client,
		index:         cfg.Index,
		flushInterval: cfg.FlushInterval,
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	if s.indexer, err = s.newIndexer(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ElasticStore) ensureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		return nil
	}

	log.Infof("Creating index %s", s.index)
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(profileMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, res.String())
	}
	return nil
}

func (s *ElasticStore) newIndexer() (esutil.BulkIndexer, error) {
	return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        s.client,
		Index:         s.index,
		FlushInterval: s.flushInterval,
		OnError: func(ctx context.Context, err error) {
			log.Errorf("Bulk indexing error: %s", err)
		},
	})
}

func (s *ElasticStore) onFailure(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
	s.failed.Add(1)
	s.dropped.Add(1)
	if err != nil {
		log.Errorf("Error indexing %s: %s", item.DocumentID, err)
		return
	}
	log.Errorf("Error indexing %s: %s: %s", item.DocumentID, res.Error.Type, res.Error.Reason)
}

func (s *ElasticStore) Write(ctx context.Context, col *ddprofile.Column) error {
	data, err := json.Marshal(col)
	if err != nil {
		return err
	}

	s.mut.RLock()
	defer s.mut.RUnlock()
	if s.indexer == nil {
		return errIndexerClosed
	}
	return s.indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: col.ID(),
		Body:       bytes.NewReader(data),
		OnFailure:  s.onFailure,
	})
}

// Flush drains the bulk indexer and reports documents that failed since
// the previous Flush.
func (s *ElasticStore) Flush(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.indexer == nil {
		return errIndexerClosed
	}

	err := s.closeIndexerLocked(ctx)
	if err != nil {
		return err
	}
	s.indexer, err = s.newIndexer()
	if err != nil {
		return err
	}
	return s.failures()
}

func (s *ElasticStore) closeIndexerLocked(ctx context.Context) error {
	err := s.indexer.Close(ctx)
	stats := s.indexer.Stats()
	log.Debugf("Indexed %d profiles into %s (%d failed)", stats.NumIndexed, s.index, stats.NumFailed)
	s.indexer = nil
	return err
}

func (s *ElasticStore) failures() error {
	if n := s.failed.Swap(0); n > 0 {
		return fmt.Errorf("%d profiles failed to index", n)
	}
	return nil
}

// Dropped returns the number of profiles the cluster rejected.
func (s *ElasticStore) Dropped() int64 {
	return s.dropped.Load()
}

func (s *ElasticStore) TearDown(ctx context.Context) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.indexer == nil {
		return nil
	}
	if err := s.closeIndexerLocked(ctx); err != nil {
		return err
	}
	return s.failures()
}
