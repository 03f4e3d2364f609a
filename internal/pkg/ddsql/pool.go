package ddsql

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// DefaultPoolSize is the number of distinct databases kept open by a Pool
const DefaultPoolSize = 16

// poolEntry is one cached database. A handle is closed once it has left the
// cache and its last lease is released.
type poolEntry struct {
	db    *sql.DB
	err   error
	ready chan struct{}

	leases  int
	evicted bool
}

// Pool caches open database handles keyed by connection. Handles that fall
// out of the cache are closed after their last lease is released.
type Pool struct {
	mu    sync.Mutex
	cache *lru.Cache
	open  func(ctx context.Context, c ConnInfo) (*sql.DB, error)
}

// NewPool creates a Pool holding at most size open databases.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{open: Open}
	cache, err := lru.NewWithEvict(size, func(key interface{}, value interface{}) {
		e := value.(*poolEntry)
		e.evicted = true
		if e.leases == 0 {
			closeEntry(e)
		}
	})
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

func closeEntry(e *poolEntry) {
	if e.db == nil {
		return
	}
	log.Debug("Closing evicted database connection")
	if err := e.db.Close(); err != nil {
		log.Warnf("Error closing database: %s", err)
	}
}

// Get returns an open handle for the connection, connecting on first use.
// The handle stays open until release is called, even if it is evicted in
// the meantime. Connecting does not block callers of other connections.
func (p *Pool) Get(ctx context.Context, c ConnInfo) (db *sql.DB, release func(), err error) {
	dsn, err := c.DSN()
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	e, ok := p.lookup(dsn)
	if !ok {
		e = &poolEntry{ready: make(chan struct{})}
		p.cache.Add(dsn, e)
	}
	e.leases++
	p.mu.Unlock()

	release = p.releaser(e)

	if !ok {
		opened, openErr := p.open(ctx, c)
		p.mu.Lock()
		e.db, e.err = opened, openErr
		if openErr != nil {
			if cur, found := p.cache.Peek(dsn); found && cur == e {
				p.cache.Remove(dsn)
			}
		}
		close(e.ready)
		p.mu.Unlock()
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}
	if e.err != nil {
		release()
		return nil, nil, e.err
	}
	return e.db, release, nil
}

func (p *Pool) lookup(dsn string) (*poolEntry, bool) {
	v, ok := p.cache.Get(dsn)
	if !ok {
		return nil, false
	}
	return v.(*poolEntry), true
}

func (p *Pool) releaser(e *poolEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			e.leases--
			if e.leases == 0 && e.evicted {
				closeEntry(e)
			}
		})
	}
}

// Len returns the number of cached databases.
func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close evicts every cached database. Leased handles are closed on release.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}
