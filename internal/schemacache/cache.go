// Package schemacache memoizes the table list and per-table schemas of a
// backend for the read-mostly introspection tools.
//
// The cache never expires on its own. After DDL outside this process it can
// be stale until Refresh runs again.
package schemacache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/shakram02/go-mcp-db-gateway/internal/backend"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
)

const (
	// DefaultRefreshWorkers bounds concurrent schema fetches during Refresh.
	DefaultRefreshWorkers = 4
	// DefaultFetchTimeout bounds a shared lazy fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Source is the part of a backend the cache reads from.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	Schema(ctx context.Context, table string) (backend.TableSchema, error)
}

// snapshot is immutable once published.
type snapshot struct {
	tables    []string // nil until listed
	schemas   map[string]backend.TableSchema
	refreshed bool
}

// Cache is safe for concurrent use. Readers always see a complete snapshot;
// Refresh builds a new one and swaps it in.
type Cache struct {
	src          Source
	workers      int
	fetchTimeout time.Duration

	current   atomic.Pointer[snapshot]
	refreshMu sync.Mutex // serializes Refresh and lazy publishes
	sf        singleflight.Group
}

// New returns an empty cache over src.
func New(src Source) *Cache {
	c := &Cache{src: src, workers: DefaultRefreshWorkers, fetchTimeout: DefaultFetchTimeout}
	c.current.Store(&snapshot{schemas: map[string]backend.TableSchema{}})
	return c
}

// Refresh lists every table and fetches every schema, then replaces the
// cache in one step. On error the previous contents stay in place.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	tables, err := c.src.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	schemas := make([]backend.TableSchema, len(tables))
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(c.workers)
	for i, table := range tables {
		p.Go(func(ctx context.Context) error {
			s, err := c.src.Schema(ctx, table)
			if err != nil {
				return fmt.Errorf("schema for %q: %w", table, err)
			}
			schemas[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	next := &snapshot{
		tables:    append([]string{}, tables...),
		schemas:   make(map[string]backend.TableSchema, len(tables)),
		refreshed: true,
	}
	for i, table := range tables {
		next.schemas[table] = schemas[i]
	}
	c.current.Store(next)

	log.Info().
		Int("tables", len(tables)).
		Dur("took", time.Since(start)).
		Msg("schema cache refreshed")
	return nil
}

// Refreshed reports whether a full Refresh has completed.
func (c *Cache) Refreshed() bool {
	return c.current.Load().refreshed
}

// Tables returns the cached table list, listing the backend once if it has
// never been listed.
func (c *Cache) Tables(ctx context.Context) ([]string, error) {
	if snap := c.current.Load(); snap.tables != nil {
		return append([]string{}, snap.tables...), nil
	}

	v, err, _ := c.sf.Do("\x00tables", func() (any, error) {
		if snap := c.current.Load(); snap.tables != nil {
			return snap.tables, nil
		}
		fetchCtx, cancel := c.sharedContext(ctx)
		defer cancel()
		tables, err := c.src.ListTables(fetchCtx)
		if err != nil {
			return nil, err
		}
		if tables == nil {
			tables = []string{}
		}
		c.publish(func(s *snapshot) {
			if s.tables == nil {
				s.tables = tables
			}
		})
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string{}, v.([]string)...), nil
}

// Get returns the schema of table. Before the first Refresh a missing entry
// is fetched from the backend and memoized. After a Refresh an entry that
// is not cached is reported as not found.
func (c *Cache) Get(ctx context.Context, table string) (backend.TableSchema, error) {
	snap := c.current.Load()
	if s, ok := snap.schemas[table]; ok {
		log.Debug().Str("table", table).Msg("schema cache hit")
		return s, nil
	}
	if snap.refreshed {
		return nil, errs.NotFoundf("table %q not found", table)
	}

	v, err, _ := c.sf.Do(table, func() (any, error) {
		if s, ok := c.current.Load().schemas[table]; ok {
			return s, nil
		}
		log.Debug().Str("table", table).Msg("schema cache miss, fetching")
		fetchCtx, cancel := c.sharedContext(ctx)
		defer cancel()
		s, err := c.src.Schema(fetchCtx, table)
		if err != nil {
			return nil, err
		}
		c.publish(func(snap *snapshot) {
			if _, ok := snap.schemas[table]; !ok && !snap.refreshed {
				snap.schemas[table] = s
			}
		})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(backend.TableSchema), nil
}

// Entry pairs a table with its schema.
type Entry struct {
	Table   string              `json:"table_name"`
	Columns backend.TableSchema `json:"columns"`
}

// All returns every table with its schema in table-list order, running a
// full Refresh first if none has run.
func (c *Cache) All(ctx context.Context) ([]Entry, error) {
	if !c.Refreshed() {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	snap := c.current.Load()
	out := make([]Entry, 0, len(snap.tables))
	for _, t := range snap.tables {
		out = append(out, Entry{Table: t, Columns: snap.schemas[t]})
	}
	return out, nil
}

// sharedContext detaches a singleflight fetch from the caller that runs it.
// The fetch is bounded by fetchTimeout instead.
func (c *Cache) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
}

// publish copies the current snapshot, applies mutate and swaps it in.
func (c *Cache) publish(mutate func(*snapshot)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur := c.current.Load()
	next := &snapshot{
		tables:    cur.tables,
		schemas:   make(map[string]backend.TableSchema, len(cur.schemas)+1),
		refreshed: cur.refreshed,
	}
	for k, v := range cur.schemas {
		next.schemas[k] = v
	}
	mutate(next)
	c.current.Store(next)
}
