// Package sqlite implements the durable LRU cache backend. Entries live
// in a single SQLite table and survive process restarts; capacity is
// enforced by an eviction trigger that fires in the same transaction as
// the inserting statement.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/quillcache/quill/pkg/cache"
	"github.com/quillcache/quill/pkg/models"
)

// timeLayout is a fixed-width UTC timestamp format. Zero-padded
// nanoseconds keep lexicographic order identical to time order, which the
// eviction trigger relies on when it sorts by last_accessed.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Cache is a durable LRU response cache backed by SQLite. One *sql.DB
// limited to a single connection is shared across all callers; the engine
// serializes concurrent writers. Hit/miss counters are process-local and
// reset on restart — only the entries themselves are durable.
type Cache struct {
	db      *sql.DB
	path    string
	maxSize int
	log     zerolog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS lru_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	input TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	response TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_accessed DATETIME NOT NULL,
	UNIQUE (input, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_lru_cache_access ON lru_cache(last_accessed);
`

// evictTrigger deletes the oldest-by-last_accessed excess rows whenever an
// insert pushes the row count past the capacity bound, in the inserting
// statement's own transaction. Ties are broken by row id. The trigger is
// recreated on every setup so a changed capacity takes effect.
const evictTrigger = `
CREATE TRIGGER lru_cache_evict
AFTER INSERT ON lru_cache
WHEN (SELECT COUNT(*) FROM lru_cache) > %d
BEGIN
	DELETE FROM lru_cache WHERE id IN (
		SELECT id FROM lru_cache
		ORDER BY last_accessed ASC, id ASC
		LIMIT (SELECT COUNT(*) FROM lru_cache) - %d
	);
END;
`

// New opens (creating if needed) the cache database at path and installs
// the schema and eviction trigger. maxSize is clamped to a minimum of 1.
// Any setup error is fatal: the durable cache never starts half-built.
func New(path string, maxSize int, logger zerolog.Logger) (*Cache, error) {
	if maxSize < 1 {
		maxSize = 1
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	if _, err := db.Exec(`DROP TRIGGER IF EXISTS lru_cache_evict`); err != nil {
		db.Close()
		return nil, fmt.Errorf("drop eviction trigger: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(evictTrigger, maxSize, maxSize)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create eviction trigger: %w", err)
	}

	return &Cache{db: db, path: path, maxSize: maxSize, log: logger}, nil
}

// Lookup fetches the cached value for key and, on a hit, refreshes its
// last-accessed time in the same transaction. Storage errors degrade to a
// miss; this backend has no TTL.
func (c *Cache) Lookup(key cache.Key) (string, bool) {
	tx, err := c.db.Begin()
	if err != nil {
		c.log.Error().Err(err).Msg("cache lookup: begin transaction")
		c.misses.Add(1)
		return "", false
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var value string
	err = tx.QueryRow(
		`SELECT response FROM lru_cache WHERE input = ? AND fingerprint = ?`,
		key.Input, key.Fingerprint,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return "", false
	}
	if err != nil {
		c.log.Error().Err(err).Msg("cache lookup: select")
		c.misses.Add(1)
		return "", false
	}

	if _, err := tx.Exec(
		`UPDATE lru_cache SET last_accessed = ? WHERE input = ? AND fingerprint = ?`,
		now(), key.Input, key.Fingerprint,
	); err != nil {
		c.log.Error().Err(err).Msg("cache lookup: touch entry")
		c.misses.Add(1)
		return "", false
	}
	if err := tx.Commit(); err != nil {
		c.log.Error().Err(err).Msg("cache lookup: commit")
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return value, true
}

// Update upserts value under key with last_accessed set to now. The
// uniqueness constraint on (input, fingerprint) makes this succeed
// uniformly whether the key pre-existed or not, and the eviction trigger
// keeps the row count within capacity atomically with the insert.
// Storage errors degrade to a no-op.
func (c *Cache) Update(key cache.Key, value string) {
	ts := now()
	if _, err := c.db.Exec(
		`INSERT OR REPLACE INTO lru_cache (input, fingerprint, response, created_at, last_accessed)
		 VALUES (?, ?, ?, ?, ?)`,
		key.Input, key.Fingerprint, value, ts, ts,
	); err != nil {
		c.log.Error().Err(err).Msg("cache update")
	}
}

// Clear deletes all rows. The id sequence is left intact.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM lru_cache`); err != nil {
		c.log.Error().Err(err).Msg("cache clear")
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats reports current metrics. HitRate derives from the process-local
// counters. On a storage error the counter-based fields are still
// returned alongside the error.
func (c *Cache) Stats() (models.CacheStats, error) {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := models.CacheStats{
		Type:    models.BackendSQLite,
		MaxSize: int64(c.maxSize),
		Hits:    hits,
		Misses:  misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM lru_cache`).Scan(&stats.CurrentSize); err != nil {
		c.log.Error().Err(err).Msg("cache stats: count")
		return stats, fmt.Errorf("cache stats: %w", err)
	}

	var oldest, newest sql.NullString
	err := c.db.QueryRow(
		`SELECT MIN(last_accessed), MAX(last_accessed) FROM lru_cache`,
	).Scan(&oldest, &newest)
	if err != nil {
		c.log.Error().Err(err).Msg("cache stats: entry ages")
		return stats, fmt.Errorf("cache stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest, _ = time.Parse(timeLayout, oldest.String)
	}
	if newest.Valid {
		stats.Newest, _ = time.Parse(timeLayout, newest.String)
	}
	return stats, nil
}

// Ping performs a trivial round-trip query against the store.
func (c *Cache) Ping() error {
	var one int
	if err := c.db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("sqlite cache probe: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (c *Cache) Path() string { return c.path }

// Close releases the database connection. Only the owner may call this,
// at teardown.
func (c *Cache) Close() error {
	return c.db.Close()
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
