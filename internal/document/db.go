// Package document implements a small collection-oriented document store
// on SQLite. It is the persistence backend consumed by the storage
// engine: documents are JSON bodies addressed by exact-match filters,
// with insert/find/count/replace/merge-patch operations, named atomic
// counters, and a server-time query.
package document

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// dbFileName is the SQLite database file created inside the data
// directory.
const dbFileName = "studybook.db"

// serverTimeLayout matches the output of strftime('%Y-%m-%d %H:%M:%f').
const serverTimeLayout = "2006-01-02 15:04:05.000"

// collectionNameRE restricts collection and field names to identifiers
// safe to interpolate into SQL.
var collectionNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DB is a handle to the document store. Collections are created lazily
// on first access. A single RWMutex guards the SQLite handle; individual
// operations are safe for concurrent use, sequences of operations are
// not atomic.
type DB struct {
	mu          sync.RWMutex
	db          *sql.DB
	collections map[string]*Collection
}

// Open creates the data directory if needed and opens the database,
// initializing the counters table.
func Open(dataDir string) (*DB, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS counters (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing counters: %w", err)
	}

	return &DB{db: db, collections: make(map[string]*Collection)}, nil
}

// Close releases the database handle. Close is idempotent.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return err
	}
	d.db = nil
	d.collections = make(map[string]*Collection)
	return nil
}

// Collection returns the named collection, creating its table on first
// access.
func (d *DB) Collection(name string) (*Collection, error) {
	if !collectionNameRE.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil, ErrClosed
	}
	if c, ok := d.collections[name]; ok {
		return c, nil
	}

	if _, err := d.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_id TEXT PRIMARY KEY,
			body   TEXT NOT NULL
		)`, name)); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	c := &Collection{name: name, db: d}
	d.collections[name] = c
	return c, nil
}

// NextSequence atomically increments and returns the named counter. The
// first call for a name returns 0. Counters only advance, so identifiers
// drawn from them are never reused, including after logical deletes.
func (d *DB) NextSequence(name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return 0, ErrClosed
	}

	var value int64
	err := d.db.QueryRow(`
		INSERT INTO counters (name, value) VALUES (?, 0)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advancing sequence %s: %w", name, err)
	}
	return value, nil
}

// ServerTime returns the backend's current time in UTC with millisecond
// precision.
func (d *DB) ServerTime() (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return time.Time{}, ErrClosed
	}

	var raw string
	if err := d.db.QueryRow(
		`SELECT strftime('%Y-%m-%d %H:%M:%f', 'now')`).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("querying server time: %w", err)
	}
	t, err := time.Parse(serverTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing server time %q: %w", raw, err)
	}
	return t, nil
}
