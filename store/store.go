// Package store implements the persistent relational state for sites,
// pages, lemmas and page-lemma index entries. It exposes transactional
// operations with retry on lock conflicts, backed by
// modernc.org/sqlite (a pure-Go SQLite driver) through database/sql.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SiteStatus is the lifecycle state of a Site, per the crawl state
// machine: (absent) -> INDEXING -> INDEXED|FAILED -> INDEXING (re-index).
type SiteStatus string

const (
	StatusIndexing SiteStatus = "INDEXING"
	StatusIndexed  SiteStatus = "INDEXED"
	StatusFailed   SiteStatus = "FAILED"
)

// Site is a configured crawl target, identified by its absolute root URL.
type Site struct {
	ID         int64
	URL        string
	Name       string
	Status     SiteStatus
	StatusTime time.Time
	LastError  string
}

// Page is a single fetched resource, identified by (site, path).
type Page struct {
	ID       int64
	SiteID   int64
	Path     string
	HTTPCode int
	Content  string
}

// Lemma is a canonical word base form observed on at least one page of a
// site, identified by (site, text). Frequency is the number of distinct
// pages of that site referencing it.
type Lemma struct {
	ID        int64
	SiteID    int64
	Text      string
	Frequency int
}

// LemmaRank is a single (lemma text, occurrence count) pair to be
// persisted for a page via WriteIndexBatch.
type LemmaRank struct {
	Text string
	Rank float64
}

const schema = `
CREATE TABLE IF NOT EXISTS sites (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	status_time DATETIME NOT NULL,
	last_error  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id   INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	path      TEXT NOT NULL,
	http_code INTEGER NOT NULL,
	content   TEXT NOT NULL,
	UNIQUE(site_id, path)
);
CREATE INDEX IF NOT EXISTS idx_pages_path ON pages(path);

CREATE TABLE IF NOT EXISTS lemmas (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id   INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	text      TEXT NOT NULL,
	frequency INTEGER NOT NULL DEFAULT 0,
	UNIQUE(site_id, text)
);
CREATE INDEX IF NOT EXISTS idx_lemmas_site_text ON lemmas(site_id, text);

CREATE TABLE IF NOT EXISTS index_entries (
	page_id  INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	lemma_id INTEGER NOT NULL REFERENCES lemmas(id) ON DELETE CASCADE,
	rank     REAL NOT NULL,
	PRIMARY KEY(page_id, lemma_id)
);
CREATE INDEX IF NOT EXISTS idx_index_entries_lemma ON index_entries(lemma_id);
`

// Store is the SQLite-backed persistence layer for sites, pages, lemmas
// and their index entries.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open creates (if needed) and opens a SQLite database at path, applying
// the schema and enabling WAL journaling, a busy timeout so short-lived
// lock conflicts block briefly before returning SQLITE_BUSY (which
// withRetry then retries at a higher level), and foreign key enforcement
// via the connection DSN so it applies to every connection regardless of
// pool size.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: log.New(os.Stderr, "store: ", log.LstdFlags),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// TransientStoreError reports that a transaction was retried on a lock
// conflict and ultimately did not succeed within the retry budget.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store: %s: persistent lock conflict: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

const maxRetryAttempts = 3

// withRetry runs fn inside a new READ_COMMITTED transaction, committing
// on success. On a lock-conflict error it tries again, making at most
// maxRetryAttempts attempts in all, with a linearly growing delay
// (attempt * 1s) between them; once exhausted the failure is wrapped in a
// TransientStoreError and surfaced.
func (s *Store) withRetry(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		err := s.runInTx(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockConflict(err) {
			return err
		}
		if attempt < maxRetryAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return &TransientStoreError{Op: op, Err: lastErr}
}

func (s *Store) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isLockConflict recognizes the textual shape of SQLite's busy/locked
// errors. modernc.org/sqlite surfaces these as plain errors whose message
// contains "locked" or "busy"; matching on text keeps this independent of
// the driver's internal error-code types.
func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
