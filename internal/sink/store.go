// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sink persists finished runs. The latest RunResult lives in a
// single overwritten settings slot; every run also leaves a row in the
// run history.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pliegos/pkg/types"
)

// Settings keys, named as the popup surface stores them.
const (
	LastQueryKey       = "lastQuery"
	LastSearchTimeKey  = "lastSearchTime"
	SelectedSourcesKey = "selectedSources"
	OpenModeKey        = "openMode"
	PaginationKey      = "paginationEnabled"
	PagesPerSourceKey  = "pagesPerSource"
	ScrapingKey        = "scrapingEnabled"
	TotalSearchesKey   = "totalSearches"
	TotalTabsKey       = "totalTabs"
	LastSearchKey      = "lastSearch"
)

// Store is a key/value settings store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at cfg.Path and ensures the schema.
func Open(cfg types.SinkConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = types.DefaultPipelineConfig().Sink.Path
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			finished_at INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			total_records INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Put stores v as JSON under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	return put(ctx, s.db, key, v, s.now())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, key string, v any, now time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(data), now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get decodes the value under key into v. It reports false when the key
// is absent.
func (s *Store) Get(ctx context.Context, key string, v any) (bool, error) {
	return get(ctx, s.db, key, v)
}

func get(ctx context.Context, db querier, key string, v any) (bool, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// SaveResult overwrites the last-result slot with r and appends r to the
// run history, atomically.
func (s *Store) SaveResult(ctx context.Context, r types.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := put(ctx, tx, types.LastResultKey, r, s.now()); err != nil {
		return err
	}

	if r.RunID != "" {
		sum := r.Summarize()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, query, finished_at, elapsed_ms, total_records, succeeded, failed)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(run_id) DO UPDATE SET
				query=excluded.query, finished_at=excluded.finished_at, elapsed_ms=excluded.elapsed_ms,
				total_records=excluded.total_records, succeeded=excluded.succeeded, failed=excluded.failed`,
			r.RunID, r.Query, int64(r.Timestamp), r.Elapsed, sum.TotalRecords, sum.Succeeded, sum.Failed,
		)
		if err != nil {
			return fmt.Errorf("recording run %s: %w", r.RunID, err)
		}
	}

	return tx.Commit()
}

// LastResult returns the most recently saved run.
func (s *Store) LastResult(ctx context.Context) (types.RunResult, bool, error) {
	var r types.RunResult
	ok, err := s.Get(ctx, types.LastResultKey, &r)
	return r, ok, err
}

// SaveLastQuery remembers the query of the latest search and when it was
// made.
func (s *Store) SaveLastQuery(ctx context.Context, query string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	if err := put(ctx, tx, LastQueryKey, query, now); err != nil {
		return err
	}
	if err := put(ctx, tx, LastSearchTimeKey, now.UTC().Format(time.RFC3339Nano), now); err != nil {
		return err
	}
	return tx.Commit()
}

// LastQuery returns the remembered query, or "".
func (s *Store) LastQuery(ctx context.Context) (string, error) {
	var q string
	_, err := s.Get(ctx, LastQueryKey, &q)
	return q, err
}

// OpenMode says where the tabs of a search are opened.
type OpenMode string

const (
	OpenInTabs   OpenMode = "tabs"
	OpenInWindow OpenMode = "window"
)

// SearchState is the remembered search form: which catalogs were picked
// and how their pages were opened.
type SearchState struct {
	Sources        []types.SourceID
	OpenMode       OpenMode
	Pagination     bool
	PagesPerSource int
	Scraping       bool
}

// SaveSearchState stores every field of st under its own key.
func (s *Store) SaveSearchState(ctx context.Context, st SearchState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	sources := st.Sources
	if sources == nil {
		sources = []types.SourceID{}
	}
	now := s.now()
	values := []struct {
		key string
		v   any
	}{
		{SelectedSourcesKey, sources},
		{OpenModeKey, st.OpenMode},
		{PaginationKey, st.Pagination},
		{PagesPerSourceKey, st.PagesPerSource},
		{ScrapingKey, st.Scraping},
	}
	for _, kv := range values {
		if err := put(ctx, tx, kv.key, kv.v, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SearchState returns the remembered search form. It reports false when
// no search state has been saved.
func (s *Store) SearchState(ctx context.Context) (SearchState, bool, error) {
	var st SearchState
	ok, err := s.Get(ctx, SelectedSourcesKey, &st.Sources)
	if err != nil || !ok {
		return SearchState{}, false, err
	}
	targets := []struct {
		key string
		v   any
	}{
		{OpenModeKey, &st.OpenMode},
		{PaginationKey, &st.Pagination},
		{PagesPerSourceKey, &st.PagesPerSource},
		{ScrapingKey, &st.Scraping},
	}
	for _, kv := range targets {
		if _, err := s.Get(ctx, kv.key, kv.v); err != nil {
			return SearchState{}, false, err
		}
	}
	return st, true, nil
}

// SearchStats counts the searches started from this store.
type SearchStats struct {
	TotalSearches int       `json:"totalSearches"`
	TotalTabs     int       `json:"totalTabs"`
	LastSearch    time.Time `json:"lastSearch"`
}

// RecordSearch counts one more search that opened tabs tabs.
func (s *Store) RecordSearch(ctx context.Context, tabs int) (SearchStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SearchStats{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var st SearchStats
	if _, err := get(ctx, tx, TotalSearchesKey, &st.TotalSearches); err != nil {
		return SearchStats{}, err
	}
	if _, err := get(ctx, tx, TotalTabsKey, &st.TotalTabs); err != nil {
		return SearchStats{}, err
	}
	st.TotalSearches++
	st.TotalTabs += tabs
	now := s.now()
	st.LastSearch = now.UTC()

	if err := put(ctx, tx, TotalSearchesKey, st.TotalSearches, now); err != nil {
		return SearchStats{}, err
	}
	if err := put(ctx, tx, TotalTabsKey, st.TotalTabs, now); err != nil {
		return SearchStats{}, err
	}
	if err := put(ctx, tx, LastSearchKey, st.LastSearch.Format(time.RFC3339Nano), now); err != nil {
		return SearchStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return SearchStats{}, fmt.Errorf("committing search stats: %w", err)
	}
	return st, nil
}

// Stats returns the search counters. All fields are zero before the
// first recorded search.
func (s *Store) Stats(ctx context.Context) (SearchStats, error) {
	var st SearchStats
	if _, err := s.Get(ctx, TotalSearchesKey, &st.TotalSearches); err != nil {
		return SearchStats{}, err
	}
	if _, err := s.Get(ctx, TotalTabsKey, &st.TotalTabs); err != nil {
		return SearchStats{}, err
	}
	var last string
	ok, err := s.Get(ctx, LastSearchKey, &last)
	if err != nil {
		return SearchStats{}, err
	}
	if ok {
		t, err := time.Parse(time.RFC3339Nano, last)
		if err != nil {
			return SearchStats{}, fmt.Errorf("decoding %s: %w", LastSearchKey, err)
		}
		st.LastSearch = t
	}
	return st, nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID        string       `json:"runId" yaml:"run_id"`
	Query        string       `json:"query" yaml:"query"`
	FinishedAt   types.Millis `json:"finishedAt" yaml:"finished_at"`
	ElapsedMS    int64        `json:"elapsedMs" yaml:"elapsed_ms"`
	TotalRecords int          `json:"totalRecords" yaml:"total_records"`
	Succeeded    int          `json:"succeeded" yaml:"succeeded"`
	Failed       int          `json:"failed" yaml:"failed"`
}

// History returns up to limit runs, newest first. A limit of 0 returns
// all of them.
func (s *Store) History(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT run_id, query, finished_at, elapsed_ms, total_records, succeeded, failed
		FROM runs ORDER BY finished_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying run history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var finished int64
		if err := rows.Scan(&rs.RunID, &rs.Query, &finished, &rs.ElapsedMS, &rs.TotalRecords, &rs.Succeeded, &rs.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		rs.FinishedAt = types.Millis(finished)
		out = append(out, rs)
	}
	return out, rows.Err()
}
