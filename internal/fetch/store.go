package fetch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store tracks cached objects and completed runs in a SQLite index beside
// the cache tree.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the cache index database.
func OpenStore(cacheDir string) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}

	dbPath := filepath.Join(cacheDir, "index.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry describes one cached object.
type Entry struct {
	BookID    string
	ObjectID  string
	Href      string
	Size      int64
	SHA256    string
	Attempts  int
	FetchedAt time.Time
}

// RecordObject upserts the index row for a freshly cached object.
func (s *Store) RecordObject(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO cached_objects (book_id, object_id, href, size, sha256, attempts, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (book_id, object_id) DO UPDATE SET
             href = excluded.href, size = excluded.size, sha256 = excluded.sha256,
             attempts = excluded.attempts, fetched_at = excluded.fetched_at`,
		entry.BookID,
		entry.ObjectID,
		entry.Href,
		entry.Size,
		entry.SHA256,
		entry.Attempts,
		entry.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record object: %w", err)
	}
	return nil
}

// LookupObject returns the index entry for an object, or nil when absent.
func (s *Store) LookupObject(ctx context.Context, bookID, objectID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT book_id, object_id, href, size, sha256, attempts, fetched_at
         FROM cached_objects WHERE book_id = ? AND object_id = ?`,
		bookID, objectID,
	)
	var (
		entry      Entry
		fetchedRaw string
	)
	err := row.Scan(&entry.BookID, &entry.ObjectID, &entry.Href, &entry.Size, &entry.SHA256, &entry.Attempts, &fetchedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup object: %w", err)
	}
	if fetched, parseErr := time.Parse(time.RFC3339Nano, fetchedRaw); parseErr == nil {
		entry.FetchedAt = fetched
	}
	return &entry, nil
}

// BookStats summarizes the cached state of one book.
type BookStats struct {
	BookID  string `json:"book_id"`
	Objects int    `json:"objects"`
	Bytes   int64  `json:"bytes"`
}

// Stats returns per-book object counts and byte totals.
func (s *Store) Stats(ctx context.Context) ([]BookStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT book_id, COUNT(1), COALESCE(SUM(size), 0)
         FROM cached_objects GROUP BY book_id ORDER BY book_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	var stats []BookStats
	for rows.Next() {
		var bs BookStats
		if err := rows.Scan(&bs.BookID, &bs.Objects, &bs.Bytes); err != nil {
			return nil, err
		}
		stats = append(stats, bs)
	}
	return stats, rows.Err()
}

// ClearBook removes index rows for one book and returns the count removed.
func (s *Store) ClearBook(ctx context.Context, bookID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_objects WHERE book_id = ?`, bookID)
	if err != nil {
		return 0, fmt.Errorf("clear book: %w", err)
	}
	return res.RowsAffected()
}

// ClearAll removes every index row and returns the count removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_objects`)
	if err != nil {
		return 0, fmt.Errorf("clear cache index: %w", err)
	}
	return res.RowsAffected()
}

// RunRecord is the provenance row written after each completed rip.
type RunRecord struct {
	RunID      string
	BookID     string
	OutputPath string
	Expected   int
	Rendered   int
	Missing    int
	WrongKey   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordRun persists the outcome of a completed rip run.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, book_id, output_path, expected_pages, rendered_pages,
             missing_pages, wrong_key, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.BookID,
		rec.OutputPath,
		rec.Expected,
		rec.Rendered,
		rec.Missing,
		boolToInt(rec.WrongKey),
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Runs returns recorded runs for a book, newest first. An empty bookID
// returns all runs.
func (s *Store) Runs(ctx context.Context, bookID string) ([]RunRecord, error) {
	query := `SELECT run_id, book_id, output_path, expected_pages, rendered_pages,
             missing_pages, wrong_key, started_at, finished_at FROM runs`
	var args []any
	if bookID != "" {
		query += ` WHERE book_id = ?`
		args = append(args, bookID)
	}
	query += ` ORDER BY finished_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec         RunRecord
			wrongKey    int
			startedRaw  string
			finishedRaw string
		)
		if err := rows.Scan(&rec.RunID, &rec.BookID, &rec.OutputPath, &rec.Expected,
			&rec.Rendered, &rec.Missing, &wrongKey, &startedRaw, &finishedRaw); err != nil {
			return nil, err
		}
		rec.WrongKey = wrongKey != 0
		if t, parseErr := time.Parse(time.RFC3339Nano, startedRaw); parseErr == nil {
			rec.StartedAt = t
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, finishedRaw); parseErr == nil {
			rec.FinishedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
