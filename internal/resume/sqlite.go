package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avfms/seatview-scraper/internal/scraper"
)

// schemaVersion is bumped when the downloads table changes shape; a mismatch
// asks the user to delete the index file rather than migrating in place.
const schemaVersion = 1

// ErrSchemaMismatch indicates the index file was written by an incompatible
// version.
var ErrSchemaMismatch = errors.New("resume index schema version mismatch")

const indexFile = "downloads.db"

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE downloads (
    photo_id     TEXT PRIMARY KEY,
    local_path   TEXT NOT NULL,
    status       TEXT NOT NULL,
    bytes        INTEGER NOT NULL DEFAULT 0,
    checksum     TEXT,
    attempts     INTEGER NOT NULL DEFAULT 0,
    error        TEXT,
    last_attempt TEXT
);
`

// SQLiteStore keeps the resume set in a SQLite file at the output root. It
// scales past what re-parsing metadata.json is good for and survives runs
// that crash before metadata.json is rewritten.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens or creates the downloads index under dir.
func OpenSQLiteStore(ctx context.Context, dir string) (*SQLiteStore, error) {
	path := filepath.Join(dir, indexFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open resume index %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: index has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Known reports whether a successful download is on record for the photo.
func (s *SQLiteStore) Known(photoID string) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM downloads WHERE photo_id = ? AND status = ?`,
		photoID, string(scraper.DownloadSucceeded),
	).Scan(&one)
	return err == nil
}

// Get returns the stored record for the photo.
func (s *SQLiteStore) Get(photoID string) (scraper.DownloadRecord, bool) {
	var (
		rec         scraper.DownloadRecord
		status      string
		checksum    sql.NullString
		errMsg      sql.NullString
		lastAttempt sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT photo_id, local_path, status, bytes, checksum, attempts, error, last_attempt
         FROM downloads WHERE photo_id = ?`,
		photoID,
	).Scan(&rec.PhotoID, &rec.LocalPath, &status, &rec.Bytes, &checksum, &rec.Attempts, &errMsg, &lastAttempt)
	if err != nil {
		return scraper.DownloadRecord{}, false
	}
	rec.Status = scraper.DownloadStatus(status)
	rec.Checksum = checksum.String
	rec.Error = errMsg.String
	if lastAttempt.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, lastAttempt.String); perr == nil {
			rec.LastAttempt = t
		}
	}
	return rec, true
}

// Record upserts the download outcome. Failed records are stored too so the
// index reflects the full run, but Known only honors successes.
func (s *SQLiteStore) Record(photoID string, rec scraper.DownloadRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO downloads (photo_id, local_path, status, bytes, checksum, attempts, error, last_attempt)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(photo_id) DO UPDATE SET
             local_path = excluded.local_path,
             status = excluded.status,
             bytes = excluded.bytes,
             checksum = excluded.checksum,
             attempts = excluded.attempts,
             error = excluded.error,
             last_attempt = excluded.last_attempt`,
		photoID,
		rec.LocalPath,
		string(rec.Status),
		rec.Bytes,
		nullableString(rec.Checksum),
		rec.Attempts,
		nullableString(rec.Error),
		nullableTime(rec.LastAttempt),
	)
	if err != nil {
		return fmt.Errorf("record download %s: %w", photoID, err)
	}
	return nil
}

// Count returns the number of successful downloads in the index.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM downloads WHERE status = ?`,
		string(scraper.DownloadSucceeded),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count downloads: %w", err)
	}
	return n, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
