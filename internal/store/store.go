// Package store is the embedded log store: one writer-owned connection
// plus a pool of reader connections over the same SQLite file, all
// through modernc.org/sqlite (pure Go, no cgo).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sirupsen/logrus"

	"github.com/headlesssentinel/sentinel/internal/metrics"
	"github.com/headlesssentinel/sentinel/internal/model"
	"github.com/headlesssentinel/sentinel/internal/sentinelerr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	computer TEXT NOT NULL,
	log_name TEXT NOT NULL,
	event_id INTEGER NOT NULL,
	level TEXT NOT NULL,
	source TEXT,
	message TEXT,
	user TEXT,
	raw_xml TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_event_id ON logs(event_id);
CREATE INDEX IF NOT EXISTS idx_logs_computer ON logs(computer);
CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_composite ON logs(timestamp, event_id, computer);
`

const readerPoolSize = 4

// Store is a thread-safe handle onto one SQLite-backed log database: a
// single-connection writer DB (serializing all writes) and a
// multi-connection reader DB, both opened against the same file.
type Store struct {
	path   string
	writer *sql.DB
	reader *sql.DB
	log    *logrus.Entry
}

// Open creates the schema if absent and returns a ready Store backed by
// path.
func Open(path string, log *logrus.Entry) (*Store, error) {
	writer, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open writer: %v", sentinelerr.ErrStore, err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", path)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("%w: open reader pool: %v", sentinelerr.ErrStore, err)
	}
	reader.SetMaxOpenConns(readerPoolSize)

	s := &Store{path: path, writer: writer, reader: reader, log: log}
	if err := s.initSchema(); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.writer.Exec(schemaSQL); err != nil {
		return fmt.Errorf("%w: init schema: %v", sentinelerr.ErrStore, err)
	}
	return nil
}

// Close releases both the writer and reader connections.
func (s *Store) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// InsertBatch inserts entries atomically: all rows land or none do, and
// ids are assigned in batch order by the table's AUTOINCREMENT sequence
// (the Go equivalent of logs_id_seq). Returns the assigned ids.
func (s *Store) InsertBatch(ctx context.Context, entries []model.LogEntry) ([]int64, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin insert: %v", sentinelerr.ErrStore, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (timestamp, computer, log_name, event_id, level, source, message, user, raw_xml)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare insert: %v", sentinelerr.ErrStore, err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, e.Timestamp, e.Computer, e.LogName, e.EventID, e.Level.String(), e.Source, e.Message, e.User, e.RawXML)
		if err != nil {
			return nil, fmt.Errorf("%w: insert row: %v", sentinelerr.ErrStore, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: read inserted id: %v", sentinelerr.ErrStore, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit insert: %v", sentinelerr.ErrStore, err)
	}

	metrics.StoreInsertBatchSize.Observe(float64(len(entries)))
	s.log.WithField("count", len(entries)).Info("inserted log batch")
	return ids, nil
}

// Query runs an arbitrary read-only SQL statement against the reader
// pool and returns the raw *sql.Rows. The caller is trusted (same
// process) and must Close the returned Rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", sentinelerr.ErrStore, err)
	}
	return rows, nil
}

// Recent returns the newest limit rows by insert order, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.Row, error) {
	rows, err := s.Query(ctx, `
		SELECT id, timestamp, computer, log_name, event_id, level, source, message, user, raw_xml, created_at
		FROM logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var r model.Row
		var level string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Computer, &r.LogName, &r.EventID, &level, &r.Source, &r.Message, &r.User, &r.RawXML, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan recent row: %v", sentinelerr.ErrStore, err)
		}
		r.Level = levelFromString(level)
		out = append(out, r)
	}
	return out, rows.Err()
}

func levelFromString(s string) model.Level {
	for lvl := model.LevelUnknown; lvl <= model.LevelVerbose; lvl++ {
		if lvl.String() == s {
			return lvl
		}
	}
	return model.LevelUnknown
}

// DeleteOlderThan purges rows with timestamp < now - days and returns
// the number of affected rows.
func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.writer.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: delete old logs: %v", sentinelerr.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: read affected count: %v", sentinelerr.ErrStore, err)
	}
	s.log.WithField("deleted", n).Info("purged old log rows")
	return n, nil
}

// Vacuum compacts the database file and refreshes planner statistics.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.writer.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("%w: vacuum: %v", sentinelerr.ErrStore, err)
	}
	if _, err := s.writer.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("%w: analyze: %v", sentinelerr.ErrStore, err)
	}
	return nil
}

// Backup copies the store's file to path. The store must be quiesced
// for the duration: Backup closes both connections, copies the file,
// and reopens them before returning.
func (s *Store) Backup(ctx context.Context, path string) error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("%w: close writer for backup: %v", sentinelerr.ErrStore, err)
	}
	if err := s.reader.Close(); err != nil {
		return fmt.Errorf("%w: close reader for backup: %v", sentinelerr.ErrStore, err)
	}

	copyErr := copyFile(s.path, path)

	writer, werr := sql.Open("sqlite", s.path)
	if werr == nil {
		writer.SetMaxOpenConns(1)
	}
	reader, rerr := sql.Open("sqlite", s.path)
	if rerr == nil {
		reader.SetMaxOpenConns(readerPoolSize)
	}
	s.writer = writer
	s.reader = reader

	if copyErr != nil {
		return fmt.Errorf("%w: backup copy: %v", sentinelerr.ErrStore, copyErr)
	}
	if werr != nil || rerr != nil {
		return fmt.Errorf("%w: reopen after backup: writer=%v reader=%v", sentinelerr.ErrStore, werr, rerr)
	}
	s.log.WithField("path", path).Info("backup created")
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}
