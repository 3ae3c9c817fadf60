package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store abstracts chat-history persistence beyond the local JSONL file,
// grounded on the teacher's CockroachDB-backed job store (§4.7 does not
// mandate a storage medium, only append/tail/trim semantics).
type Store interface {
	Append(ctx context.Context, role, content string, maxTurns int) error
	Tail(ctx context.Context, limit int) ([]Record, error)
	// Trim re-applies the maxTurns bound without appending anything, so the
	// maintenance scheduler (§4.21) can converge a store that grew under
	// manual edits without manufacturing a new record.
	Trim(ctx context.Context, maxTurns int) error
	Close() error
}

// FileStore adapts *Log to the Store interface.
type FileStore struct {
	log *Log
}

// NewFileStore returns a Store backed by the JSONL log at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{log: New(path)}
}

func (s *FileStore) Append(_ context.Context, role, content string, maxTurns int) error {
	return s.log.Append(role, content, maxTurns)
}

func (s *FileStore) Tail(_ context.Context, limit int) ([]Record, error) {
	return s.log.Tail(limit)
}

func (s *FileStore) Trim(_ context.Context, maxTurns int) error {
	return s.log.trim(maxTurns)
}

func (s *FileStore) Close() error { return nil }

// SQLConfig configures a database/sql-backed history store.
type SQLConfig struct {
	Driver          string // "postgres" or "sqlite3"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig mirrors the teacher's CockroachConfig defaults.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLStore appends chat-history records to a table instead of a JSONL file,
// trimming to the most recent maxTurns rows per Append call, same contract
// as Log.Append.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens, pings, and ensures the backing table exists.
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history: dsn is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}

	s := &SQLStore{db: db}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chat_history (
			seq SERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ensure schema: %w", err)
	}
	return s, nil
}

// Append inserts a record and trims the table to its most recent maxTurns
// rows inside a single transaction, so a crash mid-operation cannot leave a
// half-appended batch (§4.7's atomicity requirement, translated to SQL).
func (s *SQLStore) Append(ctx context.Context, role, content string, maxTurns int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin append: %w", err)
	}
	defer tx.Rollback()

	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_history (ts, role, content) VALUES ($1, $2, $3)`,
		ts, role, content,
	); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	if maxTurns > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chat_history
			WHERE seq NOT IN (
				SELECT seq FROM chat_history ORDER BY seq DESC LIMIT $1
			)`, maxTurns); err != nil {
			return fmt.Errorf("history: trim: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit append: %w", err)
	}
	return nil
}

// Trim deletes rows beyond the most recent maxTurns, without inserting
// anything.
func (s *SQLStore) Trim(ctx context.Context, maxTurns int) error {
	if maxTurns <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_history
		WHERE seq NOT IN (
			SELECT seq FROM chat_history ORDER BY seq DESC LIMIT $1
		)`, maxTurns)
	if err != nil {
		return fmt.Errorf("history: trim: %w", err)
	}
	return nil
}

// Tail returns the last limit records in chronological order.
func (s *SQLStore) Tail(ctx context.Context, limit int) ([]Record, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, role, content FROM (
			SELECT ts, role, content, seq FROM chat_history ORDER BY seq DESC LIMIT $1
		) recent ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: tail: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.TS, &rec.Role, &rec.Content); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: tail: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
