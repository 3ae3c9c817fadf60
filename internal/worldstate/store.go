package worldstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/turnengine/engine/internal/state"
)

// Store abstracts world-document persistence over a local disk (FileStore)
// or a shared database (SQLStore) (§4.6 "this spec does not mandate a
// storage medium"). The turn runner and the world_apply_ops tool do not go
// through Store; they call the package-level Load/Commit on the file path.
type Store interface {
	Load(ctx context.Context, nowISO, tz string) (state.World, error)
	Commit(ctx context.Context, world state.World) error
	Close() error
}

// FileStore adapts the package-level Load/Commit functions (atomic-JSON-file
// on the local disk) to the Store interface.
type FileStore struct {
	path string
}

// NewFileStore returns a Store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context, nowISO, tz string) (state.World, error) {
	return Load(s.path, nowISO, tz)
}

func (s *FileStore) Commit(_ context.Context, world state.World) error {
	return Commit(s.path, world)
}

func (s *FileStore) Close() error { return nil }

// SQLConfig configures a database/sql-backed world store.
type SQLConfig struct {
	Driver          string // "postgres" or "sqlite3"
	DSN             string
	DocumentID      string // row key; one world document per id
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns sensible pool defaults, grounded on the teacher's
// CockroachConfig defaults.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		DocumentID:      "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLStore persists one world document per DocumentID in a single-row table,
// grounded on the teacher's CockroachDB-backed job store (same pool setup,
// same upsert-by-primary-key shape) but swapped to a document column since
// the world document has no relational substructure worth normalizing.
type SQLStore struct {
	db  *sql.DB
	doc string
}

// NewSQLStore opens and pings a database connection and ensures the backing
// table exists.
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("worldstate: dsn is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	doc := cfg.DocumentID
	if doc == "" {
		doc = "default"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("worldstate: open database: %w", err)
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
		return nil, fmt.Errorf("worldstate: ping database: %w", err)
	}

	s := &SQLStore{db: db, doc: doc}
	if err := s.ensureSchema(ctx, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context, driver string) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS world_documents (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("worldstate: ensure schema: %w", err)
	}
	return nil
}

// Load returns the stored world document, or a fresh default if no row
// exists yet for DocumentID.
func (s *SQLStore) Load(ctx context.Context, nowISO, tz string) (state.World, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM world_documents WHERE id = $1`, s.doc)
	var raw string
	switch err := row.Scan(&raw); {
	case err == sql.ErrNoRows:
		w := Default(nowISO, tz)
		if werr := s.Commit(ctx, w); werr != nil {
			return w, werr
		}
		return w, nil
	case err != nil:
		return state.World{}, fmt.Errorf("worldstate: load: %w", err)
	}

	var w state.World
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		w = Default(nowISO, tz)
		if werr := s.Commit(ctx, w); werr != nil {
			return w, werr
		}
		return w, nil
	}
	if nowISO != "" {
		w.UpdatedAt = nowISO
	}
	if w.TZ == "" {
		w.TZ = tz
	}
	return w, nil
}

// Commit upserts the world document under DocumentID.
func (s *SQLStore) Commit(ctx context.Context, world state.World) error {
	data, err := json.Marshal(world)
	if err != nil {
		return fmt.Errorf("worldstate: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO world_documents (id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`, s.doc, string(data), world.UpdatedAt)
	if err != nil {
		return fmt.Errorf("worldstate: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
