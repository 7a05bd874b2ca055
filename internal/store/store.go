package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbFileName = "mdpreview.sqlite"

var (
	// ErrNotFound is returned for missing documents and users.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an address that already has an account.
	ErrEmailTaken = errors.New("email already registered")
)

// Store points at a data directory holding the SQLite database and local backups.
type Store struct {
	Dir string
}

func (s Store) Ensure() error {
	if strings.TrimSpace(s.Dir) == "" {
		return errors.New("store: dir is empty")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) sqlitePath() string {
	return filepath.Join(s.Dir, dbFileName)
}

// DB is an open handle on the data directory's SQLite database.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

type OpenOption func(*DB)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *slog.Logger) OpenOption {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) OpenOption {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

func (s Store) Open(ctx context.Context, opts ...OpenOption) (*DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	sqlDB, err := sql.Open("sqlite", s.sqlitePath())
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout helps avoid "database is locked" flakiness
	// when the web server and the terminal editor share a data dir.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if err := migrateSQLite(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	db := &DB{
		sql:    sqlDB,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(db)
	}
	db.logger.Debug("store opened", slog.String("path", s.sqlitePath()))
	return db, nil
}

func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

func (db *DB) Documents() *Documents { return &Documents{db: db} }

func (db *DB) Users() *Users { return &Users{db: db} }

func (db *DB) Settings() *SettingsStore { return &SettingsStore{db: db} }

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			email_verified INTEGER NOT NULL DEFAULT 0,
			provider TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			token_generation INTEGER NOT NULL DEFAULT 0,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner_updated ON documents(owner_id, updated_at_unixms DESC);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id TEXT PRIMARY KEY,
			settings_json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(k, v) VALUES('schema_version', '1');`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func unixMS(t time.Time) int64 { return t.UnixMilli() }

func fromUnixMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
