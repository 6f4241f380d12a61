// Package catalog owns the persistent card catalog: the sqlite schema and
// every write path. It carries no crawling or search logic.
package catalog

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// schema is idempotent; opening an existing catalog re-applies it safely.
const schema = `
CREATE TABLE IF NOT EXISTS prints(
  print_id INTEGER PRIMARY KEY AUTOINCREMENT,
  card_number TEXT NOT NULL UNIQUE,
  set_code TEXT,
  rarity TEXT,
  color TEXT,
  card_type TEXT,
  product TEXT,
  name TEXT,
  image_url TEXT,
  image_hash TEXT,
  detail_id INTEGER,
  detail_url TEXT,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_text(
  print_id INTEGER PRIMARY KEY,
  name TEXT,
  effect_text TEXT,
  raw_text TEXT,
  updated_at TEXT NOT NULL,
  FOREIGN KEY(print_id) REFERENCES prints(print_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS translated_text(
  print_id INTEGER PRIMARY KEY,
  name TEXT,
  effect_text TEXT,
  memo TEXT,
  source TEXT DEFAULT 'manual',
  version INTEGER DEFAULT 1,
  updated_at TEXT NOT NULL,
  FOREIGN KEY(print_id) REFERENCES prints(print_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tags(
  tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
  tag TEXT NOT NULL UNIQUE,
  normalized TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS print_tags(
  print_id INTEGER NOT NULL,
  tag_id INTEGER NOT NULL,
  PRIMARY KEY(print_id, tag_id),
  FOREIGN KEY(print_id) REFERENCES prints(print_id) ON DELETE CASCADE,
  FOREIGN KEY(tag_id) REFERENCES tags(tag_id) ON DELETE CASCADE
);
`

// Store wraps the catalog database. All writes go through it.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the catalog at path and applies the
// schema. sqlite allows one writer at a time, so the pool is capped at a
// single connection; concurrent callers serialize on it.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA journal_mode=WAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying handle for read-side consumers (search engine).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn within a transaction, rolling back when fn fails.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func hashText(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}
