// Package db provides database connection management and schema
// migrations for the local store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/karkhana/billsync/internal/apperrors"
)

// DB wraps sql.DB with BillSync-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the local SQLite database under dataDir.
//
// The database is opened with WAL mode for concurrent reads alongside
// the single writer, foreign key constraints enabled, and a busy
// timeout so the sync engine and UI writes queue instead of erroring.
// Failures carry the STORAGE_INIT_FAILED code: they block the entire
// offline feature set and must be surfaced to the user.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageInit, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "billsync.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageInit, "failed to open database", err)
	}

	// SQLite supports a single writer; serialize all access through
	// one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStorageInit, fmt.Sprintf("failed to apply %s", p), err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorageInit, "database is not reachable", err)
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
