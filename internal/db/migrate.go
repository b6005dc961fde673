// Package db provides database connection management and schema
// migrations for the local store.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/karkhana/billsync/internal/apperrors"
)

// Migration is one step in the ordered migration list. Statements run
// inside a single transaction together with the version bookkeeping.
type Migration struct {
	Version     int
	Description string
	Apply       func(tx *sql.Tx) error
}

// Migrator applies the ordered migration list and tracks the applied
// version in schema_migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// migrations is the single ordered migration list. Migrations are
// additive only: they create tables or add columns, never drop or
// rewrite existing data.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial_schema",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS customers (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					address TEXT NOT NULL DEFAULT '',
					gstin TEXT NOT NULL DEFAULT '',
					opening_balance REAL NOT NULL DEFAULT 0,
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS items (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					unit TEXT NOT NULL DEFAULT '',
					rate REAL NOT NULL DEFAULT 0,
					hsn_code TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS entries (
					id TEXT PRIMARY KEY,
					serial_no TEXT NOT NULL DEFAULT '',
					loading_location TEXT NOT NULL DEFAULT '',
					item_id TEXT NOT NULL DEFAULT '',
					customer_id TEXT NOT NULL DEFAULT '',
					quantity REAL NOT NULL DEFAULT 0,
					rate REAL NOT NULL DEFAULT 0,
					entry_date TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS sales (
					id TEXT PRIMARY KEY,
					bill_no TEXT NOT NULL DEFAULT '',
					loading_location TEXT NOT NULL DEFAULT '',
					entry_id TEXT NOT NULL DEFAULT '',
					customer_id TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL DEFAULT 0,
					bill_date TEXT NOT NULL DEFAULT '',
					is_paid INTEGER NOT NULL DEFAULT 0,
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS receipts (
					id TEXT PRIMARY KEY,
					receipt_no TEXT NOT NULL DEFAULT '',
					sale_id TEXT NOT NULL DEFAULT '',
					customer_id TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL DEFAULT 0,
					receipt_date TEXT NOT NULL DEFAULT '',
					mode TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS ledger_lines (
					id TEXT PRIMARY KEY,
					customer_id TEXT NOT NULL DEFAULT '',
					entry_type TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL DEFAULT 0,
					narration TEXT NOT NULL DEFAULT '',
					line_date TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS notes (
					id TEXT PRIMARY KEY,
					customer_id TEXT NOT NULL DEFAULT '',
					kind TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL DEFAULT 0,
					reason TEXT NOT NULL DEFAULT '',
					note_date TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS company_profile (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					address TEXT NOT NULL DEFAULT '',
					gstin TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					fy_start TEXT NOT NULL DEFAULT '',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE TABLE IF NOT EXISTS sync_queue (
					id TEXT PRIMARY KEY,
					table_name TEXT NOT NULL,
					operation TEXT NOT NULL,
					payload TEXT NOT NULL,
					sync_status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);`,
				`CREATE INDEX IF NOT EXISTS idx_sync_queue_status_created
					ON sync_queue (sync_status, created_at);`,
			)
		},
	},
	{
		Version:     2,
		Description: "entries_add_vehicle_no",
		Apply: func(tx *sql.Tx) error {
			return AddColumnIfMissing(tx, "entries", "vehicle_no", "TEXT NOT NULL DEFAULT ''")
		},
	},
}

// execAll runs the statements in order inside the transaction.
func execAll(tx *sql.Tx, stmts ...string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// AddColumnIfMissing adds a column guarded by an introspection check,
// so re-running a migration against an already-upgraded schema is a
// no-op rather than an error.
func AddColumnIfMissing(tx *sql.Tx, table, column, definition string) error {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to introspect %s: %w", table, err)
	}
	defer rows.Close()

	exists := false
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return err
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Up applies all pending migrations in order.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to create schema_migrations", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to apply migration %d (%s)", mig.Version, mig.Description), err)
		}
	}

	return nil
}

// apply runs one migration and records it in the same transaction.
func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := mig.Apply(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		mig.Version, time.Now().Unix(), mig.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
