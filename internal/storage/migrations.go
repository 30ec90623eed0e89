package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ledger_entries (
					key TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					external_id TEXT,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					payee TEXT NOT NULL,
					memo TEXT,
					source TEXT,
					category TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS staged_candidates (
					key TEXT PRIMARY KEY,
					batch_id TEXT NOT NULL,
					tenant_id TEXT NOT NULL,
					external_id TEXT,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					payee TEXT NOT NULL,
					memo TEXT,
					source TEXT,
					duplicate_status TEXT NOT NULL,
					duplicate_of_key TEXT,
					suggested_category TEXT,
					is_selected INTEGER NOT NULL DEFAULT 0,
					committed_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS match_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern TEXT NOT NULL,
					is_regex INTEGER NOT NULL DEFAULT 0,
					category TEXT NOT NULL,
					match_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes for duplicate classification",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_ledger_tenant_external
					ON ledger_entries(tenant_id, external_id)`,
				`CREATE INDEX IF NOT EXISTS idx_staged_tenant_external
					ON staged_candidates(tenant_id, external_id)`,
				`CREATE INDEX IF NOT EXISTS idx_staged_batch
					ON staged_candidates(tenant_id, batch_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
