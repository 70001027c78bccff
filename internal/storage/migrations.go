package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: vouchers, sequences, review queue, patterns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vouchers (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL,
					series TEXT NOT NULL,
					fiscal_year INTEGER NOT NULL,
					sequence_number INTEGER NOT NULL,
					date DATETIME NOT NULL,
					description TEXT,
					source_ref TEXT NOT NULL,
					structured_ref TEXT,
					document_number TEXT,
					created_by TEXT,
					reverses_id TEXT,
					status TEXT NOT NULL,
					locked BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(client_id, series, fiscal_year, sequence_number),
					UNIQUE(client_id, source_ref)
				)`,
				`CREATE INDEX idx_vouchers_client_date ON vouchers(client_id, date)`,

				`CREATE TABLE IF NOT EXISTS voucher_lines (
					voucher_id TEXT NOT NULL,
					line_number INTEGER NOT NULL,
					account TEXT NOT NULL,
					debit TEXT NOT NULL,
					credit TEXT NOT NULL,
					tax_code TEXT,
					tax_amount TEXT NOT NULL,
					PRIMARY KEY (voucher_id, line_number),
					FOREIGN KEY (voucher_id) REFERENCES vouchers(id)
				)`,

				`CREATE TABLE IF NOT EXISTS voucher_sequences (
					client_id TEXT NOT NULL,
					series TEXT NOT NULL,
					fiscal_year INTEGER NOT NULL,
					next_number INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (client_id, series, fiscal_year)
				)`,

				`CREATE TABLE IF NOT EXISTS review_items (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL,
					source_ref TEXT NOT NULL,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					priority INTEGER NOT NULL DEFAULT 3,
					assigned_to TEXT,
					notes TEXT,
					resolved_by TEXT,
					voucher_id TEXT,
					confidence TEXT,
					candidate TEXT,
					candidates TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME
				)`,
				`CREATE INDEX idx_review_items_status ON review_items(client_id, status, priority)`,

				`CREATE TABLE IF NOT EXISTS patterns (
					client_id TEXT NOT NULL,
					vendor_id TEXT NOT NULL,
					account TEXT NOT NULL,
					tax_code TEXT,
					use_count INTEGER NOT NULL DEFAULT 0,
					success_count INTEGER NOT NULL DEFAULT 0,
					last_used DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (client_id, vendor_id, account)
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
		Description: "Bank reconciliation tables",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL,
					account_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					description TEXT,
					structured_ref TEXT,
					fitid TEXT,
					hash TEXT UNIQUE NOT NULL,
					status TEXT NOT NULL DEFAULT 'UNMATCHED'
				)`,
				`CREATE INDEX idx_bank_transactions_status ON bank_transactions(client_id, status, date)`,

				`CREATE TABLE IF NOT EXISTS matches (
					id TEXT PRIMARY KEY,
					transaction_id TEXT UNIQUE NOT NULL,
					voucher_id TEXT UNIQUE NOT NULL,
					strategy TEXT NOT NULL,
					confidence INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES bank_transactions(id),
					FOREIGN KEY (voucher_id) REFERENCES vouchers(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Vendor amount statistics and pending-item dedup index",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS vendor_stats (
					client_id TEXT NOT NULL,
					vendor_id TEXT NOT NULL,
					booking_count INTEGER NOT NULL DEFAULT 0,
					amount_sum REAL NOT NULL DEFAULT 0,
					amount_sqsum REAL NOT NULL DEFAULT 0,
					PRIMARY KEY (client_id, vendor_id)
				)`,
				// One open review item per source record: a re-run of the
				// matcher or intake must not pile up duplicate escalations.
				`CREATE UNIQUE INDEX idx_review_items_pending_source
					ON review_items(client_id, source_ref)
					WHERE status = 'PENDING'`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
