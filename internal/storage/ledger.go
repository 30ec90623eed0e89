package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/restage-dev/restage/internal/model"
)

// SaveLedgerEntries persists committed transactions directly, bypassing the
// staging workflow. Used for seeding a ledger from an existing system.
func (s *SQLiteStorage) SaveLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntries(entries); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (key, tenant_id, external_id, date, amount,
				payee, memo, source, category, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Key, e.TenantID, nullString(e.ExternalID), e.Date, e.Amount.String(),
			e.Payee, nullString(e.Memo), nullString(e.Source),
			nullString(e.Category), e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert ledger entry %s: %w", e.Key, err)
		}
	}

	return tx.Commit()
}

// GetLedgerEntries retrieves all committed transactions for one tenant.
// The result is snapshotted into an in-memory index at batch start, so
// classification within one batch is internally consistent.
func (s *SQLiteStorage) GetLedgerEntries(ctx context.Context, tenantID string) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, tenant_id, external_id, date, amount, payee, memo, source,
			category, created_at
		FROM ledger_entries WHERE tenant_id = ? ORDER BY date, key`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e          model.LedgerEntry
			amount     string
			externalID sql.NullString
			memo       sql.NullString
			source     sql.NullString
			category   sql.NullString
		)

		if err := rows.Scan(
			&e.Key, &e.TenantID, &externalID, &e.Date, &amount, &e.Payee,
			&memo, &source, &category, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
		}

		e.Amount = parsed
		e.ExternalID = externalID.String
		e.Memo = memo.String
		e.Source = source.String
		e.Category = category.String

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
