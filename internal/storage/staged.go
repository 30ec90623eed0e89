package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/restage-dev/restage/internal/common"
	"github.com/restage-dev/restage/internal/model"
	"github.com/restage-dev/restage/internal/service"
)

const stagedColumns = `key, batch_id, tenant_id, external_id, date, amount, payee,
	memo, source, duplicate_status, duplicate_of_key, suggested_category,
	is_selected, committed_at, created_at`

// SaveStagedCandidates persists a batch of staged candidates. All rows are
// written in one transaction so a half-staged batch never becomes visible.
func (s *SQLiteStorage) SaveStagedCandidates(ctx context.Context, staged []model.StagedCandidate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStagedCandidates(staged); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO staged_candidates (
			key, batch_id, tenant_id, external_id, date, amount, payee,
			memo, source, duplicate_status, duplicate_of_key,
			suggested_category, is_selected, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range staged {
		if _, err := stmt.ExecContext(ctx,
			c.Key, c.BatchID, c.TenantID, nullString(c.ExternalID),
			c.Date, c.Amount.String(), c.Payee,
			nullString(c.Memo), nullString(c.Source),
			string(c.DuplicateStatus), nullString(c.DuplicateOfKey),
			nullString(c.SuggestedCategory), c.IsSelected, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert staged candidate %s: %w", c.Key, err)
		}
	}

	return tx.Commit()
}

// GetStagedBatch retrieves all staged candidates belonging to one import
// batch, in insertion order.
func (s *SQLiteStorage) GetStagedBatch(ctx context.Context, tenantID, batchID string) ([]model.StagedCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM staged_candidates
		WHERE tenant_id = ? AND batch_id = ? ORDER BY created_at, key`, stagedColumns)

	return s.queryStaged(ctx, query, tenantID, batchID)
}

// GetUncommittedStaged retrieves every staged candidate of a tenant that
// has not yet been resolved by a commit. These rows form the staging index
// for duplicate classification of subsequent imports.
func (s *SQLiteStorage) GetUncommittedStaged(ctx context.Context, tenantID string) ([]model.StagedCandidate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM staged_candidates
		WHERE tenant_id = ? AND committed_at IS NULL ORDER BY created_at, key`, stagedColumns)

	return s.queryStaged(ctx, query, tenantID)
}

// UpdateStagedSelection toggles a staged row's selection. Rows of already
// committed batches can no longer be changed.
func (s *SQLiteStorage) UpdateStagedSelection(ctx context.Context, key string, selected bool) error {
	return s.updateStagedField(ctx, key, "is_selected", selected)
}

// UpdateStagedCategory overrides the suggested category on a staged row.
func (s *SQLiteStorage) UpdateStagedCategory(ctx context.Context, key, category string) error {
	return s.updateStagedField(ctx, key, "suggested_category", nullString(category))
}

// UpdateStagedMemo edits the memo on a staged row.
func (s *SQLiteStorage) UpdateStagedMemo(ctx context.Context, key, memo string) error {
	return s.updateStagedField(ctx, key, "memo", nullString(memo))
}

func (s *SQLiteStorage) updateStagedField(ctx context.Context, key, column string, value any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"UPDATE staged_candidates SET %s = ? WHERE key = ? AND committed_at IS NULL", column)
	result, err := s.db.ExecContext(ctx, query, value, key)
	if err != nil {
		return fmt.Errorf("failed to update staged candidate: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("staged candidate %s: %w", key, common.ErrNotFound)
	}
	return nil
}

// CommitBatch converts the selected rows of a batch into ledger entries in
// a single all-or-nothing transaction. No staged row is marked committed
// unless every ledger insert succeeds. Unselected rows are deleted when
// discardUnselected is set, otherwise retained (still marked resolved) for
// audit.
func (s *SQLiteStorage) CommitBatch(ctx context.Context, tenantID, batchID string, discardUnselected bool) (*service.CommitResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total, resolved int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(committed_at) FROM staged_candidates
		WHERE tenant_id = ? AND batch_id = ?`, tenantID, batchID).Scan(&total, &resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect batch: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}
	if resolved == total {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrBatchCommitted)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM staged_candidates
		WHERE tenant_id = ? AND batch_id = ? AND is_selected = 1 AND committed_at IS NULL`,
		stagedColumns), tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load selected rows: %w", err)
	}
	selected, err := scanStagedRows(rows)
	if err != nil {
		return nil, err
	}

	if len(selected) == 0 && !discardUnselected {
		return nil, common.ErrNothingSelected
	}

	now := time.Now().UTC()

	for _, c := range selected {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (key, tenant_id, external_id, date, amount,
				payee, memo, source, category, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Key, c.TenantID, nullString(c.ExternalID), c.Date, c.Amount.String(),
			c.Payee, nullString(c.Memo), nullString(c.Source),
			nullString(c.SuggestedCategory), now,
		); err != nil {
			return nil, fmt.Errorf("failed to commit staged candidate %s: %w", c.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE staged_candidates SET committed_at = ?
		WHERE tenant_id = ? AND batch_id = ? AND is_selected = 1`,
		now, tenantID, batchID); err != nil {
		return nil, fmt.Errorf("failed to mark batch committed: %w", err)
	}

	result := &service.CommitResult{Committed: len(selected)}

	if discardUnselected {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM staged_candidates
			WHERE tenant_id = ? AND batch_id = ? AND is_selected = 0`,
			tenantID, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to discard unselected rows: %w", err)
		}
		discarded, _ := res.RowsAffected()
		result.Discarded = int(discarded)
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE staged_candidates SET committed_at = ?
			WHERE tenant_id = ? AND batch_id = ? AND is_selected = 0`,
			now, tenantID, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to retain unselected rows: %w", err)
		}
		retained, _ := res.RowsAffected()
		result.Retained = int(retained)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch transaction: %w", err)
	}

	return result, nil
}

func (s *SQLiteStorage) queryStaged(ctx context.Context, query string, args ...any) ([]model.StagedCandidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged candidates: %w", err)
	}
	return scanStagedRows(rows)
}

func scanStagedRows(rows *sql.Rows) ([]model.StagedCandidate, error) {
	defer func() { _ = rows.Close() }()

	var staged []model.StagedCandidate
	for rows.Next() {
		var (
			c           model.StagedCandidate
			amount      string
			externalID  sql.NullString
			memo        sql.NullString
			source      sql.NullString
			dupOfKey    sql.NullString
			category    sql.NullString
			status      string
			committedAt sql.NullTime
		)

		if err := rows.Scan(
			&c.Key, &c.BatchID, &c.TenantID, &externalID, &c.Date, &amount,
			&c.Payee, &memo, &source, &status, &dupOfKey, &category,
			&c.IsSelected, &committedAt, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staged candidate: %w", err)
		}

		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored amount %q: %w", amount, err)
		}

		c.Amount = parsed
		c.ExternalID = externalID.String
		c.Memo = memo.String
		c.Source = source.String
		c.DuplicateStatus = model.DuplicateStatus(status)
		c.DuplicateOfKey = dupOfKey.String
		c.SuggestedCategory = category.String
		if committedAt.Valid {
			t := committedAt.Time
			c.CommittedAt = &t
		}

		staged = append(staged, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged candidates: %w", err)
	}
	return staged, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
