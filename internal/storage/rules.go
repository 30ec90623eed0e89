package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/restage-dev/restage/internal/model"
)

// CreateMatchRule stores a new category-assignment rule. Regex patterns
// are validated at creation so a broken pattern fails loudly here rather
// than silently never matching during imports.
func (s *SQLiteStorage) CreateMatchRule(ctx context.Context, rule *model.MatchRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMatchRule(rule); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO match_rules (pattern, is_regex, category, match_count, last_used_at)
		VALUES (?, ?, ?, ?, ?)`,
		rule.Pattern, rule.IsRegex, rule.Category, rule.MatchCount, rule.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to create match rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get match rule ID: %w", err)
	}

	rule.ID = id
	rule.CreatedAt = time.Now()
	return nil
}

// GetMatchRules retrieves all rules ordered by creation. The matching
// engine applies its own precedence; storage order only makes output
// stable.
func (s *SQLiteStorage) GetMatchRules(ctx context.Context) ([]model.MatchRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern, is_regex, category, match_count, last_used_at, created_at
		FROM match_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query match rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MatchRule
	for rows.Next() {
		var (
			rule       model.MatchRule
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(&rule.ID, &rule.Pattern, &rule.IsRegex, &rule.Category,
			&rule.MatchCount, &lastUsedAt, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match rule: %w", err)
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			rule.LastUsedAt = &t
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match rules: %w", err)
	}
	return rules, nil
}

// RecordRuleUsage bumps usage counters for the rules that won matches in a
// batch, keyed by rule ID.
func (s *SQLiteStorage) RecordRuleUsage(ctx context.Context, usage map[int64]int, usedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(usage) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, count := range usage {
		if count <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE match_rules SET match_count = match_count + ?, last_used_at = ?
			WHERE id = ?`, count, usedAt, id); err != nil {
			return fmt.Errorf("failed to record usage for rule %d: %w", id, err)
		}
	}

	return tx.Commit()
}
