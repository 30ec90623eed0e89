// Package service defines the interface contracts between the
// reconciliation core and its persistence layer.
package service

import (
	"context"
	"time"

	"github.com/restage-dev/restage/internal/model"
)

// CommitResult reports the outcome of committing a reviewed batch.
type CommitResult struct {
	Committed int `json:"committed"`
	Discarded int `json:"discarded"`
	Retained  int `json:"retained"`
}

// Storage is the persistence contract for staged candidates, ledger
// entries and match rules. The core has no opinion on storage technology
// beyond this interface.
type Storage interface {
	// Staged candidate operations
	SaveStagedCandidates(ctx context.Context, staged []model.StagedCandidate) error
	GetStagedBatch(ctx context.Context, tenantID, batchID string) ([]model.StagedCandidate, error)
	GetUncommittedStaged(ctx context.Context, tenantID string) ([]model.StagedCandidate, error)
	UpdateStagedSelection(ctx context.Context, key string, selected bool) error
	UpdateStagedCategory(ctx context.Context, key, category string) error
	UpdateStagedMemo(ctx context.Context, key, memo string) error

	// Ledger operations
	SaveLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error
	GetLedgerEntries(ctx context.Context, tenantID string) ([]model.LedgerEntry, error)

	// CommitBatch converts the selected staged rows of a batch into ledger
	// entries in a single all-or-nothing transaction. Unselected rows are
	// discarded when discardUnselected is set, otherwise retained for audit.
	CommitBatch(ctx context.Context, tenantID, batchID string, discardUnselected bool) (*CommitResult, error)

	// Match rule operations
	CreateMatchRule(ctx context.Context, rule *model.MatchRule) error
	GetMatchRules(ctx context.Context) ([]model.MatchRule, error)
	RecordRuleUsage(ctx context.Context, usage map[int64]int, usedAt time.Time) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations that may fail
// transiently, such as batch commits hitting a busy database.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
