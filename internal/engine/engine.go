// Package engine orchestrates the import workflow: parse a statement file,
// classify every candidate against the ledger and staging area, suggest
// categories, and persist the result for human review.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/restage-dev/restage/internal/common"
	"github.com/restage-dev/restage/internal/dedupe"
	"github.com/restage-dev/restage/internal/model"
	"github.com/restage-dev/restage/internal/ofx"
	"github.com/restage-dev/restage/internal/rules"
	"github.com/restage-dev/restage/internal/service"
)

// ImportEngine runs the staging workflow for one tenant at a time.
// Processing a file is a synchronous batch: the ledger and staging indexes
// are snapshotted once at batch start and never mutated mid-batch.
type ImportEngine struct {
	storage service.Storage
	parser  *ofx.Parser
	config  Config
}

// Config holds configuration options for the import engine.
type Config struct {
	// MatchBudget bounds a single pattern evaluation during category
	// matching.
	MatchBudget time.Duration
	// CommitRetry configures retry behavior for batch commits.
	CommitRetry service.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MatchBudget: rules.DefaultBudget,
		CommitRetry: service.RetryOptions{MaxAttempts: 3},
	}
}

// New creates an import engine with the default configuration.
func New(storage service.Storage) *ImportEngine {
	return NewWithConfig(storage, DefaultConfig())
}

// NewWithConfig creates an import engine with custom configuration.
func NewWithConfig(storage service.Storage, config Config) *ImportEngine {
	if config.MatchBudget <= 0 {
		config.MatchBudget = rules.DefaultBudget
	}
	return &ImportEngine{
		storage: storage,
		parser:  ofx.NewParser(),
		config:  config,
	}
}

// ImportResult is the staged batch produced by one file import, returned
// to the caller as reviewable structured data.
type ImportResult struct {
	BatchID      string                  `json:"batch_id,omitempty"`
	Staged       []model.StagedCandidate `json:"staged"`
	ParseErrors  []model.ParseError      `json:"parse_errors,omitempty"`
	Skipped      int                     `json:"skipped,omitempty"`
	RuleTimeouts int                     `json:"rule_timeouts,omitempty"`
}

// Import parses a statement file and stages its candidates for review.
//
// Candidates without a bank identifier cannot participate in duplicate
// detection and are dropped here, before classification, so that the
// classifier's non-empty identifier precondition holds. New candidates are
// selected by default; duplicates are deselected so they are never
// re-imported without explicit user action.
func (e *ImportEngine) Import(ctx context.Context, reader io.Reader, fileName, tenantID string) (*ImportResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id", common.ErrMissingConfig)
	}

	parsed, err := e.parser.Parse(ctx, reader, fileName)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Staged:      []model.StagedCandidate{},
		ParseErrors: parsed.Errors,
	}

	candidates := make([]model.Candidate, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		if c.ExternalID == "" {
			result.Skipped++
			slog.Warn("Skipping candidate without bank identifier",
				"payee", c.Payee,
				"date", c.Date.Format("2006-01-02"),
				"source", c.Source)
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		slog.Info("Nothing to stage", "file", fileName, "parse_errors", len(parsed.Errors))
		return result, nil
	}

	ledgerIdx, stagedIdx, err := e.snapshotIndexes(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ruleSet, err := e.storage.GetMatchRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load match rules: %w", err)
	}
	matcher := rules.NewMatcherWithBudget(ruleSet, e.config.MatchBudget)

	matches, stats := matcher.MatchBatch(ctx, candidates)
	result.RuleTimeouts = stats.TimedOut

	batchID := uuid.NewString()
	now := time.Now().UTC()

	for i, c := range candidates {
		status, dupKey, err := dedupe.Classify(c, ledgerIdx, stagedIdx)
		if err != nil {
			return nil, fmt.Errorf("classification precondition violated: %w", err)
		}

		staged := model.StagedCandidate{
			Candidate:       c,
			Key:             uuid.NewString(),
			BatchID:         batchID,
			TenantID:        tenantID,
			DuplicateStatus: status,
			DuplicateOfKey:  dupKey,
			IsSelected:      status == model.StatusNew,
			CreatedAt:       now,
		}
		if matches[i] != nil {
			staged.SuggestedCategory = matches[i].Category
		}

		result.Staged = append(result.Staged, staged)
	}

	if err := e.storage.SaveStagedCandidates(ctx, result.Staged); err != nil {
		return nil, fmt.Errorf("failed to persist staged batch: %w", err)
	}
	result.BatchID = batchID

	if err := e.storage.RecordRuleUsage(ctx, stats.Usage, now); err != nil {
		// Usage counters are advisory; losing an update is not worth
		// failing an otherwise staged batch.
		common.LogError(err, "Failed to record rule usage", common.Fields{"batch_id": batchID})
	}

	slog.Info("Staged import batch",
		"batch_id", batchID,
		"tenant_id", tenantID,
		"staged", len(result.Staged),
		"skipped", result.Skipped,
		"parse_errors", len(result.ParseErrors),
		"rule_timeouts", result.RuleTimeouts)

	return result, nil
}

// snapshotIndexes builds the two duplicate-lookup indexes once per batch.
// The ledger index is consulted before the staging index by the
// classifier; committed entries are ground truth.
func (e *ImportEngine) snapshotIndexes(ctx context.Context, tenantID string) (ledger, staged dedupe.Index, err error) {
	entries, err := e.storage.GetLedgerEntries(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}

	pending, err := e.storage.GetUncommittedStaged(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load staged candidates: %w", err)
	}

	return dedupe.NewIndex(dedupe.LedgerRecords(entries)),
		dedupe.NewIndex(dedupe.StagedRecords(pending)), nil
}

// Commit converts a reviewed batch's selected rows into ledger entries.
// The commit is a single all-or-nothing transaction; transient failures
// are retried whole, and no staged row is marked committed until the
// transaction succeeds.
func (e *ImportEngine) Commit(ctx context.Context, tenantID, batchID string, discardUnselected bool) (*service.CommitResult, error) {
	var result *service.CommitResult

	err := common.WithRetry(ctx, func() error {
		r, err := e.storage.CommitBatch(ctx, tenantID, batchID, discardUnselected)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) ||
				errors.Is(err, common.ErrBatchCommitted) ||
				errors.Is(err, common.ErrNothingSelected) {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			return err
		}
		result = r
		return nil
	}, e.config.CommitRetry)
	if err != nil {
		return nil, err
	}

	slog.Info("Committed batch",
		"batch_id", batchID,
		"tenant_id", tenantID,
		"committed", result.Committed,
		"discarded", result.Discarded,
		"retained", result.Retained)

	return result, nil
}
