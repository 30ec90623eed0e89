package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/restage-dev/restage/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrEmptySlice     = errors.New("slice cannot be empty")
	ErrInvalidStaged  = errors.New("invalid staged candidate")
	ErrInvalidEntry   = errors.New("invalid ledger entry")
	ErrInvalidRule    = errors.New("invalid match rule")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateStagedCandidates validates a slice of staged candidates.
func validateStagedCandidates(staged []model.StagedCandidate) error {
	if staged == nil {
		return fmt.Errorf("%w: staged", ErrNilParameter)
	}
	if len(staged) == 0 {
		return fmt.Errorf("%w: staged", ErrEmptySlice)
	}

	for i, s := range staged {
		if err := validateStagedCandidate(&s); err != nil {
			return fmt.Errorf("staged candidate at index %d: %w", i, err)
		}
	}
	return nil
}

// validateStagedCandidate validates a single staged candidate, including
// the invariant that a duplicate reference is present exactly when the
// status is one of the duplicate values.
func validateStagedCandidate(s *model.StagedCandidate) error {
	if s.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidStaged)
	}
	if s.BatchID == "" {
		return fmt.Errorf("%w: missing batch id", ErrInvalidStaged)
	}
	if s.TenantID == "" {
		return fmt.Errorf("%w: missing tenant id", ErrInvalidStaged)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidStaged)
	}

	switch s.DuplicateStatus {
	case model.StatusNew:
		if s.DuplicateOfKey != "" {
			return fmt.Errorf("%w: new candidate carries a duplicate reference", ErrInvalidStaged)
		}
	case model.StatusExactDuplicate, model.StatusPotentialDuplicate:
		if s.DuplicateOfKey == "" {
			return fmt.Errorf("%w: duplicate status without a duplicate reference", ErrInvalidStaged)
		}
	default:
		return fmt.Errorf("%w: unknown duplicate status %q", ErrInvalidStaged, s.DuplicateStatus)
	}

	return nil
}

// validateLedgerEntries validates a slice of ledger entries.
func validateLedgerEntries(entries []model.LedgerEntry) error {
	if entries == nil {
		return fmt.Errorf("%w: entries", ErrNilParameter)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: entries", ErrEmptySlice)
	}

	for i, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("ledger entry at index %d: %w: missing key", i, ErrInvalidEntry)
		}
		if e.TenantID == "" {
			return fmt.Errorf("ledger entry at index %d: %w: missing tenant id", i, ErrInvalidEntry)
		}
		if e.Date.IsZero() {
			return fmt.Errorf("ledger entry at index %d: %w: missing date", i, ErrInvalidEntry)
		}
	}
	return nil
}

// validateMatchRule validates a rule before it is stored. Regex patterns
// must compile so a broken pattern is rejected at authoring time instead
// of silently never matching.
func validateMatchRule(rule *model.MatchRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	if rule.IsRegex {
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return fmt.Errorf("%w: pattern does not compile: %v", ErrInvalidRule, err)
		}
	}
	return nil
}
