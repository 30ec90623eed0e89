package model

import "time"

// DuplicateStatus classifies a candidate against the existing ledger and
// the current staging area.
type DuplicateStatus string

// Duplicate status values.
const (
	// StatusNew means no committed or staged record shares the candidate's
	// external identifier.
	StatusNew DuplicateStatus = "new"
	// StatusExactDuplicate means a record with the same external identifier
	// exists and its date, amount and payee all match.
	StatusExactDuplicate DuplicateStatus = "exact_duplicate"
	// StatusPotentialDuplicate means a record with the same external
	// identifier exists but at least one of date, amount or payee differs.
	StatusPotentialDuplicate DuplicateStatus = "potential_duplicate"
)

// IsDuplicate reports whether the status refers to an existing record.
func (s DuplicateStatus) IsDuplicate() bool {
	return s == StatusExactDuplicate || s == StatusPotentialDuplicate
}

// StagedCandidate is a parsed candidate enriched with classification and
// category suggestion, persisted for human review before commit.
//
// DuplicateOfKey is set if and only if DuplicateStatus is one of the two
// duplicate values.
type StagedCandidate struct {
	Candidate

	Key               string          `json:"key"`
	BatchID           string          `json:"batch_id"`
	TenantID          string          `json:"tenant_id"`
	DuplicateStatus   DuplicateStatus `json:"duplicate_status"`
	DuplicateOfKey    string          `json:"duplicate_of_key,omitempty"`
	SuggestedCategory string          `json:"suggested_category,omitempty"`
	IsSelected        bool            `json:"is_selected"`
	CreatedAt         time.Time       `json:"created_at"`
	CommittedAt       *time.Time      `json:"committed_at,omitempty"`
}

// LedgerEntry is a transaction already committed to permanent storage.
// Read-only input to duplicate classification.
type LedgerEntry struct {
	Candidate

	Key       string    `json:"key"`
	TenantID  string    `json:"tenant_id"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
