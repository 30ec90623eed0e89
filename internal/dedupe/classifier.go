// Package dedupe classifies statement candidates against the committed
// ledger and the current staging area to catch re-imported transactions.
package dedupe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/restage-dev/restage/internal/model"
)

// ErrMissingExternalID is returned when a candidate without a bank-assigned
// identifier reaches classification. Upstream filtering is expected to have
// discarded such candidates, so this is a caller bug rather than bad user
// input and must not be swallowed.
var ErrMissingExternalID = errors.New("candidate has no external identifier")

// Record is the subset of a ledger entry or staged candidate that duplicate
// classification compares against.
type Record struct {
	Key        string
	ExternalID string
	Date       time.Time
	Amount     decimal.Decimal
	Payee      string
}

// Index maps lowercased external identifiers to records. Records without an
// external identifier never enter the index: an identifier-less record
// cannot safely participate in matching.
type Index map[string]Record

// NewIndex builds an index from the given records, skipping any record
// whose external identifier is empty.
func NewIndex(records []Record) Index {
	idx := make(Index, len(records))
	for _, r := range records {
		id := strings.ToLower(strings.TrimSpace(r.ExternalID))
		if id == "" {
			continue
		}
		idx[id] = r
	}
	return idx
}

// LedgerRecords converts ledger entries into comparable records.
func LedgerRecords(entries []model.LedgerEntry) []Record {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = Record{
			Key:        e.Key,
			ExternalID: e.ExternalID,
			Date:       e.Date,
			Amount:     e.Amount,
			Payee:      e.Payee,
		}
	}
	return records
}

// StagedRecords converts staged candidates into comparable records.
func StagedRecords(staged []model.StagedCandidate) []Record {
	records := make([]Record, len(staged))
	for i, s := range staged {
		records[i] = Record{
			Key:        s.Key,
			ExternalID: s.ExternalID,
			Date:       s.Date,
			Amount:     s.Amount,
			Payee:      s.Payee,
		}
	}
	return records
}

// Classify compares one candidate against the ledger and staging indexes.
//
// The ledger is checked first: a match already committed to permanent
// storage always wins over one still sitting in an unreviewed batch. When a
// match is found, identical date, amount and payee make it an exact
// duplicate; any difference in those fields makes it a potential duplicate
// for human review. The returned key references the matched record and is
// non-empty exactly when the status is one of the duplicate values.
func Classify(candidate model.Candidate, ledger, staged Index) (model.DuplicateStatus, string, error) {
	id := strings.ToLower(strings.TrimSpace(candidate.ExternalID))
	if id == "" {
		return "", "", fmt.Errorf("%w: payee=%q date=%s",
			ErrMissingExternalID, candidate.Payee, candidate.Date.Format("2006-01-02"))
	}

	if match, ok := ledger[id]; ok {
		return compareFields(candidate, match), match.Key, nil
	}
	if match, ok := staged[id]; ok {
		return compareFields(candidate, match), match.Key, nil
	}

	return model.StatusNew, "", nil
}

// compareFields decides exact versus potential once an identifier match is
// established.
func compareFields(candidate model.Candidate, match Record) model.DuplicateStatus {
	if sameDay(candidate.Date, match.Date) &&
		candidate.Amount.Equal(match.Amount) &&
		candidate.Payee == match.Payee {
		return model.StatusExactDuplicate
	}
	return model.StatusPotentialDuplicate
}

// sameDay compares posting dates at calendar-day precision; statements do
// not carry meaningful intraday times.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
