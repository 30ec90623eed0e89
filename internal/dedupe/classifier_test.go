package dedupe

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restage-dev/restage/internal/model"
)

func testCandidate() model.Candidate {
	return model.Candidate{
		Date:       time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("-50.00"),
		Payee:      "Test Payee",
		ExternalID: "FITID12345",
	}
}

func matchingRecord(key string) Record {
	return Record{
		Key:        key,
		ExternalID: "FITID12345",
		Date:       time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("-50.00"),
		Payee:      "Test Payee",
	}
}

func TestClassifyNew(t *testing.T) {
	status, key, err := Classify(testCandidate(), NewIndex(nil), NewIndex(nil))
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, status)
	assert.Empty(t, key)
}

func TestClassifyExactDuplicate(t *testing.T) {
	ledger := NewIndex([]Record{matchingRecord("ledger-1")})

	status, key, err := Classify(testCandidate(), ledger, NewIndex(nil))
	require.NoError(t, err)
	assert.Equal(t, model.StatusExactDuplicate, status)
	assert.Equal(t, "ledger-1", key)
}

func TestClassifyPotentialDuplicate(t *testing.T) {
	tests := []struct {
		mutate func(*Record)
		name   string
	}{
		{
			name: "amount differs",
			mutate: func(r *Record) {
				r.Amount = decimal.RequireFromString("-55.00")
			},
		},
		{
			name: "date differs",
			mutate: func(r *Record) {
				r.Date = r.Date.AddDate(0, 0, 2)
			},
		},
		{
			name: "payee differs",
			mutate: func(r *Record) {
				r.Payee = "Another Payee"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := matchingRecord("ledger-1")
			tt.mutate(&record)
			ledger := NewIndex([]Record{record})

			status, key, err := Classify(testCandidate(), ledger, NewIndex(nil))
			require.NoError(t, err)
			assert.Equal(t, model.StatusPotentialDuplicate, status)
			assert.Equal(t, "ledger-1", key)
		})
	}
}

func TestClassifyCaseInsensitiveExternalID(t *testing.T) {
	record := matchingRecord("ledger-1")
	record.ExternalID = "fitid12345"
	ledger := NewIndex([]Record{record})

	candidate := testCandidate()
	candidate.ExternalID = "FITID12345"

	status, key, err := Classify(candidate, ledger, NewIndex(nil))
	require.NoError(t, err)
	assert.Equal(t, model.StatusExactDuplicate, status)
	assert.Equal(t, "ledger-1", key)
}

func TestClassifyLedgerTakesPrecedenceOverStaged(t *testing.T) {
	ledger := NewIndex([]Record{matchingRecord("ledger-1")})
	staged := NewIndex([]Record{matchingRecord("staged-1")})

	status, key, err := Classify(testCandidate(), ledger, staged)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExactDuplicate, status)
	assert.Equal(t, "ledger-1", key, "committed ledger match must win over staged match")
}

func TestClassifyFallsBackToStagedIndex(t *testing.T) {
	staged := NewIndex([]Record{matchingRecord("staged-1")})

	status, key, err := Classify(testCandidate(), NewIndex(nil), staged)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExactDuplicate, status)
	assert.Equal(t, "staged-1", key)
}

func TestClassifyIgnoresIdentifierLessRecords(t *testing.T) {
	record := matchingRecord("ledger-1")
	record.ExternalID = ""
	ledger := NewIndex([]Record{record})

	status, key, err := Classify(testCandidate(), ledger, NewIndex(nil))
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, status)
	assert.Empty(t, key)
}

func TestClassifyMissingExternalIDIsPreconditionFailure(t *testing.T) {
	candidate := testCandidate()
	candidate.ExternalID = ""

	_, _, err := Classify(candidate, NewIndex(nil), NewIndex(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExternalID)

	candidate.ExternalID = "   "
	_, _, err = Classify(candidate, NewIndex(nil), NewIndex(nil))
	assert.ErrorIs(t, err, ErrMissingExternalID)
}

func TestClassifyIdempotent(t *testing.T) {
	ledger := NewIndex([]Record{matchingRecord("ledger-1")})
	staged := NewIndex([]Record{matchingRecord("staged-1")})
	candidate := testCandidate()

	status1, key1, err1 := Classify(candidate, ledger, staged)
	status2, key2, err2 := Classify(candidate, ledger, staged)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, status1, status2)
	assert.Equal(t, key1, key2)
}

func TestClassifyAmountScaleInsensitive(t *testing.T) {
	// -50 and -50.00 are the same amount; storage round-trips must not
	// turn an exact duplicate into a potential one.
	record := matchingRecord("ledger-1")
	record.Amount = decimal.RequireFromString("-50")
	ledger := NewIndex([]Record{record})

	status, _, err := Classify(testCandidate(), ledger, NewIndex(nil))
	require.NoError(t, err)
	assert.Equal(t, model.StatusExactDuplicate, status)
}
