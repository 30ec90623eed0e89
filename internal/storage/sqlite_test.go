package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restage-dev/restage/internal/common"
	"github.com/restage-dev/restage/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testStaged(key, batchID string, selected bool) model.StagedCandidate {
	return model.StagedCandidate{
		Candidate: model.Candidate{
			Date:       time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
			Amount:     decimal.RequireFromString("-50.00"),
			Payee:      "Test Payee",
			Memo:       "coffee",
			ExternalID: "TXN001",
			Source:     "First Bank - Checking (****7890)",
		},
		Key:             key,
		BatchID:         batchID,
		TenantID:        "tenant-a",
		DuplicateStatus: model.StatusNew,
		IsSelected:      selected,
		CreatedAt:       time.Date(2023, 11, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestStagedRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	staged := testStaged("key-1", "batch-1", true)
	staged.SuggestedCategory = "Coffee"
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{staged}))

	got, err := store.GetStagedBatch(ctx, "tenant-a", "batch-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, staged.Key, got[0].Key)
	assert.Equal(t, staged.ExternalID, got[0].ExternalID)
	assert.Equal(t, staged.Payee, got[0].Payee)
	assert.Equal(t, staged.Memo, got[0].Memo)
	assert.Equal(t, staged.Source, got[0].Source)
	assert.Equal(t, "Coffee", got[0].SuggestedCategory)
	assert.True(t, got[0].Amount.Equal(staged.Amount))
	assert.True(t, got[0].IsSelected)
	assert.Nil(t, got[0].CommittedAt)
}

func TestSaveStagedRejectsInvariantViolations(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// Duplicate status without a reference.
	bad := testStaged("key-1", "batch-1", false)
	bad.DuplicateStatus = model.StatusExactDuplicate
	err := store.SaveStagedCandidates(ctx, []model.StagedCandidate{bad})
	assert.ErrorIs(t, err, ErrInvalidStaged)

	// Reference without duplicate status.
	bad = testStaged("key-2", "batch-1", true)
	bad.DuplicateOfKey = "other"
	err = store.SaveStagedCandidates(ctx, []model.StagedCandidate{bad})
	assert.ErrorIs(t, err, ErrInvalidStaged)
}

func TestUpdateStagedSelection(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	staged := testStaged("key-1", "batch-1", true)
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{staged}))

	require.NoError(t, store.UpdateStagedSelection(ctx, "key-1", false))

	got, err := store.GetStagedBatch(ctx, "tenant-a", "batch-1")
	require.NoError(t, err)
	assert.False(t, got[0].IsSelected)

	err = store.UpdateStagedSelection(ctx, "no-such-key", true)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCommitBatchMovesSelectedRowsToLedger(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	selected := testStaged("key-1", "batch-1", true)
	selected.SuggestedCategory = "Coffee"
	unselected := testStaged("key-2", "batch-1", false)
	unselected.ExternalID = "TXN002"
	require.NoError(t, store.SaveStagedCandidates(ctx,
		[]model.StagedCandidate{selected, unselected}))

	result, err := store.CommitBatch(ctx, "tenant-a", "batch-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Committed)
	assert.Equal(t, 0, result.Discarded)
	assert.Equal(t, 1, result.Retained)

	entries, err := store.GetLedgerEntries(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key-1", entries[0].Key)
	assert.Equal(t, "TXN001", entries[0].ExternalID)
	assert.Equal(t, "Coffee", entries[0].Category)
	assert.True(t, entries[0].Amount.Equal(selected.Amount))

	// Committed batch no longer pollutes the staging index.
	pending, err := store.GetUncommittedStaged(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitBatchDiscardsUnselectedWhenAsked(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	selected := testStaged("key-1", "batch-1", true)
	unselected := testStaged("key-2", "batch-1", false)
	unselected.ExternalID = "TXN002"
	require.NoError(t, store.SaveStagedCandidates(ctx,
		[]model.StagedCandidate{selected, unselected}))

	result, err := store.CommitBatch(ctx, "tenant-a", "batch-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Committed)
	assert.Equal(t, 1, result.Discarded)

	got, err := store.GetStagedBatch(ctx, "tenant-a", "batch-1")
	require.NoError(t, err)
	require.Len(t, got, 1, "unselected row should be gone")
	assert.Equal(t, "key-1", got[0].Key)
}

func TestCommitBatchTwiceFails(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	staged := testStaged("key-1", "batch-1", true)
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{staged}))

	_, err := store.CommitBatch(ctx, "tenant-a", "batch-1", false)
	require.NoError(t, err)

	_, err = store.CommitBatch(ctx, "tenant-a", "batch-1", false)
	assert.ErrorIs(t, err, common.ErrBatchCommitted)
}

func TestCommitBatchUnknownBatch(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.CommitBatch(context.Background(), "tenant-a", "no-such-batch", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCommitBatchNothingSelected(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	staged := testStaged("key-1", "batch-1", false)
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{staged}))

	_, err := store.CommitBatch(ctx, "tenant-a", "batch-1", false)
	assert.ErrorIs(t, err, common.ErrNothingSelected)
}

func TestUpdatesRefusedAfterCommit(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	staged := testStaged("key-1", "batch-1", true)
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{staged}))
	_, err := store.CommitBatch(ctx, "tenant-a", "batch-1", false)
	require.NoError(t, err)

	err = store.UpdateStagedSelection(ctx, "key-1", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveLedgerEntriesSeedsLedger(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	entry := model.LedgerEntry{
		Candidate: model.Candidate{
			Date:       time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC),
			Amount:     decimal.RequireFromString("-9.99"),
			Payee:      "Streaming Service",
			ExternalID: "OLD001",
		},
		Key:       "seed-1",
		TenantID:  "tenant-a",
		Category:  "Entertainment",
		CreatedAt: time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveLedgerEntries(ctx, []model.LedgerEntry{entry}))

	entries, err := store.GetLedgerEntries(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "OLD001", entries[0].ExternalID)
	assert.Equal(t, "Entertainment", entries[0].Category)
	assert.True(t, entries[0].Amount.Equal(entry.Amount))
}

func TestTenantIsolation(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := testStaged("key-a", "batch-a", true)
	b := testStaged("key-b", "batch-b", true)
	b.TenantID = "tenant-b"
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{a}))
	require.NoError(t, store.SaveStagedCandidates(ctx, []model.StagedCandidate{b}))

	pending, err := store.GetUncommittedStaged(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "key-a", pending[0].Key)
}
