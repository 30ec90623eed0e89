package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restage-dev/restage/internal/common"
	"github.com/restage-dev/restage/internal/model"
	"github.com/restage-dev/restage/internal/storage"
)

const statementOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20231120120000[0:GMT]
<LANGUAGE>ENG
<FI>
<ORG>First Bank
<FID>1234
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20231101120000[0:GMT]
<DTEND>20231130120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20231115120000[0:GMT]
<TRNAMT>-50.00
<FITID>TXN001
<NAME>Corner Cafe
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20231116120000[0:GMT]
<TRNAMT>-125.00
<FITID>TXN002
<NAME>Whole Foods Market
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20231130120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func newTestEngine(t *testing.T) (*ImportEngine, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return New(store), store
}

func TestImportStagesNewCandidatesSelected(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)
	require.NotEmpty(t, result.BatchID)
	require.Len(t, result.Staged, 2)

	for _, s := range result.Staged {
		assert.Equal(t, model.StatusNew, s.DuplicateStatus)
		assert.Empty(t, s.DuplicateOfKey)
		assert.True(t, s.IsSelected, "new candidates are selected by default")
		assert.Equal(t, "tenant-a", s.TenantID)
		assert.Equal(t, result.BatchID, s.BatchID)
	}
}

func TestReimportBeforeCommitFlagsStagedDuplicates(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)

	second, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)
	require.Len(t, second.Staged, 2)

	stagedKeys := map[string]string{}
	for _, s := range first.Staged {
		stagedKeys[strings.ToLower(s.ExternalID)] = s.Key
	}

	for _, s := range second.Staged {
		assert.Equal(t, model.StatusExactDuplicate, s.DuplicateStatus)
		assert.Equal(t, stagedKeys[strings.ToLower(s.ExternalID)], s.DuplicateOfKey)
		assert.False(t, s.IsSelected, "duplicates are never auto-selected")
	}
}

func TestReimportAfterCommitMatchesOwnLedgerEntry(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)

	commitResult, err := eng.Commit(ctx, "tenant-a", first.BatchID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, commitResult.Committed)

	committedKeys := map[string]string{}
	for _, s := range first.Staged {
		committedKeys[strings.ToLower(s.ExternalID)] = s.Key
	}

	second, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)
	require.Len(t, second.Staged, 2)

	for _, s := range second.Staged {
		assert.Equal(t, model.StatusExactDuplicate, s.DuplicateStatus)
		assert.Equal(t, committedKeys[strings.ToLower(s.ExternalID)], s.DuplicateOfKey,
			"a committed candidate must match its own ledger entry on re-import")
		assert.False(t, s.IsSelected)
	}
}

func TestImportSuggestsCategoriesAndRecordsUsage(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	rule := &model.MatchRule{Pattern: "whole foods", Category: "Groceries"}
	require.NoError(t, store.CreateMatchRule(ctx, rule))

	result, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)

	var suggested int
	for _, s := range result.Staged {
		if s.SuggestedCategory != "" {
			suggested++
			assert.Equal(t, "Groceries", s.SuggestedCategory)
			assert.Equal(t, "Whole Foods Market", s.Payee)
		}
	}
	assert.Equal(t, 1, suggested)

	rules, err := store.GetMatchRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, rules[0].MatchCount)
	assert.NotNil(t, rules[0].LastUsedAt)
}

func TestImportEmptyFileStagesNothing(t *testing.T) {
	eng, _ := newTestEngine(t)

	result, err := eng.Import(context.Background(), strings.NewReader(""), "empty.ofx", "tenant-a")
	require.NoError(t, err)
	assert.Empty(t, result.BatchID)
	assert.Empty(t, result.Staged)
	assert.Empty(t, result.ParseErrors)
}

func TestImportRequiresTenant(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Import(context.Background(), strings.NewReader(statementOFX), "nov.ofx", "")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestCommitUnknownBatchIsNotRetried(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Commit(context.Background(), "tenant-a", "no-such-batch", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestImportTenantsDoNotShareStaging(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-a")
	require.NoError(t, err)

	// The same file imported for a different tenant is all new.
	result, err := eng.Import(ctx, strings.NewReader(statementOFX), "nov.ofx", "tenant-b")
	require.NoError(t, err)
	for _, s := range result.Staged {
		assert.Equal(t, model.StatusNew, s.DuplicateStatus)
	}
}
