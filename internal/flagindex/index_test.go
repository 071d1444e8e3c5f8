package flagindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAndGetUIDMap(t *testing.T) {
	idx := New(nil)

	idx.Update("acct_1", "fold_a", 1, 111)
	idx.Update("acct_1", "fold_a", 2, 222)
	idx.Update("acct_1", "fold_a", 5, 555)
	idx.Update("acct_1", "fold_b", 1, 999) // different folder, must not leak

	all := idx.GetUIDMap("acct_1", "fold_a", 0)
	require.Len(t, all, 3)
	assert.Equal(t, uint32(1), all[0].UID)
	assert.Equal(t, uint32(2), all[1].UID)
	assert.Equal(t, uint32(5), all[2].UID)

	fromThree := idx.GetUIDMap("acct_1", "fold_a", 3)
	require.Len(t, fromThree, 1)
	assert.Equal(t, uint32(5), fromThree[0].UID)
	assert.Equal(t, uint64(555), fromThree[0].FlagsHash)
}

func TestUpdateOverwrites(t *testing.T) {
	idx := New(nil)
	idx.Update("acct_1", "fold_a", 1, 111)
	idx.Update("acct_1", "fold_a", 1, 222)

	all := idx.GetUIDMap("acct_1", "fold_a", 0)
	require.Len(t, all, 1)
	assert.Equal(t, uint64(222), all[0].FlagsHash)
}

func TestMaxUID(t *testing.T) {
	idx := New(nil)
	assert.Equal(t, uint32(0), idx.MaxUID("acct_1", "fold_a"))

	idx.Update("acct_1", "fold_a", 3, 1)
	idx.Update("acct_1", "fold_a", 9, 1)
	idx.Update("acct_1", "fold_a", 4, 1)
	assert.Equal(t, uint32(9), idx.MaxUID("acct_1", "fold_a"))
}

type fakeCleaner struct {
	byFolderCalls  int
	byAccountCalls int
}

func (f *fakeCleaner) CleanByFolder(ctx context.Context, accountID, folderID string, batchSize int) (int64, error) {
	f.byFolderCalls++
	if f.byFolderCalls >= 3 {
		return 0, nil
	}
	return 1, nil
}

func (f *fakeCleaner) CleanByAccount(ctx context.Context, accountID string, batchSize int) (int64, error) {
	f.byAccountCalls++
	if f.byAccountCalls >= 2 {
		return 0, nil
	}
	return 1, nil
}

func TestCleanFolderDropsIndexAndLoopsUntilExhausted(t *testing.T) {
	idx := New(nil)
	idx.Update("acct_1", "fold_a", 1, 1)

	cleaner := &fakeCleaner{}
	err := idx.CleanFolder(context.Background(), cleaner, "acct_1", "fold_a", 200)
	require.NoError(t, err)
	assert.Equal(t, 3, cleaner.byFolderCalls)
	assert.Empty(t, idx.GetUIDMap("acct_1", "fold_a", 0))
}

func TestCleanAccountDropsAllFolders(t *testing.T) {
	idx := New(nil)
	idx.Update("acct_1", "fold_a", 1, 1)
	idx.Update("acct_1", "fold_b", 2, 2)

	cleaner := &fakeCleaner{}
	err := idx.CleanAccount(context.Background(), cleaner, "acct_1", 200)
	require.NoError(t, err)
	assert.Equal(t, 2, cleaner.byAccountCalls)
	assert.Empty(t, idx.GetUIDMap("acct_1", "fold_a", 0))
	assert.Empty(t, idx.GetUIDMap("acct_1", "fold_b", 0))
}

type fakeAccounts struct {
	ids []string
}

func (f *fakeAccounts) ListEnabledAccountIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

type fakeScanner struct {
	rows map[string][]MinimalEnvelope
}

func (f *fakeScanner) ScanMinimal(ctx context.Context, accountID string) ([]MinimalEnvelope, error) {
	return f.rows[accountID], nil
}

func TestLoadStateRebuildsFromScanner(t *testing.T) {
	idx := New(nil)
	accounts := &fakeAccounts{ids: []string{"acct_1", "acct_2"}}
	scanner := &fakeScanner{rows: map[string][]MinimalEnvelope{
		"acct_1": {{FolderID: "fold_a", UID: 1, FlagsHash: 10}, {FolderID: "fold_a", UID: 2, FlagsHash: 20}},
		"acct_2": {{FolderID: "fold_b", UID: 7, FlagsHash: 70}},
	}}

	err := idx.LoadState(context.Background(), accounts, scanner, 10)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), idx.MaxUID("acct_1", "fold_a"))
	assert.Equal(t, uint32(7), idx.MaxUID("acct_2", "fold_b"))
}
