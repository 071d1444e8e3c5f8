package imapsync

import (
	"testing"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/flagindex"
	"github.com/mailforge/mailforge/internal/models"
)

func TestNeedsRebuildWithNoLocalFolders(t *testing.T) {
	r := &Reconciler{flagIndex: flagindex.New(nil)}
	assert.True(t, r.needsRebuild("acct_1", nil))
}

func TestNeedsRebuildWithEmptyIndexedFolders(t *testing.T) {
	r := &Reconciler{flagIndex: flagindex.New(nil)}
	local := []*models.Folder{{ID: "fold_1", AccountID: "acct_1"}}
	assert.True(t, r.needsRebuild("acct_1", local))
}

func TestNeedsRebuildFalseOnceAnyFolderHasIndexedUIDs(t *testing.T) {
	idx := flagindex.New(nil)
	idx.Update("acct_1", "fold_1", 1, 111)
	r := &Reconciler{flagIndex: idx}
	local := []*models.Folder{{ID: "fold_1", AccountID: "acct_1"}, {ID: "fold_2", AccountID: "acct_1"}}
	assert.False(t, r.needsRebuild("acct_1", local))
}

func TestMailboxHasAttrIsCaseInsensitive(t *testing.T) {
	m := &goimap.MailboxInfo{Attributes: []string{"\\Noselect"}}
	assert.True(t, mailboxHasAttr(m, "\\noselect"))
	assert.False(t, mailboxHasAttr(m, "\\Sent"))
}

func TestChooseReconcilePathFullSyncAlwaysWalksEvenWhenUIDsMatch(t *testing.T) {
	folder := &models.Folder{UIDNext: 500, Exists: 10}
	mbox := &goimap.MailboxStatus{UidNext: 500, Messages: 10}
	assert.Equal(t, pathFullWalk, chooseReconcilePath(enum.SyncFull, folder, mbox))
}

func TestChooseReconcilePathFullSyncClearsEmptyMailbox(t *testing.T) {
	folder := &models.Folder{UIDNext: 500, Exists: 10}
	mbox := &goimap.MailboxStatus{UidNext: 500, Messages: 0}
	assert.Equal(t, pathCleanEmpty, chooseReconcilePath(enum.SyncFull, folder, mbox))
}

func TestChooseReconcilePathIncrementalFastPathWhenUnchanged(t *testing.T) {
	folder := &models.Folder{UIDNext: 500, Exists: 10}
	mbox := &goimap.MailboxStatus{UidNext: 500, Messages: 10}
	assert.Equal(t, pathFastRefresh, chooseReconcilePath(enum.SyncIncremental, folder, mbox))
}

func TestChooseReconcilePathIncrementalNewMailOnGrowth(t *testing.T) {
	folder := &models.Folder{UIDNext: 500, Exists: 10}
	mbox := &goimap.MailboxStatus{UidNext: 520, Messages: 12}
	assert.Equal(t, pathNewMail, chooseReconcilePath(enum.SyncIncremental, folder, mbox))
}

func TestChooseReconcilePathIncrementalFallsBackToFullWalkOnShrink(t *testing.T) {
	folder := &models.Folder{UIDNext: 500, Exists: 10}
	mbox := &goimap.MailboxStatus{UidNext: 520, Messages: 8}
	assert.Equal(t, pathFullWalk, chooseReconcilePath(enum.SyncIncremental, folder, mbox))
}
