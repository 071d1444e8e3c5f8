package imapsync

import (
	"context"
	"strconv"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
)

// incrementalReconcile is the non-rebuild branch of Sync: it retires
// folders the server no longer reports, seeds folders that showed up since
// the last pass, and reconciles every folder present on both sides. syncType
// is forwarded unchanged to reconcileFolder, which is where it actually
// governs the per-folder path.
func (r *Reconciler) incrementalReconcile(ctx context.Context, c *client.Client, account *models.Account, local []*models.Folder, subscribed []*goimap.MailboxInfo, syncType enum.SyncType) error {
	localByName := make(map[string]*models.Folder, len(local))
	for _, f := range local {
		localByName[f.RemoteName] = f
	}
	knownRemote := make(map[string]struct{}, len(account.KnownFolders))
	for _, name := range account.KnownFolders {
		knownRemote[name] = struct{}{}
	}

	for _, f := range local {
		if _, ok := knownRemote[f.RemoteName]; ok {
			continue
		}
		if err := r.flagIndex.CleanFolder(ctx, r.envelopes, account.ID, f.ID, r.cfg.CleanupBatchSize); err != nil && r.log != nil {
			r.log.Warnf("imapsync: clean failed for retired folder account %s folder %s: %v", account.ID, f.RemoteName, err)
		}
		if err := r.folders.Delete(ctx, f.ID); err != nil && r.log != nil {
			r.log.Warnf("imapsync: failed to delete retired folder row account %s folder %s: %v", account.ID, f.RemoteName, err)
		}
	}

	for _, m := range subscribed {
		if _, ok := localByName[m.Name]; ok {
			continue
		}
		if err := r.seedFolder(ctx, c, account, m); err != nil && r.log != nil {
			r.log.Warnf("imapsync: seed failed for new folder account %s folder %s: %v", account.ID, m.Name, err)
		}
	}

	for _, m := range subscribed {
		folder, ok := localByName[m.Name]
		if !ok {
			continue
		}
		if err := r.reconcileFolder(ctx, c, account, folder, m, syncType); err != nil && r.log != nil {
			r.log.Warnf("imapsync: reconcile failed for account %s folder %s: %v", account.ID, m.Name, err)
		}
	}

	return nil
}

// seedFolder EXAMINEs a newly-subscribed mailbox, persists its folder row,
// and runs the same rebuild path fullRebuild uses for a brand-new account —
// dropping the folder row on failure so it's retried whole next pass.
func (r *Reconciler) seedFolder(ctx context.Context, c *client.Client, account *models.Account, m *goimap.MailboxInfo) error {
	mbox, err := c.Select(m.Name, true)
	if err != nil {
		return err
	}

	folder := &models.Folder{
		AccountID:   account.ID,
		RemoteName:  m.Name,
		DisplayName: m.Name,
		Attributes:  m.Attributes,
		Exists:      mbox.Messages,
		UIDValidity: mbox.UidValidity,
		UIDNext:     mbox.UidNext,
	}
	if err := r.folders.Upsert(ctx, folder); err != nil {
		return err
	}

	var seedErr error
	if account.DateSince != nil {
		seedErr = r.rebuildFolderSince(ctx, c, account, folder)
	} else {
		seedErr = r.rebuildFolderPaginated(ctx, c, account, folder, mbox.Messages)
	}
	if seedErr != nil {
		_ = r.folders.Delete(ctx, folder.ID)
		return seedErr
	}
	return nil
}

// reconcilePath names which of reconcileFolder's branches a given
// (syncType, local, remote) triple selects.
type reconcilePath int

const (
	pathFastRefresh reconcilePath = iota
	pathCleanEmpty
	pathNewMail
	pathFullWalk
)

// chooseReconcilePath is the pure decision reconcileFolder dispatches on. A
// SyncFull tick always walks the whole UID space — the scheduler's periodic
// full resync is the only thing that ever notices flag changes or deletions
// outside fastPathRefresh's trailing window or messages already covered by
// the index, so it must run unconditionally rather than being skipped
// whenever UIDNEXT/EXISTS happen to already match. An empty mailbox is
// still just cleared outright regardless of syncType. A SyncIncremental
// tick keeps the cheaper fast/new-mail heuristics, falling back to a full
// walk only when neither shape matches (e.g. messages were deleted).
func chooseReconcilePath(syncType enum.SyncType, folder *models.Folder, mbox *goimap.MailboxStatus) reconcilePath {
	if mbox.Messages == 0 {
		return pathCleanEmpty
	}
	if syncType == enum.SyncFull {
		return pathFullWalk
	}
	switch {
	case folder.UIDNext == mbox.UidNext && folder.Exists == mbox.Messages:
		return pathFastRefresh
	case mbox.UidNext > folder.UIDNext && mbox.Messages >= folder.Exists:
		return pathNewMail
	default:
		return pathFullWalk
	}
}

// reconcileFolder EXAMINEs folder's mailbox, re-seeds it from scratch if
// UIDVALIDITY changed underneath it, otherwise dispatches on
// chooseReconcilePath. Folder metadata is only persisted after the chosen
// path completes, so a crash mid-reconcile re-runs the same comparison —
// and the same path — on the next pass.
func (r *Reconciler) reconcileFolder(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder, m *goimap.MailboxInfo, syncType enum.SyncType) error {
	mbox, err := c.Select(m.Name, true)
	if err != nil {
		return err
	}

	if mbox.UidValidity != folder.UIDValidity {
		return r.reseedAfterUIDValidityChange(ctx, c, account, folder, mbox)
	}

	var syncErr error
	switch chooseReconcilePath(syncType, folder, mbox) {
	case pathFastRefresh:
		syncErr = r.fastPathRefresh(ctx, c, account, folder)
	case pathCleanEmpty:
		syncErr = r.flagIndex.CleanFolder(ctx, r.envelopes, account.ID, folder.ID, r.cfg.CleanupBatchSize)
	case pathNewMail:
		syncErr = r.newMailPath(ctx, c, account, folder)
	default:
		syncErr = r.fullSyncPath(ctx, c, account, folder, mbox)
	}
	if syncErr != nil {
		return syncErr
	}

	return r.folders.UpdateMetadata(ctx, folder.ID, mbox.UidNext, folder.HighestModSeq, mbox.Messages)
}

// reseedAfterUIDValidityChange discards everything locally known about
// folder and re-seeds it — the server has reassigned UIDs, so every
// previously-recorded UID is meaningless.
func (r *Reconciler) reseedAfterUIDValidityChange(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder, mbox *goimap.MailboxStatus) error {
	if err := r.flagIndex.CleanFolder(ctx, r.envelopes, account.ID, folder.ID, r.cfg.CleanupBatchSize); err != nil {
		return err
	}
	_ = r.emit(ctx, account, enum.EventUIDValidityChange, map[string]interface{}{"folderId": folder.ID})

	var seedErr error
	if account.DateSince != nil {
		seedErr = r.rebuildFolderSince(ctx, c, account, folder)
	} else {
		seedErr = r.rebuildFolderPaginated(ctx, c, account, folder, mbox.Messages)
	}
	if seedErr != nil {
		return seedErr
	}

	if err := r.folders.UpdateUIDValidity(ctx, folder.ID, mbox.UidValidity, mbox.UidNext); err != nil {
		return err
	}
	return r.folders.UpdateMetadata(ctx, folder.ID, mbox.UidNext, folder.HighestModSeq, mbox.Messages)
}

// fastPathRefresh is the cheapest reconcile path: UIDNEXT and EXISTS are
// unchanged, so only flags on the most recent window of UIDs can possibly
// have moved.
func (r *Reconciler) fastPathRefresh(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder) error {
	minUID := uint32(1)
	window := uint32(r.cfg.FastPathWindow)
	if folder.UIDNext > window {
		minUID = folder.UIDNext - window
	}

	msgs, err := uidFetchFlagRange(c, minUID, 0)
	if err != nil {
		return err
	}

	indexed := r.flagIndex.GetUIDMap(account.ID, folder.ID, minUID)
	known := make(map[uint32]uint64, len(indexed))
	for _, e := range indexed {
		known[e.UID] = e.FlagsHash
	}

	var updates []repository.FlagUpdate
	for _, msg := range msgs {
		hash := models.FlagsHash(msg.Flags)
		if old, ok := known[msg.Uid]; !ok || old != hash {
			updates = append(updates, repository.FlagUpdate{UID: msg.Uid, Flags: msg.Flags, FlagsHash: hash})
		}
	}
	return r.applyFlagUpdates(ctx, account, folder, updates)
}

// newMailPath handles pure growth: the server reports more messages than
// last known and UIDNEXT moved forward, so everything beyond the local
// flag index's max UID is new.
func (r *Reconciler) newMailPath(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder) error {
	localMax := r.flagIndex.MaxUID(account.ID, folder.ID)

	msgs, err := uidFetchFrom(c, localMax+1, fetchItemsMetadata)
	if err != nil {
		return err
	}

	fresh := msgs[:0]
	for _, msg := range msgs {
		if msg.Uid > localMax {
			fresh = append(fresh, msg)
		}
	}
	return r.saveNewEnvelopes(ctx, c, account, folder, fresh)
}

// fullSyncPath is the fallback when UIDNEXT/EXISTS drift in a way that
// doesn't match pure append-only growth — some combination of additions,
// deletions, and flag changes since the last pass. It walks the entire UID
// space in bounded windows, diffs each window against the flag index, and
// applies the union of adds/deletes/flag-updates once the walk completes.
func (r *Reconciler) fullSyncPath(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder, mbox *goimap.MailboxStatus) error {
	if mbox.Messages == 0 {
		return r.flagIndex.CleanFolder(ctx, r.envelopes, account.ID, folder.ID, r.cfg.CleanupBatchSize)
	}

	window := uint32(r.cfg.ReconcileWindowSize)
	if window == 0 {
		window = 10000
	}

	local := r.flagIndex.GetUIDMap(account.ID, folder.ID, 0)
	localHash := make(map[uint32]uint64, len(local))
	for _, e := range local {
		localHash[e.UID] = e.FlagsHash
	}

	seen := make(map[uint32]struct{}, len(local))
	var toAdd []uint32
	var flagUpdates []repository.FlagUpdate

	last := mbox.UidNext
	if last == 0 {
		last = 1
	}
	for start := uint32(1); start < last; start += window {
		end := start + window - 1
		if end >= last {
			end = last - 1
		}

		msgs, err := uidFetchFlagRange(c, start, end)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			seen[msg.Uid] = struct{}{}
			hash := models.FlagsHash(msg.Flags)
			if old, ok := localHash[msg.Uid]; ok {
				if old != hash {
					flagUpdates = append(flagUpdates, repository.FlagUpdate{UID: msg.Uid, Flags: msg.Flags, FlagsHash: hash})
				}
			} else {
				toAdd = append(toAdd, msg.Uid)
			}
		}
	}

	var missing []uint32
	for uid := range localHash {
		if _, ok := seen[uid]; !ok {
			missing = append(missing, uid)
		}
	}

	if len(toAdd) > 0 {
		added, err := uidFetchConcurrent(ctx, c, toAdd, fetchItemsMetadata, r.cfg.RebuildBatchSize, r.cfg.FetchConcurrency)
		if err != nil {
			return err
		}
		if err := r.saveNewEnvelopes(ctx, c, account, folder, added); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		if err := r.envelopes.DeleteMissing(ctx, account.ID, folder.ID, missing); err != nil {
			return err
		}
	}
	return r.applyFlagUpdates(ctx, account, folder, flagUpdates)
}

// applyFlagUpdates pushes a batch of flag changes to the envelope store and,
// only when something is actually subscribed to EmailFlagsChanged, reads
// back each changed envelope's prior flags to compute the added/removed
// sets the event payload carries.
func (r *Reconciler) applyFlagUpdates(ctx context.Context, account *models.Account, folder *models.Folder, updates []repository.FlagUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	if r.isSubscribed(ctx, account.ID, enum.EventEmailFlagsChanged) {
		for _, u := range updates {
			old, err := r.envelopes.FindByKey(ctx, account.ID, folder.ID, formatUID(u.UID))
			if err != nil {
				continue
			}
			added, removed := models.DiffFlags([]string(old.Flags), u.Flags)
			if len(added) == 0 && len(removed) == 0 {
				continue
			}
			_ = r.emit(ctx, account, enum.EventEmailFlagsChanged, map[string]interface{}{
				"folderId": folder.ID,
				"uid":      u.UID,
				"added":    added,
				"removed":  removed,
			})
		}
	}

	return r.envelopes.ApplyFlagUpdates(ctx, account.ID, folder.ID, updates)
}

func formatUID(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}
