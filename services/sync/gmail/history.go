package gmailsync

import (
	"context"
	"strconv"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// historyExpiredStatus is the HTTP status Gmail returns from
// Users.History.List when startHistoryId is older than the API's retention
// window; the only correct response is to reseed the label from scratch.
const historyExpiredStatus = 404

// seedLabel creates the folder row for a label the reconciler has never
// seen locally and runs its initial rebuild. A rebuild failure drops the
// folder row so the label is retried whole on the next pass, mirroring the
// IMAP reconciler's fullRebuild cleanup.
func (r *Reconciler) seedLabel(ctx context.Context, svc *gmailv1.Service, account *models.Account, label *gmailv1.Label) (*models.Folder, error) {
	folder := &models.Folder{
		AccountID:   account.ID,
		LabelID:     label.Id,
		RemoteName:  label.Id,
		DisplayName: label.Name,
	}
	if err := r.folders.Upsert(ctx, folder); err != nil {
		return nil, err
	}
	if err := r.rebuildLabel(ctx, svc, account, folder); err != nil {
		_ = r.folders.Delete(ctx, folder.ID)
		return nil, err
	}
	return folder, nil
}

// fullRebuildLabel reruns the initial rebuild for a folder row that already
// exists but has no usable checkpoint yet — either it never finished its
// first rebuild, or the stored historyId was reported expired.
func (r *Reconciler) fullRebuildLabel(ctx context.Context, svc *gmailv1.Service, account *models.Account, folder *models.Folder) error {
	return r.rebuildLabel(ctx, svc, account, folder)
}

// rebuildLabel lists and mirrors every message in folder's label (bounded by
// the account's DateSince/FolderLimit the same way the IMAP reconciler's
// rebuildFolderSince is), then records the mailbox's current historyId as
// the incremental sync's starting checkpoint.
func (r *Reconciler) rebuildLabel(ctx context.Context, svc *gmailv1.Service, account *models.Account, folder *models.Folder) error {
	limit := r.cfg.MinFolderLimit
	if account.FolderLimit != nil && *account.FolderLimit > limit {
		limit = *account.FolderLimit
	}

	var since string
	if account.DateSince != nil {
		since = sinceQuery(account.DateSince.Unix())
	}

	ids, err := listMessageIDs(ctx, svc, folder.LabelID, since, limit)
	if err != nil {
		return err
	}

	batch := r.cfg.RebuildBatchSize
	if batch <= 0 {
		batch = 500
	}
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		msgs, err := fetchMetadataConcurrent(ctx, svc, ids[start:end], r.cfg.FetchConcurrency)
		if err != nil {
			return err
		}
		if err := r.saveNewEnvelopes(ctx, svc, account, folder, msgs); err != nil {
			return err
		}
	}

	historyID, err := currentHistoryID(ctx, svc)
	if err != nil {
		return err
	}
	if err := r.folders.UpdateMetadata(ctx, folder.ID, 0, 0, uint32(len(ids))); err != nil {
		return err
	}
	return r.checkpoints.Upsert(ctx, account.ID, folder.ID, formatHistoryID(historyID))
}

// historySync runs the incremental path: page Users.History.List from
// folder's stored historyId, classify every affected message as added,
// removed, or flag-changed (by label membership delta), apply adds before
// removes before flag changes for the same reason the IMAP reconciler
// orders its full-sync-path writes that way, then persist the newest
// historyId observed.
func (r *Reconciler) historySync(ctx context.Context, svc *gmailv1.Service, account *models.Account, folder *models.Folder, startHistoryID string) error {
	startID := parseHistoryID(startHistoryID)
	call := svc.Users.History.List(gmailUser).
		StartHistoryId(startID).
		LabelId(folder.LabelID).
		MaxResults(500)

	added := make(map[string]struct{})
	removed := make(map[string]struct{})
	flagChanged := make(map[string]struct{})
	newestHistoryID := startID

	pageToken := ""
	for {
		page := call
		if pageToken != "" {
			page = page.PageToken(pageToken)
		}
		resp, err := page.Context(ctx).Do()
		if err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == historyExpiredStatus {
				if markErr := r.checkpoints.MarkExpired(ctx, account.ID, folder.ID); markErr != nil {
					return markErr
				}
				return r.rebuildLabel(ctx, svc, account, folder)
			}
			return mailerrors.NewProtocolError("gmail.history.list", err)
		}
		if resp.HistoryId > newestHistoryID {
			newestHistoryID = resp.HistoryId
		}

		for _, h := range resp.History {
			if h.Id > newestHistoryID {
				newestHistoryID = h.Id
			}
			for _, ma := range h.MessagesAdded {
				if ma.Message == nil {
					continue
				}
				added[ma.Message.Id] = struct{}{}
				delete(removed, ma.Message.Id)
			}
			for _, md := range h.MessagesDeleted {
				if md.Message == nil {
					continue
				}
				removed[md.Message.Id] = struct{}{}
				delete(added, md.Message.Id)
			}
			for _, la := range h.LabelsAdded {
				if la.Message == nil {
					continue
				}
				if _, isAdd := added[la.Message.Id]; !isAdd {
					flagChanged[la.Message.Id] = struct{}{}
				}
			}
			for _, lr := range h.LabelsRemoved {
				if lr.Message == nil {
					continue
				}
				if _, isAdd := added[lr.Message.Id]; !isAdd {
					flagChanged[lr.Message.Id] = struct{}{}
				}
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(added) > 0 {
		ids := make([]string, 0, len(added))
		for id := range added {
			ids = append(ids, id)
		}
		msgs, err := fetchMetadataConcurrent(ctx, svc, ids, r.cfg.FetchConcurrency)
		if err != nil {
			return err
		}
		if err := r.saveNewEnvelopes(ctx, svc, account, folder, msgs); err != nil {
			return err
		}
	}

	if len(removed) > 0 {
		ids := make([]string, 0, len(removed))
		for id := range removed {
			ids = append(ids, id)
		}
		if err := r.envelopes.DeleteByMessageIDs(ctx, account.ID, folder.ID, ids); err != nil {
			return err
		}
	}

	if len(flagChanged) > 0 {
		if err := r.applyFlagChanges(ctx, svc, account, folder, flagChanged); err != nil {
			return err
		}
	}

	return r.checkpoints.Upsert(ctx, account.ID, folder.ID, formatHistoryID(newestHistoryID))
}

// applyFlagChanges re-fetches the label set for every message the history
// walk flagged as changed and writes the derived flags, emitting
// EmailFlagsChanged for the ones that actually differ from what's stored
// when a consumer is subscribed.
func (r *Reconciler) applyFlagChanges(ctx context.Context, svc *gmailv1.Service, account *models.Account, folder *models.Folder, ids map[string]struct{}) error {
	wantEvent := r.isSubscribed(ctx, account.ID, enum.EventEmailFlagsChanged)

	for id := range ids {
		msg, err := svc.Users.Messages.Get(gmailUser, id).Format("minimal").Context(ctx).Do()
		if err != nil {
			if r.log != nil {
				r.log.Warnf("gmailsync: flag refresh failed for account %s message %s: %v", account.ID, id, err)
			}
			continue
		}
		flags := flagsFromLabels(msg.LabelIds)
		flagsHash := models.FlagsHash(flags)

		if wantEvent {
			if old, err := r.envelopes.FindByKey(ctx, account.ID, folder.ID, id); err == nil {
				added, removedFlags := models.DiffFlags([]string(old.Flags), flags)
				if len(added) > 0 || len(removedFlags) > 0 {
					_ = r.emit(ctx, account, enum.EventEmailFlagsChanged, map[string]interface{}{
						"folderId": folder.ID, "messageId": id, "added": added, "removed": removedFlags,
					})
				}
			}
		}

		if err := r.envelopes.UpdateFlagsByMessageID(ctx, account.ID, folder.ID, id, flags, flagsHash); err != nil {
			return err
		}
	}
	return nil
}

// currentHistoryID reads the mailbox's present historyId via GetProfile,
// the same starting point the IMAP reconciler would get from a fresh
// EXAMINE's HIGHESTMODSEQ: the cursor as of right now, not as of when the
// rebuild's message list was captured, so any change that lands mid-rebuild
// is simply picked up again on the next incremental pass.
func currentHistoryID(ctx context.Context, svc *gmailv1.Service) (uint64, error) {
	profile, err := svc.Users.GetProfile(gmailUser).Context(ctx).Do()
	if err != nil {
		return 0, mailerrors.NewProtocolError("gmail.profile.get", err)
	}
	return profile.HistoryId, nil
}

// formatHistoryID renders a historyId for storage in GmailCheckpoint.HistoryID,
// which is typed as a string so the same table shape can hold Outlook's
// opaque delta-link-style cursors too if a provider ever needs it.
func formatHistoryID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// parseHistoryID reads back a stored historyId, treating an empty or
// unparsable value as "start of history" (historyId 0), which Gmail accepts
// as a request for everything since mailbox creation.
func parseHistoryID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
