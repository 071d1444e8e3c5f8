package imapsync

import (
	"context"
	"sort"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// fullRebuild seeds every subscribed folder from scratch: EXAMINE to learn
// its UIDVALIDITY/UIDNEXT/EXISTS, insert the folder row, then page through
// its messages (date_since-filtered UID SEARCH, or plain MSN windows) and
// save what's fetched. A folder that fails partway is dropped and skipped —
// it's picked back up whole on the next pass — rather than aborting the
// rebuild for every other folder.
func (r *Reconciler) fullRebuild(ctx context.Context, c *client.Client, account *models.Account, subscribed []*goimap.MailboxInfo) error {
	for _, m := range subscribed {
		mbox, err := c.Select(m.Name, true)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("imapsync: EXAMINE failed for account %s folder %s: %v", account.ID, m.Name, err)
			}
			continue
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
			if r.log != nil {
				r.log.Warnf("imapsync: failed to persist folder row for account %s folder %s: %v", account.ID, m.Name, err)
			}
			continue
		}

		var rebuildErr error
		if account.DateSince != nil {
			rebuildErr = r.rebuildFolderSince(ctx, c, account, folder)
		} else {
			rebuildErr = r.rebuildFolderPaginated(ctx, c, account, folder, mbox.Messages)
		}
		if rebuildErr != nil {
			if r.log != nil {
				r.log.Warnf("imapsync: rebuild failed for account %s folder %s, dropping folder for retry next pass: %v", account.ID, m.Name, rebuildErr)
			}
			_ = r.folders.Delete(ctx, folder.ID)
			continue
		}
	}
	return nil
}

// rebuildFolderSince runs the date_since-windowed seed: UID SEARCH SINCE,
// trim to the folder's configured limit (keeping the highest/newest UIDs,
// never fewer than MinFolderLimit), then fetch metadata in
// concurrency-capped batches.
func (r *Reconciler) rebuildFolderSince(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder) error {
	criteria := goimap.NewSearchCriteria()
	criteria.Since = *account.DateSince

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return mailerrors.NewProtocolError("imap.uidsearch.since", err)
	}
	if len(uids) == 0 {
		return nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	limit := r.cfg.MinFolderLimit
	if account.FolderLimit != nil && *account.FolderLimit > limit {
		limit = *account.FolderLimit
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	msgs, err := uidFetchConcurrent(ctx, c, uids, fetchItemsMetadata, r.cfg.RebuildBatchSize, r.cfg.FetchConcurrency)
	if err != nil {
		return err
	}
	return r.saveNewEnvelopes(ctx, c, account, folder, msgs)
}

// rebuildFolderPaginated walks the folder by sequence number in windows of
// RebuildBatchSize. An account with a folder limit walks newest-first and
// stops once the limit is reached; an unbounded account walks the whole
// mailbox oldest-first.
func (r *Reconciler) rebuildFolderPaginated(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder, total uint32) error {
	if total == 0 {
		return nil
	}

	window := uint32(r.cfg.RebuildBatchSize)
	if window == 0 {
		window = 1000
	}

	if account.FolderLimit != nil {
		limit := *account.FolderLimit
		if limit < r.cfg.MinFolderLimit {
			limit = r.cfg.MinFolderLimit
		}
		processed := 0
		end := total
		for end >= 1 && processed < limit {
			w := window
			if remaining := uint32(limit - processed); remaining < w {
				w = remaining
			}
			start := uint32(1)
			if end > w {
				start = end - w + 1
			}
			msgs, err := fetchMSNRange(c, start, end, fetchItemsMetadata)
			if err != nil {
				return err
			}
			if err := r.saveNewEnvelopes(ctx, c, account, folder, msgs); err != nil {
				return err
			}
			processed += len(msgs)
			if start == 1 {
				break
			}
			end = start - 1
		}
		return nil
	}

	for start := uint32(1); start <= total; start += window {
		end := start + window - 1
		if end > total {
			end = total
		}
		msgs, err := fetchMSNRange(c, start, end, fetchItemsMetadata)
		if err != nil {
			return err
		}
		if err := r.saveNewEnvelopes(ctx, c, account, folder, msgs); err != nil {
			return err
		}
	}
	return nil
}
