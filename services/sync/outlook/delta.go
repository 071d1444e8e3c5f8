package outlooksync

import (
	"context"
	"strings"

	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
)

// seedFolder creates the folder row for a mail folder the reconciler has
// never seen locally and runs its initial rebuild. A rebuild failure drops
// the folder row so the folder is retried whole on the next pass, mirroring
// the Gmail reconciler's seedLabel cleanup.
func (r *Reconciler) seedFolder(ctx context.Context, client *msgraphsdk.GraphServiceClient, account *models.Account, mf graphmodels.MailFolderable) (*models.Folder, error) {
	folder := &models.Folder{
		AccountID:     account.ID,
		GraphFolderID: graphFolderID(mf),
		RemoteName:    graphFolderID(mf),
		DisplayName:   folderDisplayName(mf),
	}
	if err := r.folders.Upsert(ctx, folder); err != nil {
		return nil, err
	}
	if err := r.rebuildFolder(ctx, client, account, folder); err != nil {
		_ = r.folders.Delete(ctx, folder.ID)
		return nil, err
	}
	return folder, nil
}

// fullRebuildFolder reruns the initial rebuild for a folder row that already
// exists but has no usable delta link yet — either it never finished its
// first rebuild, or Graph reported the stored link expired (resync
// required).
func (r *Reconciler) fullRebuildFolder(ctx context.Context, client *msgraphsdk.GraphServiceClient, account *models.Account, folder *models.Folder) error {
	return r.rebuildFolder(ctx, client, account, folder)
}

// rebuildFolder walks folder's delta feed from scratch (bounded by the
// account's DateSince/FolderLimit the same way the IMAP/Gmail reconcilers'
// full rebuilds are), mirrors every message it sees, then persists the
// deltaLink the walk ended on as the incremental sync's starting checkpoint.
// Starting the very first sync from the delta endpoint rather than the plain
// message list avoids a second, throwaway listing call once the walk
// reaches steady state.
func (r *Reconciler) rebuildFolder(ctx context.Context, client *msgraphsdk.GraphServiceClient, account *models.Account, folder *models.Folder) error {
	user := account.EmailAddress

	var filter string
	if account.DateSince != nil {
		filter = sinceFilter(*account.DateSince)
	}

	added, _, deltaLink, err := r.deltaWalk(ctx, client, user, folder.GraphFolderID, "", filter)
	if err != nil {
		return err
	}

	limit := r.cfg.MinFolderLimit
	if account.FolderLimit != nil && *account.FolderLimit > limit {
		limit = *account.FolderLimit
	}
	if limit > 0 && len(added) > limit {
		added = added[:limit]
	}

	batch := r.cfg.RebuildBatchSize
	if batch <= 0 {
		batch = 500
	}
	for start := 0; start < len(added); start += batch {
		end := start + batch
		if end > len(added) {
			end = len(added)
		}
		if err := r.saveNewEnvelopes(ctx, client, account, folder, added[start:end]); err != nil {
			return err
		}
	}

	if err := r.folders.UpdateMetadata(ctx, folder.ID, 0, 0, uint32(len(added))); err != nil {
		return err
	}
	return r.deltaLinks.Upsert(ctx, account.ID, folder.ID, deltaLink)
}

// deltaSync runs the incremental path: resume folder's delta feed from
// startLink, classify every reported message as added or removed (Graph
// marks a hard delete with an "@removed" entry rather than a tombstone
// field), apply adds before removes for the same reason the IMAP/Gmail
// reconcilers order their write paths that way, then persist the deltaLink
// the walk ended on.
func (r *Reconciler) deltaSync(ctx context.Context, client *msgraphsdk.GraphServiceClient, account *models.Account, folder *models.Folder, startLink string) error {
	user := account.EmailAddress

	added, removed, deltaLink, err := r.deltaWalk(ctx, client, user, folder.GraphFolderID, startLink, "")
	if err != nil {
		if isResyncRequiredError(err) {
			if markErr := r.deltaLinks.MarkResyncRequired(ctx, account.ID, folder.ID); markErr != nil {
				return markErr
			}
			return r.rebuildFolder(ctx, client, account, folder)
		}
		return err
	}

	if len(added) > 0 {
		if err := r.saveNewEnvelopes(ctx, client, account, folder, added); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		if err := r.envelopes.DeleteByMessageIDs(ctx, account.ID, folder.ID, removed); err != nil {
			return err
		}
	}

	return r.deltaLinks.Upsert(ctx, account.ID, folder.ID, deltaLink)
}

// deltaResponse is the structural shape every page of a Graph delta query
// returns: a page of values plus either a nextLink (more pages pending) or a
// deltaLink (the walk reached steady state and this is the resumption
// token for the next sync pass). Declaring it locally rather than naming
// the SDK's generated response type keeps this file decoupled from the
// exact generated type name for the mailFolders/{id}/messages/delta path.
type deltaResponse interface {
	GetValue() []graphmodels.Messageable
	GetOdataNextLink() *string
	GetOdataDeltaLink() *string
}

// deltaWalk pages a folder's delta feed to completion, starting fresh
// (startLink == "") or resuming from a previously stored deltaLink, and
// splits the messages it observes into added and removed (hard-deleted)
// sets. sinceFilterExpr is only applied to a fresh walk — Graph rejects a
// $filter on a resumed delta request, since the filter was already baked
// into the original deltaLink's query.
func (r *Reconciler) deltaWalk(ctx context.Context, client *msgraphsdk.GraphServiceClient, user, folderID, startLink, sinceFilterExpr string) (added []graphmodels.Messageable, removed []string, newDeltaLink string, err error) {
	var resp deltaResponse

	if startLink == "" {
		requestConfig := &users.ItemMailFoldersItemMessagesDeltaRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemMessagesDeltaRequestBuilderGetQueryParameters{
				Select: metadataSelect,
			},
		}
		if sinceFilterExpr != "" {
			requestConfig.QueryParameters.Filter = &sinceFilterExpr
		}
		resp, err = client.Users().ByUserId(user).MailFolders().ByMailFolderId(folderID).Messages().Delta().Get(ctx, requestConfig)
	} else {
		resp, err = users.NewItemMailFoldersItemMessagesDeltaRequestBuilder(startLink, client.GetAdapter()).Get(ctx, nil)
	}
	if err != nil {
		return nil, nil, "", mailerrors.NewProtocolError("outlook.messages.delta", err)
	}

	for {
		for _, msg := range resp.GetValue() {
			if isRemoved(msg) {
				if id := msg.GetId(); id != nil {
					removed = append(removed, *id)
				}
				continue
			}
			added = append(added, msg)
		}

		next := resp.GetOdataNextLink()
		if next != nil && *next != "" {
			resp, err = users.NewItemMailFoldersItemMessagesDeltaRequestBuilder(*next, client.GetAdapter()).Get(ctx, nil)
			if err != nil {
				return nil, nil, "", mailerrors.NewProtocolError("outlook.messages.delta.page", err)
			}
			continue
		}

		if link := resp.GetOdataDeltaLink(); link != nil {
			newDeltaLink = *link
		}
		return added, removed, newDeltaLink, nil
	}
}

// isRemoved reports whether a delta page entry represents a hard delete:
// Graph marks those with an "@removed" key in the message's additional
// (non-modeled) OData properties instead of returning a tombstone type.
func isRemoved(msg graphmodels.Messageable) bool {
	if msg == nil {
		return false
	}
	_, ok := msg.GetAdditionalData()["@removed"]
	return ok
}

// isResyncRequiredError reports whether err is Graph's "delta link expired"
// signal: an HTTP 410 Gone response, after which the only correct response
// is to discard the stored link and rebuild the folder from scratch.
func isResyncRequiredError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "410")
}

func folderDisplayName(mf graphmodels.MailFolderable) string {
	if mf == nil {
		return ""
	}
	if name := mf.GetDisplayName(); name != nil {
		return *name
	}
	return ""
}
