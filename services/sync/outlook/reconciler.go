// Package outlooksync implements the Outlook/Microsoft Graph reconciler:
// mail-folder enumeration, subscription selection, and the full-rebuild
// versus delta-query-incremental decision that drives envelope mirroring for
// GraphApi accounts.
//
// Like Gmail, Graph's own delta query is the authoritative change feed for a
// mailbox, so this package never consults the flag-state index
// (internal/flagindex) either — it trusts Graph's @removed markers and
// per-field deltas the same way the Gmail reconciler trusts historyId.
package outlooksync

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/executors"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/interfaces"
)

// graphScopes is empty: the adapter authenticates with a pre-acquired bearer
// token (see staticTokenCredential), so the client needs no scopes of its
// own to request a token — it never requests one.
var graphScopes = []string{}

// Reconciler drives one account's Graph sync pass: enumerate mail folders,
// decide subscriptions, then branch to a full rebuild or a delta-query-based
// incremental sync per folder.
type Reconciler struct {
	executors  *executors.Executors
	folders    *repository.FolderRepository
	envelopes  *repository.EnvelopeRepository
	deltaLinks *repository.DeltaLinkRepository
	hooks      interfaces.HookSubscriptions
	events     interfaces.EventSink
	blobs      interfaces.BlobCache
	log        logger.Logger
	cfg        config.SyncConfig
}

// NewReconciler wires the Outlook reconciler to the shared REST connection
// pool, the folder/envelope stores, the delta-link checkpoint store, and the
// external hook channel. hooks and blobs may be nil with the same
// defaulting behavior as the IMAP and Gmail reconcilers.
func NewReconciler(
	execs *executors.Executors,
	folders *repository.FolderRepository,
	envelopes *repository.EnvelopeRepository,
	deltaLinks *repository.DeltaLinkRepository,
	hooks interfaces.HookSubscriptions,
	events interfaces.EventSink,
	blobs interfaces.BlobCache,
	log logger.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	return &Reconciler{
		executors:  execs,
		folders:    folders,
		envelopes:  envelopes,
		deltaLinks: deltaLinks,
		hooks:      hooks,
		events:     events,
		blobs:      blobs,
		log:        log,
		cfg:        cfg,
	}
}

// Sync runs one Graph sync pass for account: build the authenticated client,
// enumerate mail folders, pick the subscribed set, then decide full rebuild
// versus delta-incremental per folder based on whether that folder's
// delta-link row is present and not marked resync-required. syncType is
// accepted to satisfy the shared Reconciler interface; Outlook's delta-link
// presence is the authoritative cursor, so a scheduled Full tick doesn't
// force a rebuild of folders whose delta link is still valid.
func (r *Reconciler) Sync(ctx context.Context, account *models.Account, syncType enum.SyncType) error {
	client, err := r.service(ctx, account)
	if err != nil {
		return err
	}
	user := account.EmailAddress

	remote, err := listMailFolders(ctx, client, user)
	if err != nil {
		return err
	}
	subscribed := chooseSubscribedFolders(account, remote)
	if len(subscribed) == 0 {
		return mailerrors.NewProtocolError("outlook.subscriptions", fmt.Errorf("no selectable folders for account %s", account.ID))
	}

	local, err := r.folders.ListByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	localByGraphID := make(map[string]*models.Folder, len(local))
	for _, f := range local {
		if f.GraphFolderID != "" {
			localByGraphID[f.GraphFolderID] = f
		}
	}

	anySeeded := false
	for _, mf := range subscribed {
		folder, ok := localByGraphID[graphFolderID(mf)]
		var syncErr error
		switch {
		case !ok:
			folder, syncErr = r.seedFolder(ctx, client, account, mf)
			if syncErr == nil {
				anySeeded = true
			}
		default:
			link, linkErr := r.deltaLinks.Get(ctx, account.ID, folder.ID)
			if linkErr != nil {
				syncErr = linkErr
				break
			}
			if link == nil || link.ResyncRequired {
				syncErr = r.fullRebuildFolder(ctx, client, account, folder)
				if syncErr == nil {
					anySeeded = true
				}
			} else {
				syncErr = r.deltaSync(ctx, client, account, folder, link.Link)
			}
		}
		if syncErr != nil && r.log != nil {
			r.log.Warnf("outlooksync: sync failed for account %s folder %s: %v", account.ID, graphFolderID(mf), syncErr)
		}
	}

	if !anySeeded {
		return nil
	}
	return r.emit(ctx, account, enum.EventAccountFirstSyncCompleted, map[string]interface{}{
		"accountId": account.ID,
	})
}

// service builds the *msgraphsdk.GraphServiceClient for account: a static
// bearer-token credential wrapping the account's current OAuth access token,
// the same way the Gmail reconciler's oauth2.Transport injects its token on
// every request. Token refresh is out of scope here for the same reason it
// is in the Gmail reconciler — the external account-management surface
// rotates OAuthAccessToken on the row, and this reconciler only reads
// whatever value is current when Sync starts.
func (r *Reconciler) service(ctx context.Context, account *models.Account) (*msgraphsdk.GraphServiceClient, error) {
	cred := &staticTokenCredential{token: account.OAuthAccessToken}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, graphScopes)
	if err != nil {
		return nil, mailerrors.NewAuthError("outlook.service", err)
	}
	return client, nil
}

// staticTokenCredential implements azcore.TokenCredential with a
// pre-acquired bearer token rather than an interactive or client-credential
// flow — the token itself is refreshed out-of-band by the external
// account-management surface and handed to Sync on the account row.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

// chooseSubscribedFolders resolves the folder set the reconciler mirrors: an
// account with an explicit subscription list (folder names recorded as
// Graph folder ids) gets that list intersected with what the API currently
// reports; otherwise the default is the folders whose display names are
// "Inbox" and "Sent Items", matching the IMAP/Gmail defaults.
func chooseSubscribedFolders(account *models.Account, folders []graphmodels.MailFolderable) []graphmodels.MailFolderable {
	byID := make(map[string]graphmodels.MailFolderable, len(folders))
	byWellKnownName := make(map[string]graphmodels.MailFolderable, len(folders))
	for _, f := range folders {
		id := graphFolderID(f)
		byID[id] = f
		if name := f.GetDisplayName(); name != nil {
			byWellKnownName[*name] = f
		}
	}

	if len(account.SubscribedFolders) > 0 {
		var selected []graphmodels.MailFolderable
		for _, id := range account.SubscribedFolders {
			if f, ok := byID[id]; ok {
				selected = append(selected, f)
			}
		}
		return selected
	}

	var selected []graphmodels.MailFolderable
	for _, name := range [...]string{"Inbox", "Sent Items"} {
		if f, ok := byWellKnownName[name]; ok {
			selected = append(selected, f)
		}
	}
	return selected
}

// graphFolderID extracts a mail folder's stable Graph id, or "" for a nil
// accessor (never expected outside of malformed API responses).
func graphFolderID(mf graphmodels.MailFolderable) string {
	if mf == nil {
		return ""
	}
	if id := mf.GetId(); id != nil {
		return *id
	}
	return ""
}

// emit builds the outbound event envelope and hands it to the event sink,
// skipping the call entirely when nothing downstream is subscribed.
func (r *Reconciler) emit(ctx context.Context, account *models.Account, eventType enum.EventType, payload interface{}) error {
	if r.events == nil {
		return nil
	}
	if !r.isSubscribed(ctx, account.ID, eventType) {
		return nil
	}
	return r.events.Emit(ctx, interfaces.SyncEvent{
		AccountID:    account.ID,
		AccountEmail: account.EmailAddress,
		EventType:    eventType,
		Payload:      payload,
	})
}

// isSubscribed reports whether an external consumer wants eventType for
// accountID, defaulting to true whenever the subscription backend is absent
// or its lookup fails.
func (r *Reconciler) isSubscribed(ctx context.Context, accountID string, eventType enum.EventType) bool {
	if r.hooks == nil {
		return true
	}
	ok, err := r.hooks.IsSubscribed(ctx, accountID, eventType)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("outlooksync: hook subscription lookup failed for account %s event %s: %v", accountID, eventType, err)
		}
		return true
	}
	return ok
}
