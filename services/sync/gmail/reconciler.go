// Package gmailsync implements the Gmail reconciler: label enumeration,
// subscription selection, and the full-rebuild/historyId-incremental
// decision that drives envelope mirroring for GmailApi accounts.
//
// Gmail's own History API is the authoritative change feed for a mailbox,
// so unlike the IMAP reconciler this package never consults the flag-state
// index (internal/flagindex) — that index exists to let the IMAP reconciler
// detect flag/UID drift the server doesn't proactively report; Gmail always
// proactively reports it, keyed by historyId.
package gmailsync

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/executors"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/interfaces"
)

// gmailUser is the special "me" user id Gmail's API accepts in place of an
// actual address when the call is authenticated as that mailbox.
const gmailUser = "me"

// Reconciler drives one account's Gmail sync pass: enumerate labels,
// decide subscriptions, then branch to a full rebuild or a historyId-based
// incremental sync per label.
type Reconciler struct {
	executors   *executors.Executors
	folders     *repository.FolderRepository
	envelopes   *repository.EnvelopeRepository
	checkpoints *repository.CheckpointRepository
	hooks       interfaces.HookSubscriptions
	events      interfaces.EventSink
	blobs       interfaces.BlobCache
	log         logger.Logger
	cfg         config.SyncConfig
}

// NewReconciler wires the Gmail reconciler to the shared REST connection
// pool, the folder/envelope stores, the historyId checkpoint store, and the
// external hook channel. hooks and blobs may be nil, with the same
// defaulting behavior as the IMAP reconciler: a nil hooks treats every
// event kind as subscribed, and a nil blobs still resolves inline
// attachments but skips caching their payloads.
func NewReconciler(
	execs *executors.Executors,
	folders *repository.FolderRepository,
	envelopes *repository.EnvelopeRepository,
	checkpoints *repository.CheckpointRepository,
	hooks interfaces.HookSubscriptions,
	events interfaces.EventSink,
	blobs interfaces.BlobCache,
	log logger.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	return &Reconciler{
		executors:   execs,
		folders:     folders,
		envelopes:   envelopes,
		checkpoints: checkpoints,
		hooks:       hooks,
		events:      events,
		blobs:       blobs,
		log:         log,
		cfg:         cfg,
	}
}

// Sync runs one Gmail sync pass for account: build the authenticated API
// client, enumerate labels, pick the subscribed set, then decide full
// rebuild versus historyId-incremental per label based on whether that
// label's checkpoint row is present and not marked expired. syncType is
// accepted to satisfy the shared Reconciler interface; Gmail's own
// per-label checkpoint state is the authoritative cursor, so a scheduled
// Full tick doesn't force a rebuild of labels whose history is still valid.
func (r *Reconciler) Sync(ctx context.Context, account *models.Account, syncType enum.SyncType) error {
	svc, err := r.service(ctx, account)
	if err != nil {
		return err
	}

	labels, err := svc.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return mailerrors.NewProtocolError("gmail.labels.list", err)
	}

	subscribed := chooseSubscribedLabels(account, labels.Labels)
	if len(subscribed) == 0 {
		return mailerrors.NewProtocolError("gmail.subscriptions", fmt.Errorf("no selectable labels for account %s", account.ID))
	}

	local, err := r.folders.ListByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	localByLabel := make(map[string]*models.Folder, len(local))
	for _, f := range local {
		if f.LabelID != "" {
			localByLabel[f.LabelID] = f
		}
	}

	anySeeded := false
	for _, label := range subscribed {
		folder, ok := localByLabel[label.Id]
		var syncErr error
		switch {
		case !ok:
			folder, syncErr = r.seedLabel(ctx, svc, account, label)
			if syncErr == nil {
				anySeeded = true
			}
		default:
			cp, cpErr := r.checkpoints.Get(ctx, account.ID, folder.ID)
			if cpErr != nil {
				syncErr = cpErr
				break
			}
			if cp == nil || cp.HistoryExpired {
				syncErr = r.fullRebuildLabel(ctx, svc, account, folder)
				if syncErr == nil {
					anySeeded = true
				}
			} else {
				syncErr = r.historySync(ctx, svc, account, folder, cp.HistoryID)
			}
		}
		if syncErr != nil && r.log != nil {
			r.log.Warnf("gmailsync: sync failed for account %s label %s: %v", account.ID, label.Id, syncErr)
		}
	}

	if !anySeeded {
		return nil
	}
	return r.emit(ctx, account, enum.EventAccountFirstSyncCompleted, map[string]interface{}{
		"accountId": account.ID,
	})
}

// service builds the *gmailv1.Service for account: the shared, proxy-aware
// REST http.Client from the connection pool, wrapped in an
// oauth2.Transport that injects the account's current bearer token on every
// request. Token refresh is out of scope here — it's handled by the
// external account-management surface, which rotates OAuthAccessToken on
// the row; this reconciler only ever reads the token that's current when
// Sync starts.
func (r *Reconciler) service(ctx context.Context, account *models.Account) (*gmailv1.Service, error) {
	rest, err := r.executors.REST(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	base := rest.HTTP.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout: rest.HTTP.Timeout,
		Transport: &oauth2.Transport{
			Base: base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: account.OAuthAccessToken,
			}),
		},
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, mailerrors.NewAuthError("gmail.service", err)
	}
	return svc, nil
}

// chooseSubscribedLabels resolves the label set the reconciler mirrors: an
// account with an explicit subscription list (folder names recorded as
// Gmail label ids) gets that list intersected with what the API currently
// reports; otherwise the default is INBOX plus SENT, Gmail's two system
// labels matching the IMAP reconciler's INBOX + \Sent default.
func chooseSubscribedLabels(account *models.Account, labels []*gmailv1.Label) []*gmailv1.Label {
	byID := make(map[string]*gmailv1.Label, len(labels))
	for _, l := range labels {
		byID[l.Id] = l
	}

	if len(account.SubscribedFolders) > 0 {
		var selected []*gmailv1.Label
		for _, id := range account.SubscribedFolders {
			if l, ok := byID[id]; ok {
				selected = append(selected, l)
			}
		}
		return selected
	}

	var selected []*gmailv1.Label
	for _, id := range [...]string{"INBOX", "SENT"} {
		if l, ok := byID[id]; ok {
			selected = append(selected, l)
		}
	}
	return selected
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
// accountID, defaulting to true (fire the event) whenever the subscription
// backend is absent or its lookup fails.
func (r *Reconciler) isSubscribed(ctx context.Context, accountID string, eventType enum.EventType) bool {
	if r.hooks == nil {
		return true
	}
	ok, err := r.hooks.IsSubscribed(ctx, accountID, eventType)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("gmailsync: hook subscription lookup failed for account %s event %s: %v", accountID, eventType, err)
		}
		return true
	}
	return ok
}
