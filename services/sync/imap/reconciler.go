// Package imapsync implements the IMAP reconciler: per-account folder
// enumeration, subscription selection, and the full-rebuild /
// incremental-reconcile decision that drives envelope mirroring for
// ImapSmtp accounts.
package imapsync

import (
	"context"
	"fmt"
	"strings"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mailforge/mailforge/config"
	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/executors"
	"github.com/mailforge/mailforge/internal/flagindex"
	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/mailerrors"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/internal/repository"
	"github.com/mailforge/mailforge/interfaces"
)

// Reconciler drives one account's IMAP sync pass: enumerate folders, decide
// subscriptions, then branch to a full rebuild or an incremental reconcile
// per folder.
type Reconciler struct {
	executors    *executors.Executors
	accounts     *repository.AccountRepository
	folders      *repository.FolderRepository
	envelopes    *repository.EnvelopeRepository
	flagIndex    *flagindex.Index
	runningState *repository.RunningStateRepository
	hooks        interfaces.HookSubscriptions
	events       interfaces.EventSink
	blobs        interfaces.BlobCache
	log          logger.Logger
	cfg          config.SyncConfig
}

// NewReconciler wires the IMAP reconciler to the shared connection pool, the
// folder/envelope stores, the flag index, and the external hook channel.
// hooks and blobs may be nil: a nil hooks treats every event kind as
// subscribed, and a nil blobs still resolves inline attachments but skips
// caching their payloads.
func NewReconciler(
	execs *executors.Executors,
	accounts *repository.AccountRepository,
	folders *repository.FolderRepository,
	envelopes *repository.EnvelopeRepository,
	flagIndex *flagindex.Index,
	runningState *repository.RunningStateRepository,
	hooks interfaces.HookSubscriptions,
	events interfaces.EventSink,
	blobs interfaces.BlobCache,
	log logger.Logger,
	cfg config.SyncConfig,
) *Reconciler {
	return &Reconciler{
		executors:    execs,
		accounts:     accounts,
		folders:      folders,
		envelopes:    envelopes,
		flagIndex:    flagIndex,
		runningState: runningState,
		hooks:        hooks,
		events:       events,
		blobs:        blobs,
		log:          log,
		cfg:          cfg,
	}
}

// Sync runs one execute_imap_sync pass for account: enumerate remote
// folders, pick the subscription set, then decide full rebuild versus
// incremental reconcile based on whether any local state exists yet. Once
// past the rebuild decision, syncType governs every folder's path: a Full
// tick always walks the complete UID space (or clears an emptied folder),
// never the incremental fast path.
func (r *Reconciler) Sync(ctx context.Context, account *models.Account, syncType enum.SyncType) error {
	pool, err := r.executors.IMAP(ctx, account.ID)
	if err != nil {
		return err
	}
	c, err := pool.Client()
	if err != nil {
		return err
	}

	remote, err := r.enumerateFolders(ctx, c, account)
	if err != nil {
		return err
	}

	subscribed, err := r.chooseSubscribedFolders(ctx, account, remote)
	if err != nil {
		return err
	}

	local, err := r.folders.ListByAccount(ctx, account.ID)
	if err != nil {
		return err
	}

	if r.needsRebuild(account.ID, local) {
		if err := r.fullRebuild(ctx, c, account, subscribed); err != nil {
			return err
		}
		return r.emit(ctx, account, enum.EventAccountFirstSyncCompleted, map[string]interface{}{
			"accountId": account.ID,
		})
	}

	return r.incrementalReconcile(ctx, c, account, local, subscribed, syncType)
}

// enumerateFolders lists every mailbox on the server, diffs the result
// against the account's previously-known folder set, emits
// MailboxCreation/MailboxDeletion for the difference, and persists the new
// known-folder set as the next pass's baseline.
func (r *Reconciler) enumerateFolders(ctx context.Context, c *client.Client, account *models.Account) ([]*goimap.MailboxInfo, error) {
	mailboxes := make(chan *goimap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var remote []*goimap.MailboxInfo
	for m := range mailboxes {
		remote = append(remote, m)
	}
	if err := <-done; err != nil {
		return nil, mailerrors.NewProtocolError("imap.list", err)
	}
	if len(remote) == 0 {
		return nil, mailerrors.NewProtocolError("imap.list", fmt.Errorf("server returned no mailboxes"))
	}

	remoteNames := make(map[string]struct{}, len(remote))
	for _, m := range remote {
		remoteNames[m.Name] = struct{}{}
	}
	knownNames := make(map[string]struct{}, len(account.KnownFolders))
	for _, name := range account.KnownFolders {
		knownNames[name] = struct{}{}
	}

	for name := range remoteNames {
		if _, ok := knownNames[name]; !ok {
			_ = r.emit(ctx, account, enum.EventMailboxCreation, map[string]interface{}{"folder": name})
		}
	}
	for name := range knownNames {
		if _, ok := remoteNames[name]; !ok {
			_ = r.emit(ctx, account, enum.EventMailboxDeletion, map[string]interface{}{"folder": name})
		}
	}

	names := make([]string, 0, len(remoteNames))
	for name := range remoteNames {
		names = append(names, name)
	}
	if err := r.accounts.UpdateKnownFolders(ctx, account.ID, names); err != nil && r.log != nil {
		r.log.Warnf("imapsync: failed to persist known folders for account %s: %v", account.ID, err)
	}
	account.KnownFolders = names

	return remote, nil
}

// chooseSubscribedFolders resolves the folder set the reconciler mirrors.
// An account with an explicit subscription list gets that list intersected
// with what the server currently reports; otherwise the default is INBOX
// plus any mailbox carrying the \Sent attribute, computed once and
// persisted so later passes don't recompute it from the default rule if
// the operator edits the subscription explicitly afterward.
func (r *Reconciler) chooseSubscribedFolders(ctx context.Context, account *models.Account, remote []*goimap.MailboxInfo) ([]*goimap.MailboxInfo, error) {
	byName := make(map[string]*goimap.MailboxInfo, len(remote))
	for _, m := range remote {
		byName[m.Name] = m
	}

	var selected []*goimap.MailboxInfo

	if len(account.SubscribedFolders) > 0 {
		for _, name := range account.SubscribedFolders {
			if m, ok := byName[name]; ok && !mailboxHasAttr(m, goimap.NoSelectAttr) {
				selected = append(selected, m)
			}
		}
	} else {
		var names []string
		for _, m := range remote {
			if mailboxHasAttr(m, goimap.NoSelectAttr) {
				continue
			}
			if strings.EqualFold(m.Name, "INBOX") || mailboxHasAttr(m, "\\Sent") {
				selected = append(selected, m)
				names = append(names, m.Name)
			}
		}
		if err := r.accounts.UpdateSubscribedFolders(ctx, account.ID, names); err != nil && r.log != nil {
			r.log.Warnf("imapsync: failed to persist default subscription for account %s: %v", account.ID, err)
		}
		account.SubscribedFolders = names
	}

	if len(selected) == 0 {
		return nil, mailerrors.NewProtocolError("imap.subscriptions", fmt.Errorf("no selectable folders for account %s", account.ID))
	}
	return selected, nil
}

// mailboxHasAttr reports whether m carries attr, compared
// case-insensitively since servers vary in casing for the same attribute.
func mailboxHasAttr(m *goimap.MailboxInfo, attr string) bool {
	for _, a := range m.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

// needsRebuild reports whether account has no local folder rows yet, or
// every local folder's flag index is empty — either case means there is no
// incremental baseline to reconcile against, so a full rebuild runs first.
func (r *Reconciler) needsRebuild(accountID string, local []*models.Folder) bool {
	if len(local) == 0 {
		return true
	}
	for _, f := range local {
		if len(r.flagIndex.GetUIDMap(accountID, f.ID, 0)) > 0 {
			return false
		}
	}
	return true
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
// accountID. A nil hooks store (no subscription backend wired) defaults to
// true so every event fires; a lookup error defaults to true as well, since
// skipping an event a consumer actually wanted is worse than one extra send.
func (r *Reconciler) isSubscribed(ctx context.Context, accountID string, eventType enum.EventType) bool {
	if r.hooks == nil {
		return true
	}
	ok, err := r.hooks.IsSubscribed(ctx, accountID, eventType)
	if err != nil {
		if r.log != nil {
			r.log.Warnf("imapsync: hook subscription lookup failed for account %s event %s: %v", accountID, eventType, err)
		}
		return true
	}
	return ok
}
