package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/models"
)

// decideSyncType picks this tick's sync kind from the account's running
// state: no full pass ever recorded means a first Full pass; a full pass
// overdue per the account's own FullSyncIntervalMinutes means another Full
// pass; an incremental pass overdue per IncrementalSyncIntervalSeconds means
// Incremental; otherwise Skip. The result both throttles how often a
// reconciler's Sync entrypoint runs at all and, for IMAP, is passed straight
// through to the per-folder path decision: a Full tick always walks the
// whole UID space, never the incremental fast path, regardless of what
// local-vs-remote UID state looks like.
func decideSyncType(state *models.AccountRunningState, account *models.Account, now time.Time) enum.SyncType {
	if state == nil || state.LastFullSyncStart == nil {
		return enum.SyncFull
	}

	fullInterval := time.Duration(account.FullSyncIntervalMinutes) * time.Minute
	if fullInterval <= 0 {
		fullInterval = 24 * time.Hour
	}
	if now.Sub(*state.LastFullSyncStart) > fullInterval {
		return enum.SyncFull
	}

	if state.LastIncrSyncStart == nil {
		return enum.SyncIncremental
	}
	incrInterval := time.Duration(account.IncrementalSyncIntervalSeconds) * time.Second
	if incrInterval <= 0 {
		incrInterval = 60 * time.Second
	}
	if now.Sub(*state.LastIncrSyncStart) > incrInterval {
		return enum.SyncIncremental
	}

	return enum.SyncSkip
}

// requiresOAuth2 reports whether account needs a live OAuth access token to
// sync at all. GmailApi and GraphApi accounts always authenticate over
// OAuth2; an ImapSmtp account only does when it carries no stored IMAP
// password, mirroring connectIMAP's own XOAUTH2-vs-Login branch.
func requiresOAuth2(account *models.Account) bool {
	switch account.MailerType {
	case enum.MailerGmailApi, enum.MailerGraphApi:
		return true
	default:
		return account.ImapPassword == ""
	}
}

// runSync stamps the running-state start/end markers for syncType around
// the dispatched reconciler call, so the next tick's decideSyncType call
// sees an accurate cadence even if the reconciler itself fails partway
// through.
func (s *Scheduler) runSync(ctx context.Context, account *models.Account, syncType enum.SyncType) error {
	reconciler, ok := s.reconcilers[account.MailerType]
	if !ok {
		return fmt.Errorf("scheduler: no reconciler registered for mailer type %s", account.MailerType)
	}

	start := time.Now()
	switch syncType {
	case enum.SyncFull:
		if err := s.runningState.RecordFullSyncStart(ctx, account.ID, start); err != nil {
			s.log.Warnf("scheduler: failed to record full-sync start for account %s: %v", account.ID, err)
		}
	case enum.SyncIncremental:
		if err := s.runningState.RecordIncrementalSyncStart(ctx, account.ID, start); err != nil {
			s.log.Warnf("scheduler: failed to record incremental-sync start for account %s: %v", account.ID, err)
		}
	}

	err := reconciler.Sync(ctx, account, syncType)

	end := time.Now()
	switch syncType {
	case enum.SyncFull:
		if rerr := s.runningState.RecordFullSyncEnd(ctx, account.ID, end); rerr != nil {
			s.log.Warnf("scheduler: failed to record full-sync end for account %s: %v", account.ID, rerr)
		}
	case enum.SyncIncremental:
		if rerr := s.runningState.RecordIncrementalSyncEnd(ctx, account.ID, end); rerr != nil {
			s.log.Warnf("scheduler: failed to record incremental-sync end for account %s: %v", account.ID, rerr)
		}
	}

	return err
}
