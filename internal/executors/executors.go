// Package executors maintains at most one connection pool per account for
// IMAP and per account-or-MTA for SMTP, plus REST HTTP clients for the
// Gmail reconciler. Every accessor is single-flight per id —
// concurrent first-callers for the same id race to create the pool, and
// every loser receives the winner's handle rather than dialing twice.
package executors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mailforge/mailforge/internal/logger"
	"github.com/mailforge/mailforge/internal/models"
)

// AccountStore is the narrow slice of AccountRepository the executors need:
// reading the account for connect parameters and caching discovered
// capability strings back onto the row.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	UpdateCachedCapabilities(ctx context.Context, id string, capabilities []string) error
}

// RunningStateRecorder records connect failures onto the account's running
// state as a timestamped error entry.
type RunningStateRecorder interface {
	PushError(ctx context.Context, accountID string, entry models.RunningStateError, capacity int) error
}

// Executors owns the IMAP/SMTP/REST pools. One instance is shared across the
// scheduler, reconcilers, and outgoing-task workers.
type Executors struct {
	accounts     AccountStore
	runningState RunningStateRecorder
	log          logger.Logger

	errorBufferCapacity int

	imapGroup singleflight.Group
	smtpGroup singleflight.Group
	mtaGroup  singleflight.Group
	restGroup singleflight.Group

	mu    sync.RWMutex
	imap  map[string]*IMAPPool
	smtp  map[string]*SMTPPool
	mta   map[string]*SMTPPool
	rest  map[string]*RESTClient
}

// NewExecutors constructs the pool manager bound to the account store and
// running-state recorder used to persist connect failures.
func NewExecutors(accounts AccountStore, runningState RunningStateRecorder, log logger.Logger, errorBufferCapacity int) *Executors {
	if errorBufferCapacity <= 0 {
		errorBufferCapacity = 100
	}
	return &Executors{
		accounts:            accounts,
		runningState:        runningState,
		log:                 log,
		errorBufferCapacity: errorBufferCapacity,
		imap:                make(map[string]*IMAPPool),
		smtp:                make(map[string]*SMTPPool),
		mta:                 make(map[string]*SMTPPool),
		rest:                make(map[string]*RESTClient),
	}
}

// IMAP returns the shared IMAP pool for accountID, creating it on first use.
func (e *Executors) IMAP(ctx context.Context, accountID string) (*IMAPPool, error) {
	e.mu.RLock()
	if p, ok := e.imap[accountID]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	v, err, _ := e.imapGroup.Do(accountID, func() (interface{}, error) {
		e.mu.RLock()
		if p, ok := e.imap[accountID]; ok {
			e.mu.RUnlock()
			return p, nil
		}
		e.mu.RUnlock()

		account, err := e.accounts.FindByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("executors: load account %s: %w", accountID, err)
		}
		pool, err := dialIMAP(ctx, account)
		if err != nil {
			e.recordFailure(ctx, accountID, "imap_connect", err)
			return nil, err
		}
		if len(pool.capabilities) > 0 {
			_ = e.accounts.UpdateCachedCapabilities(ctx, accountID, pool.capabilities)
		}

		e.mu.Lock()
		e.imap[accountID] = pool
		e.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*IMAPPool), nil
}

// SMTP returns the shared SMTP pool for accountID.
func (e *Executors) SMTP(ctx context.Context, accountID string) (*SMTPPool, error) {
	e.mu.RLock()
	if p, ok := e.smtp[accountID]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	v, err, _ := e.smtpGroup.Do(accountID, func() (interface{}, error) {
		e.mu.RLock()
		if p, ok := e.smtp[accountID]; ok {
			e.mu.RUnlock()
			return p, nil
		}
		e.mu.RUnlock()

		account, err := e.accounts.FindByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("executors: load account %s: %w", accountID, err)
		}
		pool := newSMTPPool(account.SmtpServer, account.SmtpPort, account.SmtpUsername, account.SmtpPassword, account.SmtpSecurity, account.OAuthAccessToken)

		e.mu.Lock()
		e.smtp[accountID] = pool
		e.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SMTPPool), nil
}

// MTA returns the shared SMTP pool for an explicit MTA id, used when an
// outgoing task's control.mta overrides the account's own SMTP server. The
// MTA's connect parameters are resolved the same way as an account's, via
// mtaID being itself looked up as an account row (an MTA is modeled as an
// account whose purpose is outbound relay only).
func (e *Executors) MTA(ctx context.Context, mtaID string) (*SMTPPool, error) {
	e.mu.RLock()
	if p, ok := e.mta[mtaID]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	v, err, _ := e.mtaGroup.Do(mtaID, func() (interface{}, error) {
		e.mu.RLock()
		if p, ok := e.mta[mtaID]; ok {
			e.mu.RUnlock()
			return p, nil
		}
		e.mu.RUnlock()

		account, err := e.accounts.FindByID(ctx, mtaID)
		if err != nil {
			return nil, fmt.Errorf("executors: load mta %s: %w", mtaID, err)
		}
		pool := newSMTPPool(account.SmtpServer, account.SmtpPort, account.SmtpUsername, account.SmtpPassword, account.SmtpSecurity, account.OAuthAccessToken)

		e.mu.Lock()
		e.mta[mtaID] = pool
		e.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SMTPPool), nil
}

// REST returns the shared REST HTTP client for accountID (used by the Gmail
// reconciler), wired through the account's proxy if ProxyID is set.
func (e *Executors) REST(ctx context.Context, accountID string) (*RESTClient, error) {
	e.mu.RLock()
	if c, ok := e.rest[accountID]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	v, err, _ := e.restGroup.Do(accountID, func() (interface{}, error) {
		e.mu.RLock()
		if c, ok := e.rest[accountID]; ok {
			e.mu.RUnlock()
			return c, nil
		}
		e.mu.RUnlock()

		account, err := e.accounts.FindByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("executors: load account %s: %w", accountID, err)
		}
		client, err := newRESTClient(account)
		if err != nil {
			e.recordFailure(ctx, accountID, "rest_client", err)
			return nil, err
		}

		e.mu.Lock()
		e.rest[accountID] = client
		e.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RESTClient), nil
}

// CleanAccount drops every pool held for accountID so the next accessor call
// reconnects from scratch. Used on two-phase account deletion and on
// persistent auth failure.
func (e *Executors) CleanAccount(accountID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.imap[accountID]; ok {
		p.Close()
		delete(e.imap, accountID)
	}
	delete(e.smtp, accountID)
	delete(e.rest, accountID)
}

func (e *Executors) recordFailure(ctx context.Context, accountID, kind string, err error) {
	if e.log != nil {
		e.log.Errorf("executors: %s failed for account %s: %v", kind, accountID, err)
	}
	if e.runningState == nil {
		return
	}
	entry := models.RunningStateError{At: time.Now(), Kind: kind, Message: err.Error()}
	if pushErr := e.runningState.PushError(ctx, accountID, entry, e.errorBufferCapacity); pushErr != nil && e.log != nil {
		e.log.Errorf("executors: failed to record running-state error for account %s: %v", accountID, pushErr)
	}
}
