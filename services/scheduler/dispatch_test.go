package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/models"
)

func TestDecideSyncTypeNoStateIsFull(t *testing.T) {
	account := &models.Account{FullSyncIntervalMinutes: 60, IncrementalSyncIntervalSeconds: 30}
	got := decideSyncType(&models.AccountRunningState{}, account, time.Now())
	assert.Equal(t, enum.SyncFull, got)
}

func TestDecideSyncTypeFullOverdue(t *testing.T) {
	now := time.Now()
	lastFull := now.Add(-2 * time.Hour)
	account := &models.Account{FullSyncIntervalMinutes: 60, IncrementalSyncIntervalSeconds: 30}
	state := &models.AccountRunningState{LastFullSyncStart: &lastFull}

	got := decideSyncType(state, account, now)
	assert.Equal(t, enum.SyncFull, got)
}

func TestDecideSyncTypeIncrementalWhenFullFreshButNoIncrementalYet(t *testing.T) {
	now := time.Now()
	lastFull := now.Add(-1 * time.Minute)
	account := &models.Account{FullSyncIntervalMinutes: 60, IncrementalSyncIntervalSeconds: 30}
	state := &models.AccountRunningState{LastFullSyncStart: &lastFull}

	got := decideSyncType(state, account, now)
	assert.Equal(t, enum.SyncIncremental, got)
}

func TestDecideSyncTypeIncrementalOverdue(t *testing.T) {
	now := time.Now()
	lastFull := now.Add(-1 * time.Minute)
	lastIncr := now.Add(-90 * time.Second)
	account := &models.Account{FullSyncIntervalMinutes: 60, IncrementalSyncIntervalSeconds: 30}
	state := &models.AccountRunningState{LastFullSyncStart: &lastFull, LastIncrSyncStart: &lastIncr}

	got := decideSyncType(state, account, now)
	assert.Equal(t, enum.SyncIncremental, got)
}

func TestDecideSyncTypeSkipWhenNothingDue(t *testing.T) {
	now := time.Now()
	lastFull := now.Add(-1 * time.Minute)
	lastIncr := now.Add(-1 * time.Second)
	account := &models.Account{FullSyncIntervalMinutes: 60, IncrementalSyncIntervalSeconds: 30}
	state := &models.AccountRunningState{LastFullSyncStart: &lastFull, LastIncrSyncStart: &lastIncr}

	got := decideSyncType(state, account, now)
	assert.Equal(t, enum.SyncSkip, got)
}

func TestRequiresOAuth2(t *testing.T) {
	assert.True(t, requiresOAuth2(&models.Account{MailerType: enum.MailerGmailApi}))
	assert.True(t, requiresOAuth2(&models.Account{MailerType: enum.MailerGraphApi}))
	assert.True(t, requiresOAuth2(&models.Account{MailerType: enum.MailerImapSmtp}))
	assert.False(t, requiresOAuth2(&models.Account{MailerType: enum.MailerImapSmtp, ImapPassword: "secret"}))
}
