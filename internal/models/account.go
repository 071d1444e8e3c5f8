package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/utils"
)

// Account is a synchronized mailbox: an IMAP/SMTP pair, a Gmail API
// identity, or a Graph API identity. Created and mutated by the external
// account-management surface; the sync engine only reads and updates
// running state on it.
//
// Deletion is two-phase: Enabled is flipped false first (soft-disable,
// cancels the running sync task at the next suspension point), then a
// purge pass tears down flag-index state, folder/envelope rows,
// credentials, and hook subscriptions for the account.
type Account struct {
	ID           string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant       string            `gorm:"column:tenant;type:varchar(255);index" json:"tenant"`
	EmailAddress string            `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	MailerType   enum.MailerType   `gorm:"column:mailer_type;type:varchar(20);index;not null" json:"mailerType"`
	Enabled      bool              `gorm:"column:enabled;default:true" json:"enabled"`

	// IMAP/SMTP configuration (ImapSmtp accounts only).
	ImapServer   string             `gorm:"column:imap_server;type:varchar(255)" json:"imapServer"`
	ImapPort     int                `gorm:"column:imap_port" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255)" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(500)" json:"-"` // encrypted at rest
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(20)" json:"imapSecurity"`

	SmtpServer   string             `gorm:"column:smtp_server;type:varchar(255)" json:"smtpServer"`
	SmtpPort     int                `gorm:"column:smtp_port" json:"smtpPort"`
	SmtpUsername string             `gorm:"column:smtp_username;type:varchar(255)" json:"smtpUsername"`
	SmtpPassword string             `gorm:"column:smtp_password;type:varchar(500)" json:"-"`
	SmtpSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(20)" json:"smtpSecurity"`

	// OAuth2 (GmailApi/GraphApi accounts, or XOAUTH2 over ImapSmtp).
	OAuthAccessToken string     `gorm:"column:oauth_access_token;type:varchar(2000)" json:"-"`
	OAuthTokenExpiry *time.Time `gorm:"column:oauth_token_expiry;type:timestamp" json:"oauthTokenExpiry"`

	// Sync policy.
	FullSyncIntervalMinutes   int            `gorm:"column:full_sync_interval_minutes;default:1440" json:"fullSyncIntervalMinutes"`
	IncrementalSyncIntervalSeconds int      `gorm:"column:incremental_sync_interval_seconds;default:60" json:"incrementalSyncIntervalSeconds"`
	DateSince                 *time.Time     `gorm:"column:date_since;type:timestamp" json:"dateSince"`
	FolderLimit                *int          `gorm:"column:folder_limit" json:"folderLimit"`
	MinimalSync                bool          `gorm:"column:minimal_sync;default:false" json:"minimalSync"`
	SubscribedFolders          pq.StringArray `gorm:"column:subscribed_folders;type:text[]" json:"subscribedFolders"`
	KnownFolders                pq.StringArray `gorm:"column:known_folders;type:text[]" json:"knownFolders"`
	CachedCapabilities          pq.StringArray `gorm:"column:cached_capabilities;type:text[]" json:"cachedCapabilities"`
	ProxyID                     string         `gorm:"column:proxy_id;type:varchar(50)" json:"proxyId"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`

	// RecordVersion tracks which of the three historical Account record
	// shapes (V1/V2/V3) this row was last written in; ConvertToLatest
	// upgrades an older row on read, and is applied again before write.
	RecordVersion int `gorm:"column:record_version;default:3" json:"recordVersion"`
}

func (Account) TableName() string {
	return "sync_accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 21)
	}
	if a.RecordVersion == 0 {
		a.RecordVersion = 3
	}
	return nil
}

// ConvertToLatest upgrades an Account row read in an older record version to
// the current (V3) shape. V1 accounts had no MinimalSync flag or FolderLimit
// (both default to their zero values, which are the correct V1 semantics:
// full envelope caching, unbounded folders). V2 accounts had no ProxyID.
// Forward conversion is a no-op beyond bumping the version; callers persist
// the upgrade on the next write.
func (a *Account) ConvertToLatest() {
	switch a.RecordVersion {
	case 1, 2:
		a.RecordVersion = 3
	case 0:
		a.RecordVersion = 1
		a.ConvertToLatest()
	}
}

// AccountRunningState tracks the per-account sync cursor the scheduler
// consults to pick Full/Incremental/Skip, plus a bounded ring buffer of
// recent errors surfaced to operators.
type AccountRunningState struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey"`

	LastFullSyncStart  *time.Time `gorm:"column:last_full_sync_start;type:timestamp"`
	LastFullSyncEnd    *time.Time `gorm:"column:last_full_sync_end;type:timestamp"`
	LastIncrSyncStart  *time.Time `gorm:"column:last_incremental_sync_start;type:timestamp"`
	LastIncrSyncEnd    *time.Time `gorm:"column:last_incremental_sync_end;type:timestamp"`

	InitialSyncCurrentFolder string `gorm:"column:initial_sync_current_folder;type:varchar(255)"`
	InitialSyncBatchNumber   int    `gorm:"column:initial_sync_batch_number"`
	InitialSyncFolderCount   int    `gorm:"column:initial_sync_folder_count"`

	// RecentErrors is a JSON-encoded ring buffer (bounded at
	// config.SyncConfig.ErrorBufferCapacity entries server-side).
	RecentErrors JSONMap `gorm:"column:recent_errors;type:jsonb"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (AccountRunningState) TableName() string {
	return "sync_account_running_states"
}

// RunningStateError is one entry of the rolling error buffer.
type RunningStateError struct {
	At      time.Time `json:"at"`
	Folder  string    `json:"folder,omitempty"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}
