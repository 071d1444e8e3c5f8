package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Folder is an account-scoped mailbox. ID is a deterministic hash of
// (account_id, remote name or id) so it never changes across renames; only
// DisplayName does.
type Folder struct {
	ID           string         `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	AccountID    string         `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	RemoteName   string         `gorm:"column:remote_name;type:varchar(500);not null" json:"remoteName"`
	DisplayName  string         `gorm:"column:display_name;type:varchar(500)" json:"displayName"`
	Attributes   pq.StringArray `gorm:"column:attributes;type:text[]" json:"attributes"`
	Exists       uint32         `gorm:"column:exists_count" json:"exists"`

	// IMAP-only.
	UIDValidity  uint32 `gorm:"column:uid_validity" json:"uidValidity"`
	UIDNext      uint32 `gorm:"column:uid_next" json:"uidNext"`
	HighestModSeq uint64 `gorm:"column:highest_mod_seq" json:"highestModSeq"`

	// Gmail-only. The historyId cursor itself lives in GmailCheckpoint,
	// not here, for the same reason as the Outlook delta link below.
	LabelID string `gorm:"column:label_id;type:varchar(255)" json:"labelId"`

	// Outlook-only. The delta-query cursor itself lives in
	// OutlookDeltaLink, not here, so it survives independently of folder
	// metadata churn.
	GraphFolderID string `gorm:"column:graph_folder_id;type:varchar(255)" json:"graphFolderId"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Folder) TableName() string {
	return "sync_folders"
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = FolderID(f.AccountID, f.RemoteName)
	}
	return nil
}

// FolderID computes a folder's stable primary key from its account and
// remote identifier (IMAP mailbox name, Gmail label id, or Graph folder id).
func FolderID(accountID, remoteKey string) string {
	sum := sha256.Sum256([]byte(accountID + "\x00" + remoteKey))
	return "fold_" + hex.EncodeToString(sum[:])[:32]
}

// HasAttribute reports whether the folder carries a server-supplied
// attribute such as "\Sent", "\Trash", or "\Noselect".
func (f *Folder) HasAttribute(attr string) bool {
	for _, a := range f.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}
