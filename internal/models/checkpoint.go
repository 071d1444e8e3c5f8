package models

import "time"

// GmailCheckpoint is the resumption cursor for a Gmail API account's
// history-based incremental sync, one row per (account, folder/label).
// A missing row, or a historyId the API reports as expired, forces a
// rebuild of that folder on the next tick.
type GmailCheckpoint struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey" json:"accountId"`
	FolderID  string `gorm:"column:folder_id;type:varchar(64);primaryKey" json:"folderId"`

	HistoryID      string    `gorm:"column:history_id;type:varchar(255)" json:"historyId"`
	LastSyncedAt   time.Time `gorm:"column:last_synced_at;type:timestamp" json:"lastSyncedAt"`
	HistoryExpired bool      `gorm:"column:history_expired;default:false" json:"historyExpired"`
}

func (GmailCheckpoint) TableName() string {
	return "sync_gmail_checkpoints"
}
