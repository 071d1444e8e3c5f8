package models

import "time"

// OutlookDeltaLink is the resumption cursor for a Graph API account's
// delta-query incremental sync, one row per (account, folder). A
// "resync required" response from Graph clears Link and forces a rebuild.
type OutlookDeltaLink struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey" json:"accountId"`
	FolderID  string `gorm:"column:folder_id;type:varchar(64);primaryKey" json:"folderId"`

	Link           string    `gorm:"column:delta_link;type:text" json:"link"`
	LastSyncedAt   time.Time `gorm:"column:last_synced_at;type:timestamp" json:"lastSyncedAt"`
	ResyncRequired bool      `gorm:"column:resync_required;default:false" json:"resyncRequired"`
}

func (OutlookDeltaLink) TableName() string {
	return "sync_outlook_delta_links"
}
