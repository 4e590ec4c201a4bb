package models

import "time"

// SyncState is the observable engine state shown to the UI.
type SyncState struct {
	IsOnline     bool       `json:"is_online"`
	IsSyncing    bool       `json:"is_syncing"`
	PendingCount int        `json:"pending_count"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt   *time.Time `json:"next_sync_at,omitempty"`
}

// SyncMetadata is a persisted key/value pair such as last_sync_at.
type SyncMetadata struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncMetadata.
func (SyncMetadata) TableName() string {
	return "sync_metadata"
}

// MetaLastSyncAt is the metadata key holding the last completed pass time.
const MetaLastSyncAt = "last_sync_at"
