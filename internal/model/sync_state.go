package model

import (
	"time"

	"gorm.io/datatypes"
)

// SyncLock serializes runs across processes. A row exists while a run holds it.
type SyncLock struct {
	Name       string    `gorm:"type:varchar(100);primaryKey" json:"name"`
	Owner      string    `gorm:"type:varchar(100);not null" json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

func (SyncLock) TableName() string {
	return "pricebook_sync_locks"
}

// SyncState tracks the incremental watermark for one kind.
type SyncState struct {
	Scope         string         `gorm:"type:varchar(50);primaryKey" json:"scope"`
	WatermarkTS   *time.Time     `json:"watermark_ts"`
	LastSuccessAt *time.Time     `json:"last_success_at"`
	LastAttemptAt *time.Time     `json:"last_attempt_at"`
	LastError     *string        `gorm:"type:text" json:"last_error"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb" json:"stats"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (SyncState) TableName() string {
	return "pricebook_sync_states"
}
