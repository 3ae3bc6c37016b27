package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Change sources
const (
	SourceFromUpstream       = "from_upstream"
	SourceToUpstream         = "to_upstream"
	SourceConflictResolution = "conflict_resolution"
	SourceLocal              = "local"
)

// ChangeLog is the append-only audit trail of every pricebook mutation.
type ChangeLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	EntityType EntityType     `gorm:"type:varchar(20);not null;index:idx_change_entity" json:"entity_type"`
	EntityID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_change_entity" json:"entity_id"`
	UpstreamID int64          `gorm:"index" json:"upstream_id"`
	Action     ChangeAction   `gorm:"type:varchar(10);not null" json:"action"`
	Source     string         `gorm:"type:varchar(30);not null" json:"source"`
	OldValues  datatypes.JSON `gorm:"type:jsonb" json:"old_values"`
	NewValues  datatypes.JSON `gorm:"type:jsonb" json:"new_values"`
	Snapshot   datatypes.JSON `gorm:"type:jsonb" json:"snapshot"`
	SyncRunID  *uuid.UUID     `gorm:"type:uuid;index" json:"sync_run_id,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (ChangeLog) TableName() string {
	return "pricebook_change_logs"
}

func (c *ChangeLog) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
