package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ResolutionStrategy string

const (
	StrategyKeepUpstream ResolutionStrategy = "keep_upstream"
	StrategyKeepLocal    ResolutionStrategy = "keep_local"
	StrategyManual       ResolutionStrategy = "manual"
)

// Valid reports whether s is one of the known strategies.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case StrategyKeepUpstream, StrategyKeepLocal, StrategyManual:
		return true
	}
	return false
}

type ConflictStatus string

const (
	ConflictUnresolved           ConflictStatus = "unresolved"
	ConflictResolvedKeepUpstream ConflictStatus = "resolved_keep_upstream"
	ConflictResolvedKeepLocal    ConflictStatus = "resolved_keep_local"
)

// ConflictBothModified is the only conflict kind: local and upstream both
// changed after the last confirmed sync.
const ConflictBothModified = "both_modified"

// FieldDiff holds the two sides of one changed field.
type FieldDiff struct {
	Local    any `json:"local"`
	Upstream any `json:"upstream"`
}

// SyncConflict records a detected conflict with snapshots of both sides.
// An entity has at most one unresolved conflict at a time.
type SyncConflict struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	EntityType   EntityType     `gorm:"type:varchar(20);not null;index:idx_conflict_entity" json:"entity_type"`
	EntityID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_conflict_entity" json:"entity_id"`
	UpstreamID   int64          `gorm:"index" json:"upstream_id"`
	ConflictType string         `gorm:"type:varchar(50);not null" json:"conflict_type"`
	UpstreamData datatypes.JSON `gorm:"type:jsonb" json:"upstream_data"`
	LocalData    datatypes.JSON `gorm:"type:jsonb" json:"local_data"`
	FieldDiff    datatypes.JSON `gorm:"type:jsonb" json:"field_diff"`
	Status       ConflictStatus `gorm:"type:varchar(30);not null;index" json:"status"`

	ResolutionStrategy ResolutionStrategy `gorm:"type:varchar(20)" json:"resolution_strategy,omitempty"`
	ResolvedBy         string             `gorm:"type:varchar(255)" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty"`
	SyncRunID          *uuid.UUID         `gorm:"type:uuid;index" json:"sync_run_id,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SyncConflict) TableName() string {
	return "pricebook_sync_conflicts"
}

func (c *SyncConflict) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

func (c *SyncConflict) IsResolved() bool {
	return c.Status != ConflictUnresolved
}
