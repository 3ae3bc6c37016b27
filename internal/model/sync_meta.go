package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType is one of the four pricebook kinds.
type EntityType string

const (
	EntityCategory  EntityType = "category"
	EntityMaterial  EntityType = "material"
	EntityService   EntityType = "service"
	EntityEquipment EntityType = "equipment"
)

// EntityTypes lists every kind in dependency order: categories first, since
// materials, services and equipment reference them.
var EntityTypes = []EntityType{EntityCategory, EntityMaterial, EntityService, EntityEquipment}

// ParseEntityType accepts singular or plural names ("materials", "Category").
func ParseEntityType(s string) (EntityType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "category", "categories":
		return EntityCategory, nil
	case "material", "materials":
		return EntityMaterial, nil
	case "service", "services":
		return EntityService, nil
	case "equipment", "equipments":
		return EntityEquipment, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// OrderEntityTypes returns the requested kinds deduplicated and sorted into
// dependency order. An empty request means every kind.
func OrderEntityTypes(requested []EntityType) []EntityType {
	if len(requested) == 0 {
		return append([]EntityType(nil), EntityTypes...)
	}
	want := make(map[EntityType]bool, len(requested))
	for _, k := range requested {
		want[k] = true
	}
	ordered := make([]EntityType, 0, len(want))
	for _, k := range EntityTypes {
		if want[k] {
			ordered = append(ordered, k)
		}
	}
	return ordered
}

type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
)

// SyncDirection is used both per row (from_upstream / to_upstream) and per run,
// where bidirectional is also allowed.
type SyncDirection string

const (
	DirectionFromUpstream  SyncDirection = "from_upstream"
	DirectionToUpstream    SyncDirection = "to_upstream"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Pulls reports whether a run in this direction fetches from upstream.
func (d SyncDirection) Pulls() bool {
	return d == DirectionFromUpstream || d == DirectionBidirectional || d == ""
}

// Pushes reports whether a run in this direction sends pending local edits upstream.
func (d SyncDirection) Pushes() bool {
	return d == DirectionToUpstream || d == DirectionBidirectional
}

// SyncMeta is the sync envelope carried by every pricebook table.
type SyncMeta struct {
	UpstreamID         int64         `gorm:"uniqueIndex;not null" json:"upstream_id"`
	LastSyncedAt       *time.Time    `json:"last_synced_at"`
	LocalModifiedAt    *time.Time    `json:"local_modified_at"`
	UpstreamModifiedAt *time.Time    `json:"upstream_modified_at"`
	SyncStatus         SyncStatus    `gorm:"type:varchar(20);index" json:"sync_status"`
	SyncDirection      SyncDirection `gorm:"type:varchar(20)" json:"sync_direction"`
	HasConflict        bool          `gorm:"index" json:"has_conflict"`
	ConflictID         *uuid.UUID    `gorm:"type:uuid" json:"conflict_id"`
	DeletedInUpstream  bool          `json:"deleted_in_upstream"`
}

// Meta gives generic code access to the envelope of any kind.
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// LocallyModified reports whether a local actor changed the row after the
// last confirmed sync.
func (m *SyncMeta) LocallyModified() bool {
	if m.LocalModifiedAt == nil {
		return false
	}
	if m.LastSyncedAt == nil {
		return true
	}
	return m.LocalModifiedAt.After(*m.LastSyncedAt)
}

// PricebookItem is implemented by the pointer types of every kind.
type PricebookItem interface {
	GetID() uuid.UUID
	IsDeleted() bool
	Restore()
	Meta() *SyncMeta
	EntityType() EntityType
}

// ItemPtr constrains generic code to *T where *T is a PricebookItem.
type ItemPtr[T any] interface {
	*T
	PricebookItem
}
