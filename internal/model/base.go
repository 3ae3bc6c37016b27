package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel handles ID (UUID) and standard Audit Trails
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"` // Soft Delete support
}

// Hook Before Create untuk generate UUID otomatis
func (base *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	return
}

// GetID returns the local surrogate key.
func (base *BaseModel) GetID() uuid.UUID {
	return base.ID
}

// IsDeleted reports whether the row is soft deleted.
func (base *BaseModel) IsDeleted() bool {
	return base.DeletedAt.Valid
}

// Restore clears the soft-delete stamp.
func (base *BaseModel) Restore() {
	base.DeletedAt = gorm.DeletedAt{}
}
