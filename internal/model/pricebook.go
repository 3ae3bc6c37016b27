package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Category is a node of the pricebook tree.
type Category struct {
	BaseModel
	SyncMeta
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Description  string `gorm:"type:text" json:"description"`
	Active       bool   `json:"active"`
	Position     int    `json:"position"`
	CategoryType string `gorm:"type:varchar(50)" json:"category_type"`
	Image        string `gorm:"type:text" json:"image"`

	// Parent is resolved from the upstream id at apply time
	ParentUpstreamID *int64     `gorm:"index" json:"parent_upstream_id"`
	ParentID         *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
}

func (Category) TableName() string {
	return "pricebook_categories"
}

func (*Category) EntityType() EntityType {
	return EntityCategory
}

// CatalogFields are the content columns shared by materials, services and equipment.
type CatalogFields struct {
	Code        string              `gorm:"type:varchar(100);index" json:"code"`
	Name        string              `gorm:"type:varchar(255);not null" json:"name"`
	Description string              `gorm:"type:text" json:"description"`
	Active      bool                `json:"active"`
	Taxable     bool                `json:"taxable"`
	Price       decimal.Decimal     `gorm:"type:numeric(18,4)" json:"price"`
	MemberPrice decimal.NullDecimal `gorm:"type:numeric(18,4)" json:"member_price"`
	AddOnPrice  decimal.NullDecimal `gorm:"type:numeric(18,4)" json:"add_on_price"`
	Cost        decimal.NullDecimal `gorm:"type:numeric(18,4)" json:"cost"`
	Assets      datatypes.JSON      `gorm:"type:jsonb" json:"assets"`

	CategoryUpstreamID *int64     `gorm:"index" json:"category_upstream_id"`
	CategoryID         *uuid.UUID `gorm:"type:uuid;index" json:"category_id"`
}

func (f *CatalogFields) Catalog() *CatalogFields {
	return f
}

type Material struct {
	BaseModel
	SyncMeta
	CatalogFields
	UnitOfMeasure string `gorm:"type:varchar(50)" json:"unit_of_measure"`
	PrimaryVendor string `gorm:"type:varchar(255)" json:"primary_vendor"`
}

func (Material) TableName() string {
	return "pricebook_materials"
}

func (*Material) EntityType() EntityType {
	return EntityMaterial
}

type Service struct {
	BaseModel
	SyncMeta
	CatalogFields
	DurationHours float64 `json:"duration_hours"`
	Warranty      string  `gorm:"type:text" json:"warranty"`
}

func (Service) TableName() string {
	return "pricebook_services"
}

func (*Service) EntityType() EntityType {
	return EntityService
}

type Equipment struct {
	BaseModel
	SyncMeta
	CatalogFields
	Manufacturer string `gorm:"type:varchar(255)" json:"manufacturer"`
	ModelNumber  string `gorm:"type:varchar(255)" json:"model_number"`
}

func (Equipment) TableName() string {
	return "pricebook_equipment"
}

func (*Equipment) EntityType() EntityType {
	return EntityEquipment
}
