package service

import (
	"encoding/json"
	"fmt"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"
	"go-pricebook-sync/pkg/validator"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CategoryRepository = repository.ItemRepository[model.Category, *model.Category]

// ---------- Category ----------

type categoryPayload struct {
	ID           upstream.ID  `json:"id" validate:"gt=0"`
	Name         string       `json:"name" validate:"required,max=255"`
	Description  string       `json:"description"`
	Active       *bool        `json:"active"`
	ParentID     *upstream.ID `json:"parentId"`
	Position     int          `json:"position"`
	CategoryType string       `json:"categoryType" validate:"max=50"`
	Image        string       `json:"image"`
}

type categoryMapper struct {
	categories CategoryRepository
}

func NewCategoryMapper(categories CategoryRepository) Mapper[model.Category] {
	return &categoryMapper{categories: categories}
}

func (m *categoryMapper) Kind() model.EntityType {
	return model.EntityCategory
}

func (m *categoryMapper) Decode(item upstream.Item) (*model.Category, error) {
	var p categoryPayload
	if err := json.Unmarshal(item.Raw, &p); err != nil {
		return nil, fmt.Errorf("decode category %d: %w", item.ID, err)
	}
	if err := validator.Validate(&p); err != nil {
		return nil, fmt.Errorf("category %d: %w", item.ID, err)
	}

	c := &model.Category{
		Name:             p.Name,
		Description:      p.Description,
		Active:           p.Active == nil || *p.Active,
		Position:         p.Position,
		CategoryType:     p.CategoryType,
		Image:            p.Image,
		ParentUpstreamID: p.ParentID.Ptr(),
	}
	c.UpstreamID = item.ID
	c.UpstreamModifiedAt = item.ModifiedOn
	return c, nil
}

func (m *categoryMapper) ChangedFields(local, incoming *model.Category) []string {
	var changed []string
	if local.Name != incoming.Name {
		changed = append(changed, "name")
	}
	if local.Active != incoming.Active {
		changed = append(changed, "active")
	}
	return changed
}

func (m *categoryMapper) CopyContent(dst, src *model.Category) {
	dst.Name = src.Name
	dst.Description = src.Description
	dst.Active = src.Active
	dst.Position = src.Position
	dst.CategoryType = src.CategoryType
	dst.Image = src.Image
	dst.ParentUpstreamID = src.ParentUpstreamID
}

func (m *categoryMapper) Link(tx *gorm.DB, item *model.Category) error {
	item.ParentID = nil
	if item.ParentUpstreamID == nil {
		return nil
	}
	ids, err := m.categories.LocalIDsByUpstreamIDs(tx, []int64{*item.ParentUpstreamID})
	if err != nil {
		return fmt.Errorf("resolve parent category %d: %w", *item.ParentUpstreamID, err)
	}
	if id, ok := ids[*item.ParentUpstreamID]; ok {
		item.ParentID = &id
	}
	return nil
}

func (m *categoryMapper) ReferenceColumns() (string, string) {
	return "parent_upstream_id", "parent_id"
}

func (m *categoryMapper) Unlinked(item *model.Category) bool {
	return item.ParentUpstreamID != nil && item.ParentID == nil
}

func (m *categoryMapper) Patch(item *model.Category) map[string]interface{} {
	return map[string]interface{}{
		"name":        item.Name,
		"description": item.Description,
		"active":      item.Active,
	}
}

func (m *categoryMapper) ApplyEdit(item *model.Category, edit LocalEdit) error {
	if edit.Price != nil || edit.MemberPrice != nil || edit.AddOnPrice != nil || edit.Cost != nil {
		return fmt.Errorf("%w: categories have no price fields", ErrInvalidEdit)
	}
	if edit.Name != nil {
		item.Name = *edit.Name
	}
	if edit.Description != nil {
		item.Description = *edit.Description
	}
	if edit.Active != nil {
		item.Active = *edit.Active
	}
	return nil
}

// OrderForCreate puts parents before their children so the parent link
// resolves when the child is inserted.
func (m *categoryMapper) OrderForCreate(items []*model.Category) []*model.Category {
	pending := make(map[int64]bool, len(items))
	for _, c := range items {
		pending[c.UpstreamID] = true
	}

	ordered := make([]*model.Category, 0, len(items))
	remaining := items
	for len(remaining) > 0 {
		var next []*model.Category
		for _, c := range remaining {
			if c.ParentUpstreamID != nil && pending[*c.ParentUpstreamID] && *c.ParentUpstreamID != c.UpstreamID {
				next = append(next, c)
				continue
			}
			ordered = append(ordered, c)
		}
		for _, c := range ordered[len(ordered)-(len(remaining)-len(next)):] {
			delete(pending, c.UpstreamID)
		}
		if len(next) == len(remaining) {
			// cycle in the upstream tree: keep input order
			return append(ordered, next...)
		}
		remaining = next
	}
	return ordered
}

// ---------- Materials, services, equipment ----------

type catalogPayload struct {
	ID          upstream.ID         `json:"id" validate:"gt=0"`
	Code        string              `json:"code" validate:"max=100"`
	DisplayName string              `json:"displayName" validate:"required_without=Name,max=255"`
	Name        string              `json:"name" validate:"max=255"`
	Description string              `json:"description"`
	Active      *bool               `json:"active"`
	Taxable     bool                `json:"taxable"`
	Price       decimal.Decimal     `json:"price" validate:"money"`
	MemberPrice decimal.NullDecimal `json:"memberPrice" validate:"omitempty,money"`
	AddOnPrice  decimal.NullDecimal `json:"addOnPrice" validate:"omitempty,money"`
	Cost        decimal.NullDecimal `json:"cost" validate:"omitempty,money"`
	CategoryID  *upstream.ID        `json:"categoryId"`
	Categories  []upstream.ID       `json:"categories"`
	Assets      json.RawMessage     `json:"assets"`
}

func (p *catalogPayload) fields() model.CatalogFields {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}
	f := model.CatalogFields{
		Code:        p.Code,
		Name:        name,
		Description: p.Description,
		Active:      p.Active == nil || *p.Active,
		Taxable:     p.Taxable,
		Price:       p.Price,
		MemberPrice: p.MemberPrice,
		AddOnPrice:  p.AddOnPrice,
		Cost:        p.Cost,
	}
	switch {
	case p.CategoryID.Ptr() != nil:
		f.CategoryUpstreamID = p.CategoryID.Ptr()
	case len(p.Categories) > 0:
		f.CategoryUpstreamID = p.Categories[0].Ptr()
	}
	if len(p.Assets) > 0 && string(p.Assets) != "null" {
		f.Assets = datatypes.JSON(p.Assets)
	}
	return f
}

type catalogRow[T any] interface {
	model.ItemPtr[T]
	Catalog() *model.CatalogFields
}

// catalogMapper maps the three kinds that share CatalogFields. Only the extra
// columns differ, through decodeExtra and copyExtra.
type catalogMapper[T any, PT catalogRow[T]] struct {
	kind        model.EntityType
	categories  CategoryRepository
	decodeExtra func(raw json.RawMessage, row *T) error
	copyExtra   func(dst, src *T)
}

func (m *catalogMapper[T, PT]) Kind() model.EntityType {
	return m.kind
}

func (m *catalogMapper[T, PT]) Decode(item upstream.Item) (*T, error) {
	var p catalogPayload
	if err := json.Unmarshal(item.Raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", m.kind, item.ID, err)
	}
	if err := validator.Validate(&p); err != nil {
		return nil, fmt.Errorf("%s %d: %w", m.kind, item.ID, err)
	}

	row := new(T)
	*PT(row).Catalog() = p.fields()
	meta := PT(row).Meta()
	meta.UpstreamID = item.ID
	meta.UpstreamModifiedAt = item.ModifiedOn
	if m.decodeExtra != nil {
		if err := m.decodeExtra(item.Raw, row); err != nil {
			return nil, fmt.Errorf("%s %d: %w", m.kind, item.ID, err)
		}
	}
	return row, nil
}

func (m *catalogMapper[T, PT]) ChangedFields(local, incoming *T) []string {
	a, b := PT(local).Catalog(), PT(incoming).Catalog()
	var changed []string
	if a.Name != b.Name {
		changed = append(changed, "name")
	}
	if a.Code != b.Code {
		changed = append(changed, "code")
	}
	if a.Active != b.Active {
		changed = append(changed, "active")
	}
	if MoneyDiffers(a.Price, b.Price) {
		changed = append(changed, "price")
	}
	if NullMoneyDiffers(a.MemberPrice, b.MemberPrice) {
		changed = append(changed, "member_price")
	}
	if NullMoneyDiffers(a.AddOnPrice, b.AddOnPrice) {
		changed = append(changed, "add_on_price")
	}
	if NullMoneyDiffers(a.Cost, b.Cost) {
		changed = append(changed, "cost")
	}
	return changed
}

func (m *catalogMapper[T, PT]) CopyContent(dst, src *T) {
	d, s := PT(dst).Catalog(), PT(src).Catalog()
	categoryID := d.CategoryID
	*d = *s
	// the local key is re-resolved by Link
	d.CategoryID = categoryID
	if m.copyExtra != nil {
		m.copyExtra(dst, src)
	}
}

func (m *catalogMapper[T, PT]) Link(tx *gorm.DB, item *T) error {
	f := PT(item).Catalog()
	f.CategoryID = nil
	if f.CategoryUpstreamID == nil {
		return nil
	}
	ids, err := m.categories.LocalIDsByUpstreamIDs(tx, []int64{*f.CategoryUpstreamID})
	if err != nil {
		return fmt.Errorf("resolve category %d: %w", *f.CategoryUpstreamID, err)
	}
	if id, ok := ids[*f.CategoryUpstreamID]; ok {
		f.CategoryID = &id
	}
	return nil
}

func (m *catalogMapper[T, PT]) ReferenceColumns() (string, string) {
	return "category_upstream_id", "category_id"
}

func (m *catalogMapper[T, PT]) Unlinked(item *T) bool {
	f := PT(item).Catalog()
	return f.CategoryUpstreamID != nil && f.CategoryID == nil
}

func (m *catalogMapper[T, PT]) Patch(item *T) map[string]interface{} {
	f := PT(item).Catalog()
	patch := map[string]interface{}{
		"displayName": f.Name,
		"description": f.Description,
		"active":      f.Active,
		"price":       f.Price,
	}
	if f.MemberPrice.Valid {
		patch["memberPrice"] = f.MemberPrice.Decimal
	}
	if f.AddOnPrice.Valid {
		patch["addOnPrice"] = f.AddOnPrice.Decimal
	}
	if f.Cost.Valid {
		patch["cost"] = f.Cost.Decimal
	}
	return patch
}

func (m *catalogMapper[T, PT]) ApplyEdit(item *T, edit LocalEdit) error {
	for _, d := range []*decimal.Decimal{edit.Price, edit.MemberPrice, edit.AddOnPrice, edit.Cost} {
		if d != nil && d.IsNegative() {
			return fmt.Errorf("%w: amounts cannot be negative", ErrInvalidEdit)
		}
	}
	f := PT(item).Catalog()
	if edit.Name != nil {
		f.Name = *edit.Name
	}
	if edit.Description != nil {
		f.Description = *edit.Description
	}
	if edit.Active != nil {
		f.Active = *edit.Active
	}
	if edit.Price != nil {
		f.Price = *edit.Price
	}
	if edit.MemberPrice != nil {
		f.MemberPrice = nullDecimalPtr(edit.MemberPrice)
	}
	if edit.AddOnPrice != nil {
		f.AddOnPrice = nullDecimalPtr(edit.AddOnPrice)
	}
	if edit.Cost != nil {
		f.Cost = nullDecimalPtr(edit.Cost)
	}
	return nil
}

type materialExtra struct {
	UnitOfMeasure string `json:"unitOfMeasure" validate:"max=50"`
	PrimaryVendor *struct {
		VendorName string `json:"vendorName"`
	} `json:"primaryVendor"`
}

func NewMaterialMapper(categories CategoryRepository) Mapper[model.Material] {
	return &catalogMapper[model.Material, *model.Material]{
		kind:       model.EntityMaterial,
		categories: categories,
		decodeExtra: func(raw json.RawMessage, row *model.Material) error {
			var x materialExtra
			if err := json.Unmarshal(raw, &x); err != nil {
				return err
			}
			if err := validator.Validate(&x); err != nil {
				return err
			}
			row.UnitOfMeasure = x.UnitOfMeasure
			if x.PrimaryVendor != nil {
				row.PrimaryVendor = x.PrimaryVendor.VendorName
			}
			return nil
		},
		copyExtra: func(dst, src *model.Material) {
			dst.UnitOfMeasure = src.UnitOfMeasure
			dst.PrimaryVendor = src.PrimaryVendor
		},
	}
}

type serviceExtra struct {
	DurationHours float64 `json:"durationHours" validate:"gte=0"`
	Warranty      *struct {
		Description string `json:"description"`
	} `json:"warranty"`
}

func NewServiceMapper(categories CategoryRepository) Mapper[model.Service] {
	return &catalogMapper[model.Service, *model.Service]{
		kind:       model.EntityService,
		categories: categories,
		decodeExtra: func(raw json.RawMessage, row *model.Service) error {
			var x serviceExtra
			if err := json.Unmarshal(raw, &x); err != nil {
				return err
			}
			if err := validator.Validate(&x); err != nil {
				return err
			}
			row.DurationHours = x.DurationHours
			if x.Warranty != nil {
				row.Warranty = x.Warranty.Description
			}
			return nil
		},
		copyExtra: func(dst, src *model.Service) {
			dst.DurationHours = src.DurationHours
			dst.Warranty = src.Warranty
		},
	}
}

type equipmentExtra struct {
	Manufacturer string `json:"manufacturer" validate:"max=255"`
	Model        string `json:"model" validate:"max=255"`
}

func NewEquipmentMapper(categories CategoryRepository) Mapper[model.Equipment] {
	return &catalogMapper[model.Equipment, *model.Equipment]{
		kind:       model.EntityEquipment,
		categories: categories,
		decodeExtra: func(raw json.RawMessage, row *model.Equipment) error {
			var x equipmentExtra
			if err := json.Unmarshal(raw, &x); err != nil {
				return err
			}
			if err := validator.Validate(&x); err != nil {
				return err
			}
			row.Manufacturer = x.Manufacturer
			row.ModelNumber = x.Model
			return nil
		},
		copyExtra: func(dst, src *model.Equipment) {
			dst.Manufacturer = src.Manufacturer
			dst.ModelNumber = src.ModelNumber
		},
	}
}
