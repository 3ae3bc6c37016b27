package service

import (
	"encoding/json"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/upstream"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Mapper is the only per-kind code in the pipeline: how an upstream record
// becomes a local row and which fields matter when comparing them.
type Mapper[T any] interface {
	Kind() model.EntityType
	// Decode builds a detached row from an upstream record. Content fields,
	// the upstream id and the upstream modified stamp are set.
	Decode(item upstream.Item) (*T, error)
	// ChangedFields lists the significant fields (json names) that differ.
	ChangedFields(local, incoming *T) []string
	// CopyContent overwrites dst's content fields with src's.
	CopyContent(dst, src *T)
	// Link resolves upstream references (category, parent) to local keys.
	Link(tx *gorm.DB, item *T) error
	// Patch is the body sent upstream for a pending local edit.
	Patch(item *T) map[string]interface{}
	// ApplyEdit applies a local edit to the row's content.
	ApplyEdit(item *T, edit LocalEdit) error
}

// creationOrderer is implemented by mappers whose new rows reference each
// other (categories reference their parent).
type creationOrderer[T any] interface {
	OrderForCreate(items []*T) []*T
}

// relinker is implemented by mappers whose rows reference another row by
// upstream id. The local key stays null until the referenced row exists.
type relinker[T any] interface {
	// ReferenceColumns names the upstream reference column and its local key column.
	ReferenceColumns() (ref, key string)
	Unlinked(item *T) bool
}

// LocalEdit is a change made by a local actor. Nil fields are left alone.
type LocalEdit struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description,omitempty"`
	Active      *bool            `json:"active,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	MemberPrice *decimal.Decimal `json:"memberPrice,omitempty"`
	AddOnPrice  *decimal.Decimal `json:"addOnPrice,omitempty"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
}

// IsEmpty reports whether the edit changes nothing.
func (e LocalEdit) IsEmpty() bool {
	return e.Name == nil && e.Description == nil && e.Active == nil &&
		e.Price == nil && e.MemberPrice == nil && e.AddOnPrice == nil && e.Cost == nil
}

// moneyEpsilon is the tolerance below which two amounts are equal.
var moneyEpsilon = decimal.New(1, -4)

// MoneyDiffers reports whether |a-b| > 0.0001.
func MoneyDiffers(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(moneyEpsilon)
}

// NullMoneyDiffers treats two nulls as equal and null vs value as different.
func NullMoneyDiffers(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return true
	}
	if !a.Valid {
		return false
	}
	return MoneyDiffers(a.Decimal, b.Decimal)
}

func nullDecimalPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// snapshot serializes a row for conflict records and the change log.
func snapshot(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func toMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// bookkeepingFields are excluded from change-log value diffs.
var bookkeepingFields = map[string]bool{
	"id": true, "created_at": true, "updated_at": true, "deleted_at": true,
	"last_synced_at": true, "local_modified_at": true, "sync_status": true,
	"sync_direction": true, "has_conflict": true, "conflict_id": true,
	"deleted_in_upstream": true, "upstream_modified_at": true,
}

// changedValues returns the old and new values of every content field that
// differs between two snapshots.
func changedValues(before, after interface{}) (datatypes.JSON, datatypes.JSON) {
	oldMap, newMap := toMap(before), toMap(after)
	oldVals := map[string]interface{}{}
	newVals := map[string]interface{}{}
	for k, nv := range newMap {
		if bookkeepingFields[k] {
			continue
		}
		ov := oldMap[k]
		if !jsonEqual(ov, nv) {
			oldVals[k] = ov
			newVals[k] = nv
		}
	}
	return snapshot(oldVals), snapshot(newVals)
}

// contentValues is a snapshot without bookkeeping fields.
func contentValues(v interface{}) datatypes.JSON {
	m := toMap(v)
	for k := range bookkeepingFields {
		delete(m, k)
	}
	return snapshot(m)
}

func jsonEqual(a, b interface{}) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// fieldDiff pairs local and upstream values of the given fields.
func fieldDiff(local, incoming interface{}, fields []string) map[string]model.FieldDiff {
	lm, um := toMap(local), toMap(incoming)
	diff := make(map[string]model.FieldDiff, len(fields))
	for _, f := range fields {
		diff[f] = model.FieldDiff{Local: lm[f], Upstream: um[f]}
	}
	return diff
}
