package service

import (
	"encoding/json"
	"testing"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/upstream"

	"github.com/shopspring/decimal"
)

func decodeRaw(t *testing.T, raw string) upstream.Item {
	t.Helper()
	item, err := upstream.DecodeItem(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return item
}

func TestCategoryDecode(t *testing.T) {
	m := NewCategoryMapper(nil)
	item := decodeRaw(t, `{"id":"9007199254740993","name":"Water Heaters","parentId":12,"position":3,"modifiedOn":"2026-01-05T08:00:00.1234567Z"}`)

	c, err := m.Decode(item)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.UpstreamID != 9007199254740993 {
		t.Errorf("upstream id = %d", c.UpstreamID)
	}
	if !c.Active {
		t.Errorf("active should default to true")
	}
	if c.ParentUpstreamID == nil || *c.ParentUpstreamID != 12 {
		t.Errorf("parent = %v", c.ParentUpstreamID)
	}
	want := time.Date(2026, 1, 5, 8, 0, 0, 123456000, time.UTC)
	if c.UpstreamModifiedAt == nil || !c.UpstreamModifiedAt.Equal(want) {
		t.Errorf("modified = %v, want %v", c.UpstreamModifiedAt, want)
	}

	if _, err := m.Decode(decodeRaw(t, `{"id":4,"name":""}`)); err == nil {
		t.Errorf("empty name accepted")
	}
}

func TestCatalogDecode(t *testing.T) {
	m := NewMaterialMapper(nil)
	mat, err := m.Decode(decodeRaw(t, `{
		"id": 77, "code": "CU-12", "displayName": "Copper 1/2in", "active": false,
		"price": 12.5, "memberPrice": null, "cost": "7.25",
		"categories": [5, 6], "unitOfMeasure": "ft", "primaryVendor": {"vendorName": "Ferguson"},
		"assets": [{"url": "https://example.com/cu.png"}]
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mat.Name != "Copper 1/2in" || mat.Code != "CU-12" || mat.Active {
		t.Errorf("content = %+v", mat.CatalogFields)
	}
	if !mat.Price.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("price = %s", mat.Price)
	}
	if mat.MemberPrice.Valid {
		t.Errorf("null member price decoded as %s", mat.MemberPrice.Decimal)
	}
	if !mat.Cost.Valid || !mat.Cost.Decimal.Equal(decimal.RequireFromString("7.25")) {
		t.Errorf("cost = %+v", mat.Cost)
	}
	if mat.CategoryUpstreamID == nil || *mat.CategoryUpstreamID != 5 {
		t.Errorf("category = %v, want first of the list", mat.CategoryUpstreamID)
	}
	if mat.UnitOfMeasure != "ft" || mat.PrimaryVendor != "Ferguson" || len(mat.Assets) == 0 {
		t.Errorf("extras = %q %q %s", mat.UnitOfMeasure, mat.PrimaryVendor, mat.Assets)
	}
}

func TestCatalogDecodeRejects(t *testing.T) {
	m := NewServiceMapper(nil)
	cases := map[string]string{
		"negative price":  `{"id":1,"displayName":"Tune-up","price":-1}`,
		"malformed price": `{"id":1,"displayName":"Tune-up","price":"abc"}`,
		"negative cost":   `{"id":1,"displayName":"Tune-up","price":1,"cost":-0.5}`,
		"missing name":    `{"id":1,"price":1}`,
		"negative hours":  `{"id":1,"displayName":"Tune-up","price":1,"durationHours":-2}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Decode(decodeRaw(t, raw)); err == nil {
				t.Errorf("accepted %s", raw)
			}
		})
	}
}

func TestEquipmentDecodeExtras(t *testing.T) {
	m := NewEquipmentMapper(nil)
	eq, err := m.Decode(decodeRaw(t, `{"id":3,"name":"Furnace","price":1999.99,"manufacturer":"Carrier","model":"59SC5"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eq.Name != "Furnace" || eq.Manufacturer != "Carrier" || eq.ModelNumber != "59SC5" {
		t.Errorf("equipment = %+v", eq)
	}
}

func TestCatalogChangedFields(t *testing.T) {
	m := NewMaterialMapper(nil)
	base := func() *model.Material {
		return &model.Material{CatalogFields: model.CatalogFields{
			Name:   "Copper",
			Code:   "CU",
			Active: true,
			Price:  decimal.RequireFromString("10"),
			Cost:   decimal.NewNullDecimal(decimal.RequireFromString("4")),
		}}
	}

	same := base()
	same.Price = decimal.RequireFromString("10.0001")
	same.Description = "descriptions are not significant"
	if got := m.ChangedFields(base(), same); len(got) != 0 {
		t.Errorf("changed = %v, want none", got)
	}

	other := base()
	other.Price = decimal.RequireFromString("10.0002")
	other.Cost = decimal.NullDecimal{}
	other.Active = false
	got := m.ChangedFields(base(), other)
	want := []string{"active", "price", "cost"}
	if len(got) != len(want) {
		t.Fatalf("changed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("changed[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCategoryCreationOrder(t *testing.T) {
	m := NewCategoryMapper(nil).(*categoryMapper)
	parent := func(id int64) *int64 { return &id }
	rows := []*model.Category{
		{SyncMeta: model.SyncMeta{UpstreamID: 3}, ParentUpstreamID: parent(2)},
		{SyncMeta: model.SyncMeta{UpstreamID: 2}, ParentUpstreamID: parent(1)},
		{SyncMeta: model.SyncMeta{UpstreamID: 1}},
		{SyncMeta: model.SyncMeta{UpstreamID: 4}, ParentUpstreamID: parent(99)},
	}

	ordered := m.OrderForCreate(rows)
	pos := map[int64]int{}
	for i, c := range ordered {
		pos[c.UpstreamID] = i
	}
	if len(ordered) != 4 {
		t.Fatalf("ordered %d rows, want 4", len(ordered))
	}
	if !(pos[1] < pos[2] && pos[2] < pos[3]) {
		t.Errorf("order = %v", pos)
	}
}

func TestCategoryApplyEditRejectsPrices(t *testing.T) {
	m := NewCategoryMapper(nil)
	price := decimal.RequireFromString("1")
	if err := m.ApplyEdit(&model.Category{}, LocalEdit{Price: &price}); err == nil {
		t.Errorf("price edit on a category accepted")
	}
}

func TestMoneyDiffers(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10", "10", false},
		{"10", "10.0001", false},
		{"10.00005", "10", false},
		{"10", "10.00011", true},
		{"10", "9.9998", true},
	}
	for _, tc := range cases {
		if got := MoneyDiffers(decimal.RequireFromString(tc.a), decimal.RequireFromString(tc.b)); got != tc.want {
			t.Errorf("MoneyDiffers(%s, %s) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
	if !NullMoneyDiffers(decimal.NullDecimal{}, decimal.NewNullDecimal(decimal.Zero)) {
		t.Errorf("null vs zero should differ")
	}
	if NullMoneyDiffers(decimal.NullDecimal{}, decimal.NullDecimal{}) {
		t.Errorf("null vs null should not differ")
	}
}
