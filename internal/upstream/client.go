// Package upstream is the contract with the pricebook system of record: paged
// list, get by id, and patch, plus decoding of the common item envelope.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-pricebook-sync/internal/model"
)

var (
	ErrNotFound       = errors.New("upstream: item not found")
	ErrRateLimited    = errors.New("upstream: rate limited")
	ErrMalformedItem  = errors.New("upstream: malformed item")
	ErrMissingItemID  = errors.New("upstream: item has no id")
	ErrUnsupportedURL = errors.New("upstream: base url not configured")
)

// ListOptions are the paging parameters of a list call. Page is 1-based.
type ListOptions struct {
	Page          int
	PageSize      int
	CategoryID    *int64
	ModifiedSince *time.Time
}

// Page is one response of a list call.
type Page struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"hasMore"`
}

// Client is implemented by the HTTP client and by test fakes.
type Client interface {
	List(ctx context.Context, kind model.EntityType, opts ListOptions) (*Page, error)
	Get(ctx context.Context, kind model.EntityType, id int64) (json.RawMessage, error)
	Update(ctx context.Context, kind model.EntityType, id int64, patch map[string]interface{}) (json.RawMessage, error)
}

// StatusError is returned for non-retryable HTTP failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("upstream: status %d: %s", e.Code, body)
}

// ID is a 64-bit upstream identifier. Upstream sends it either as a JSON
// number or as a quoted string for ids beyond the float-safe range.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid upstream id %s: %w", string(b), err)
	}
	*id = ID(v)
	return nil
}

func (id ID) Int64() int64 {
	return int64(id)
}

// Ptr returns nil for the zero id.
func (id *ID) Ptr() *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := int64(*id)
	return &v
}

// Item is one upstream record: its identity, its own modified stamp (if the
// upstream sends one), and the raw payload the kind mappers decode.
type Item struct {
	ID         int64
	ModifiedOn *time.Time
	Raw        json.RawMessage
	// DecodeErr is set when the envelope was malformed. ID is still set if
	// it could be read on its own, and is 0 otherwise.
	DecodeErr error
}

type envelope struct {
	ID         ID         `json:"id"`
	ModifiedOn *time.Time `json:"modifiedOn"`
}

// NormalizeTime drops precision the relational store cannot keep so that
// stamps compare equal after a round trip.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// DecodeItem reads the envelope of one raw record.
func DecodeItem(raw json.RawMessage) (Item, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if env.ID == 0 {
		return Item{}, ErrMissingItemID
	}
	item := Item{ID: env.ID.Int64(), Raw: raw}
	if env.ModifiedOn != nil && !env.ModifiedOn.IsZero() {
		t := NormalizeTime(*env.ModifiedOn)
		item.ModifiedOn = &t
	}
	return item, nil
}

// DecodeItems decodes every envelope of a page. A malformed envelope does not
// fail the page: that record comes back with DecodeErr set.
func DecodeItems(raws []json.RawMessage) []Item {
	items := make([]Item, 0, len(raws))
	for i, raw := range raws {
		item, err := DecodeItem(raw)
		if err != nil {
			item = Item{ID: recoverID(raw), Raw: raw, DecodeErr: fmt.Errorf("record %d: %w", i, err)}
		}
		items = append(items, item)
	}
	return items
}

// recoverID reads only the id of a record whose envelope failed to decode.
func recoverID(raw json.RawMessage) int64 {
	var body struct {
		ID ID `json:"id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0
	}
	return body.ID.Int64()
}

// ResourcePath maps a kind to its upstream collection name.
func ResourcePath(kind model.EntityType) (string, error) {
	switch kind {
	case model.EntityCategory:
		return "categories", nil
	case model.EntityMaterial:
		return "materials", nil
	case model.EntityService:
		return "services", nil
	case model.EntityEquipment:
		return "equipment", nil
	}
	return "", fmt.Errorf("upstream: no resource for entity type %q", kind)
}
