package service

import (
	"context"
	"fmt"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/repository"
	"go-pricebook-sync/internal/upstream"
)

// NewItem is an upstream record with no live local row.
type NewItem[T any] struct {
	Item     upstream.Item
	Incoming *T
}

// ModifiedItem pairs a live local row with its changed upstream record.
type ModifiedItem[T any] struct {
	Item          upstream.Item
	Local         *T
	Incoming      *T
	ChangedFields []string
	HasConflict   bool
}

// InvalidItem is an upstream record the mapper could not decode.
type InvalidItem struct {
	Item upstream.Item
	Err  error
}

// Comparison classifies one fetched batch against the local store.
type Comparison[T any] struct {
	New        []NewItem[T]
	Modified   []ModifiedItem[T]
	Unchanged  []*T
	Deleted    []*T
	Invalid    []InvalidItem
	Duplicates int
	// DeletionSkipped is set on a full sync when a record came back without
	// a readable id: any absent row could be that record.
	DeletionSkipped bool
}

// Conflicted counts the modified pairs changed on both sides.
func (c *Comparison[T]) Conflicted() int {
	n := 0
	for _, m := range c.Modified {
		if m.HasConflict {
			n++
		}
	}
	return n
}

// Comparator classifies upstream records. It only reads the store.
type Comparator[T any, PT model.ItemPtr[T]] struct {
	repo   repository.ItemRepository[T, PT]
	mapper Mapper[T]
}

func NewComparator[T any, PT model.ItemPtr[T]](repo repository.ItemRepository[T, PT], mapper Mapper[T]) *Comparator[T, PT] {
	return &Comparator[T, PT]{repo: repo, mapper: mapper}
}

// Compare loads every live local row and classifies items against it. Rows
// missing from items are reported as deleted only when fullSync is set.
func (c *Comparator[T, PT]) Compare(ctx context.Context, items []upstream.Item, fullSync bool) (*Comparison[T], error) {
	locals, err := c.repo.FindLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local %s rows: %w", c.mapper.Kind(), err)
	}

	byUpstreamID := make(map[int64]*T, len(locals))
	for i := range locals {
		byUpstreamID[PT(&locals[i]).Meta().UpstreamID] = &locals[i]
	}

	result := &Comparison[T]{}
	// seen holds ids already classified; present also holds ids that were
	// sent but could not be mapped, so they are not reported deleted.
	seen := make(map[int64]bool, len(items))
	present := make(map[int64]bool, len(items))
	unidentified := false
	for _, item := range items {
		if item.ID == 0 {
			err := item.DecodeErr
			if err == nil {
				err = upstream.ErrMissingItemID
			}
			unidentified = true
			result.Invalid = append(result.Invalid, InvalidItem{Item: item, Err: err})
			continue
		}
		present[item.ID] = true
		if seen[item.ID] {
			result.Duplicates++
			continue
		}
		if item.DecodeErr != nil {
			result.Invalid = append(result.Invalid, InvalidItem{Item: item, Err: item.DecodeErr})
			continue
		}

		incoming, err := c.mapper.Decode(item)
		if err != nil {
			result.Invalid = append(result.Invalid, InvalidItem{Item: item, Err: err})
			continue
		}
		seen[item.ID] = true

		local, ok := byUpstreamID[item.ID]
		if !ok {
			result.New = append(result.New, NewItem[T]{Item: item, Incoming: incoming})
			continue
		}

		changed := c.mapper.ChangedFields(local, incoming)
		if !isModified(PT(local).Meta(), item, changed) {
			result.Unchanged = append(result.Unchanged, local)
			continue
		}
		result.Modified = append(result.Modified, ModifiedItem[T]{
			Item:          item,
			Local:         local,
			Incoming:      incoming,
			ChangedFields: changed,
			HasConflict:   hasConflict(PT(local).Meta(), item),
		})
	}

	if fullSync && unidentified {
		result.DeletionSkipped = true
	} else if fullSync {
		for i := range locals {
			meta := PT(&locals[i]).Meta()
			if !present[meta.UpstreamID] && !meta.DeletedInUpstream {
				result.Deleted = append(result.Deleted, &locals[i])
			}
		}
	}
	return result, nil
}

// isModified compares upstream stamps when both sides have one and falls
// back to the significant-field diff otherwise.
func isModified(local *model.SyncMeta, item upstream.Item, changed []string) bool {
	if item.ModifiedOn != nil && local.UpstreamModifiedAt != nil {
		return item.ModifiedOn.After(*local.UpstreamModifiedAt)
	}
	return len(changed) > 0
}

// hasConflict is true when both sides changed after the last confirmed sync.
// Without an upstream stamp there is nothing to order against, so upstream wins.
func hasConflict(local *model.SyncMeta, item upstream.Item) bool {
	if !local.LocallyModified() || item.ModifiedOn == nil {
		return false
	}
	if local.LastSyncedAt == nil {
		return true
	}
	return item.ModifiedOn.After(*local.LastSyncedAt)
}
